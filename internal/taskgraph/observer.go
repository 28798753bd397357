package taskgraph

import "time"

type multiObserver []Observer

// MultiObserver fans lifecycle events out to every non-nil observer in order.
func MultiObserver(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) TaskStarted(name string) {
	for _, o := range m {
		o.TaskStarted(name)
	}
}

func (m multiObserver) TaskFinished(name string, d time.Duration, err error) {
	for _, o := range m {
		o.TaskFinished(name, d, err)
	}
}

func (m multiObserver) TaskSkipped(name, reason string) {
	for _, o := range m {
		o.TaskSkipped(name, reason)
	}
}
