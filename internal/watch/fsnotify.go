package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher watches a directory tree with fsnotify. Directories created
// after the start are watched as they appear. Hidden directories and the
// ignored paths are skipped.
type FSWatcher struct {
	root    string
	ignored []string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirs    map[string]bool
	closed  bool

	events  chan Event
	errors  chan error
	dropped atomic.Int64

	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewFSWatcher starts watching root recursively. Ignored entries are
// absolute paths whose subtrees produce no events.
func NewFSWatcher(root string, ignored ...string) (*FSWatcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(absRoot + " is not a directory")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &FSWatcher{
		root:    absRoot,
		watcher: fsw,
		dirs:    make(map[string]bool),
		events:  make(chan Event, 256),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	for _, p := range ignored {
		if abs, err := filepath.Abs(p); err == nil {
			w.ignored = append(w.ignored, abs)
		}
	}

	if err := w.addTree(absRoot, nil); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Root returns the absolute watched root.
func (w *FSWatcher) Root() string { return w.root }

// Events returns the event channel. It is closed by Close.
func (w *FSWatcher) Events() <-chan Event { return w.events }

// Errors returns the error channel. It is closed by Close.
func (w *FSWatcher) Errors() <-chan error { return w.errors }

// Dropped returns the number of events dropped because the channel was full.
func (w *FSWatcher) Dropped() int64 { return w.dropped.Load() }

// WatchedDirs returns the number of watched directories.
func (w *FSWatcher) WatchedDirs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

// Close stops the watcher and closes its channels.
func (w *FSWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	close(w.events)
	close(w.errors)
	return w.watcher.Close()
}

// addTree watches dir and every directory below it. Files found on the
// way are passed to file, which may be nil.
func (w *FSWatcher) addTree(dir string, file func(p string)) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Vanished while walking.
			if p == dir {
				return err
			}
			return nil
		}
		if p != w.root && w.skip(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if file != nil {
				file(p)
			}
			return nil
		}
		return w.add(p)
	})
}

func (w *FSWatcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if w.dirs[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

func (w *FSWatcher) skip(p string) bool {
	if strings.HasPrefix(filepath.Base(p), ".") {
		return true
	}
	for _, ig := range w.ignored {
		if p == ig || strings.HasPrefix(p, ig+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *FSWatcher) processLoop() {
	defer w.closedWg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *FSWatcher) handle(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 || op == OpChmod || w.skip(ev.Name) {
		return
	}

	if op.Has(OpRemove) || op.Has(OpRename) {
		w.mu.Lock()
		delete(w.dirs, ev.Name)
		w.mu.Unlock()
	}
	w.send(ev.Name, op)

	// A directory moved or copied in brings files that raise no events of
	// their own; report each as created.
	if op.Has(OpCreate) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			err := w.addTree(ev.Name, func(p string) { w.send(p, OpCreate) })
			if err != nil && !errors.Is(err, ErrWatcherClosed) {
				select {
				case w.errors <- err:
				default:
				}
			}
		}
	}
}

func (w *FSWatcher) send(path string, op Op) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	event := Event{
		Path:      path,
		Rel:       filepath.ToSlash(rel),
		Op:        op,
		Timestamp: time.Now(),
	}
	select {
	case w.events <- event:
	default:
		w.dropped.Add(1)
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}
