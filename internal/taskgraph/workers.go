package taskgraph

import (
	"os"
	"runtime"
	"strconv"
)

const (
	// minWorkers keeps at least one slot even if runtime.NumCPU() reports 0.
	minWorkers = 1

	// maxWorkers caps SITEPIPE_PARALLEL and scheduler.concurrency.
	maxWorkers = 256
)

// EnvParallel overrides the default concurrency limit.
const EnvParallel = "SITEPIPE_PARALLEL"

// Warner receives non-fatal messages about ignored settings.
type Warner interface {
	WarningSimple(format string, args ...interface{})
}

// defaultWorkerCount returns the default number of parallel workers based on CPU count.
func defaultWorkerCount() int {
	return max(minWorkers, runtime.NumCPU())
}

// Workers returns the concurrency limit: the configured value when positive,
// else SITEPIPE_PARALLEL, else the CPU count. Invalid SITEPIPE_PARALLEL
// values (non-numeric, <1, >256) produce a warning and fall back to the CPU
// count. w may be nil.
func Workers(configured int, w Warner) int {
	if configured >= minWorkers && configured <= maxWorkers {
		return configured
	}

	env := os.Getenv(EnvParallel)
	if env == "" {
		return defaultWorkerCount()
	}

	n, err := strconv.Atoi(env)
	if err != nil {
		warn(w, "invalid %s value %q (not a number), using default", EnvParallel, env)
		return defaultWorkerCount()
	}

	if n < minWorkers || n > maxWorkers {
		warn(w, "%s=%d out of range [%d-%d], using default", EnvParallel, n, minWorkers, maxWorkers)
		return defaultWorkerCount()
	}

	return n
}

func warn(w Warner, format string, args ...interface{}) {
	if w != nil {
		w.WarningSimple(format, args...)
	}
}
