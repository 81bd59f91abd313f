package extraction

import "time"

// RunStatus is the lifecycle state of one extractor run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunStats are the counters reported at the end of a run.
type RunStats struct {
	ListsTotal     int
	ListsDone      int
	PagesFetched   int
	RowsWritten    int
	APICalls       int64
	TokenRefreshes int
}

// Run is the recorded outcome of one extraction.
type Run struct {
	ID         string
	StateKey   string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Stats      RunStats
	Error      string
}

// Finish marks the run as done, failed when err is non-nil.
func (r *Run) Finish(at time.Time, stats RunStats, err error) {
	r.FinishedAt = &at
	r.Stats = stats
	r.Status = RunSucceeded
	r.Error = ""
	if err != nil {
		r.Status = RunFailed
		r.Error = err.Error()
	}
}

// Duration is how long the run took, zero while it is still running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
