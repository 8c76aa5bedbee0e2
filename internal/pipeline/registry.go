package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// JobRegistry tracks the cancellation handle of every running pipeline in
// the process. Jobs register on start and are removed once their terminal
// report has been stored.
type JobRegistry struct {
	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{running: make(map[uuid.UUID]context.CancelFunc)}
}

// Register derives a cancellable context for the job and remembers its
// cancel handle. The returned release func must be called when the job
// reaches a terminal state.
func (r *JobRegistry) Register(ctx context.Context, jobID uuid.UUID) (context.Context, func()) {
	jobCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.running[jobID] = cancel
	r.mu.Unlock()

	release := func() {
		cancel()
		r.mu.Lock()
		delete(r.running, jobID)
		r.mu.Unlock()
	}
	return jobCtx, release
}

// Cancel requests cancellation of a running job. Returns false when the job
// is not currently running in this process.
func (r *JobRegistry) Cancel(jobID uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.running[jobID]
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Running returns the number of registered jobs.
func (r *JobRegistry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}
