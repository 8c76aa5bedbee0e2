package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// ProgressSink is the boundary to the external event transport.
type ProgressSink interface {
	Publish(ctx context.Context, snapshot api.ProgressEvent) error
}

// ProgressBroadcaster derives progress snapshots from merger state at a
// bounded cadence: every K merged chunks or every T interval, whichever
// comes first. Snapshots are idempotent and monotonic in rows processed.
type ProgressBroadcaster struct {
	sink        ProgressSink
	jobID       uuid.UUID
	interval    time.Duration
	everyChunks int
	maxFailures int

	notifyCh chan struct{}

	mu              sync.Mutex
	state           Snapshot
	chunksSinceEmit int
	lastEmittedRows int64
	sequence        int64
}

func NewProgressBroadcaster(sink ProgressSink, jobID uuid.UUID, interval time.Duration, everyChunks int, maxFailures int) *ProgressBroadcaster {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if everyChunks < 1 {
		everyChunks = 1
	}
	if maxFailures < 1 {
		maxFailures = 3
	}
	return &ProgressBroadcaster{
		sink:        sink,
		jobID:       jobID,
		interval:    interval,
		everyChunks: everyChunks,
		maxFailures: maxFailures,
		notifyCh:    make(chan struct{}, 1),
	}
}

// Update folds one merged chunk into the progress state. Called only from
// the orchestrator's fan-out loop, never concurrently with itself.
func (b *ProgressBroadcaster) Update(result *ChunkResult) {
	b.mu.Lock()
	b.state.RowsProcessed += result.RowCount()
	for _, f := range result.Findings {
		switch f.Severity {
		case api.SeverityError:
			b.state.ErrorCount++
		case api.SeverityWarning:
			b.state.WarningCount++
		}
	}
	b.chunksSinceEmit++
	due := b.chunksSinceEmit >= b.everyChunks
	b.mu.Unlock()

	if due {
		select {
		case b.notifyCh <- struct{}{}:
		default:
		}
	}
}

// SetTotal records the total row count once the reader reaches the end of
// the source.
func (b *ProgressBroadcaster) SetTotal(total int64) {
	b.mu.Lock()
	b.state.RowsTotal = &total
	b.mu.Unlock()
}

// Current returns the latest progress state.
func (b *ProgressBroadcaster) Current() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Run emits snapshots until the context is cancelled. A jittered ticker
// provides the time-based cadence; chunk-count notifications provide the
// other half. Publish failures are tolerated up to maxFailures in a row.
func (b *ProgressBroadcaster) Run(ctx context.Context) error {
	ticker := jitterbug.New(b.interval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-b.notifyCh:
		}

		if err := b.Emit(ctx); err != nil {
			failures++
			zap.S().Named("progress").Warnw("snapshot publish failed", "failures", failures, "error", err)
			if failures >= b.maxFailures {
				return NewSinkFault("progress", err)
			}
			continue
		}
		failures = 0
	}
}

// Emit publishes the current snapshot if rows processed advanced since the
// last publish. A consumer that misses intermediate snapshots loses only
// granularity.
func (b *ProgressBroadcaster) Emit(ctx context.Context) error {
	b.mu.Lock()
	if b.state.RowsProcessed == b.lastEmittedRows && b.sequence > 0 {
		b.mu.Unlock()
		return nil
	}
	b.sequence++
	event := api.ProgressEvent{
		JobId:         b.jobID,
		Sequence:      b.sequence,
		RowsProcessed: b.state.RowsProcessed,
		RowsTotal:     b.state.RowsTotal,
		ErrorCount:    b.state.ErrorCount,
		WarningCount:  b.state.WarningCount,
		Timestamp:     time.Now().UTC(),
	}
	b.lastEmittedRows = b.state.RowsProcessed
	b.chunksSinceEmit = 0
	b.mu.Unlock()

	return b.sink.Publish(ctx, event)
}
