package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// AuditGranularity selects how many audit entries a chunk produces.
type AuditGranularity string

const (
	// GranularityFine appends one entry per finding.
	GranularityFine AuditGranularity = "fine"
	// GranularityCoarse appends one entry per chunk.
	GranularityCoarse AuditGranularity = "coarse"
)

// Sequence is the single authority issuing audit sequence numbers. Issued
// numbers are gapless, strictly increasing and never reused.
type Sequence struct {
	n atomic.Int64
}

func (s *Sequence) Next() int64    { return s.n.Add(1) }
func (s *Sequence) Current() int64 { return s.n.Load() }

// AuditSink is the boundary to the audit-trail collaborator. Append must be
// atomic per call from the recorder's perspective.
type AuditSink interface {
	Append(ctx context.Context, entries []api.AuditEvent) error
}

// AuditRecorder converts merged chunk results into immutable audit entries.
// Appends are retried with bounded backoff; exhaustion escalates to a
// SinkFault that fails the job.
type AuditRecorder struct {
	sink        AuditSink
	seq         *Sequence
	jobID       uuid.UUID
	granularity AuditGranularity
	retries     int
}

func NewAuditRecorder(sink AuditSink, seq *Sequence, jobID uuid.UUID, granularity AuditGranularity, retries int) *AuditRecorder {
	if granularity == "" {
		granularity = GranularityFine
	}
	if retries < 1 {
		retries = 1
	}
	return &AuditRecorder{
		sink:        sink,
		seq:         seq,
		jobID:       jobID,
		granularity: granularity,
		retries:     retries,
	}
}

// Run drains the input queue. Returning nil means every entry has been
// acknowledged by the sink, which the orchestrator requires before marking
// the job completed.
func (r *AuditRecorder) Run(ctx context.Context, in <-chan *ChunkResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-in:
			if !ok {
				return nil
			}
			entries := r.entriesFor(result)
			if len(entries) == 0 {
				continue
			}
			if err := r.appendWithRetry(ctx, entries); err != nil {
				return NewSinkFault("audit", err)
			}
		}
	}
}

func (r *AuditRecorder) entriesFor(result *ChunkResult) []api.AuditEvent {
	now := time.Now().UTC()

	if r.granularity == GranularityCoarse {
		var firstRow int64
		if len(result.Rows) > 0 {
			firstRow = result.Rows[0].Idx
		}
		return []api.AuditEvent{{
			JobId:     r.jobID,
			Sequence:  r.seq.Next(),
			RowIndex:  firstRow,
			RuleId:    "chunk",
			Severity:  api.SeverityInfo,
			Message:   fmt.Sprintf("chunk %d: %d rows, %d findings", result.Index, len(result.Rows), len(result.Findings)),
			Timestamp: now,
		}}
	}

	entries := make([]api.AuditEvent, 0, len(result.Findings))
	for _, f := range result.Findings {
		entries = append(entries, api.AuditEvent{
			JobId:     r.jobID,
			Sequence:  r.seq.Next(),
			RowIndex:  f.RowIndex,
			RuleId:    f.RuleId,
			Severity:  f.Severity,
			Message:   f.Message,
			Timestamp: now,
		})
	}
	return entries
}

func (r *AuditRecorder) appendWithRetry(ctx context.Context, entries []api.AuditEvent) error {
	backoff := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt < r.retries; attempt++ {
		if err = r.sink.Append(ctx, entries); err == nil {
			return nil
		}
		zap.S().Named("audit").Warnw("audit append failed", "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
