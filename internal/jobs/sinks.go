package jobs

import (
	"context"

	"go.uber.org/zap"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/pipeline"
	"github.com/tabval/validation-service/internal/store"
)

// compositeAuditSink lands every batch in the database first and then
// mirrors it to the event stream. The database is the sink of record: a
// failed insert fails the batch, a failed event publish is logged and
// dropped.
type compositeAuditSink struct {
	store     store.Audit
	publisher pipeline.AuditSink
}

var _ pipeline.AuditSink = (*compositeAuditSink)(nil)

func newCompositeAuditSink(auditStore store.Audit, publisher pipeline.AuditSink) *compositeAuditSink {
	return &compositeAuditSink{store: auditStore, publisher: publisher}
}

func (s *compositeAuditSink) Append(ctx context.Context, entries []api.AuditEvent) error {
	if err := s.store.Append(ctx, entries); err != nil {
		return err
	}
	if err := s.publisher.Append(ctx, entries); err != nil {
		zap.S().Named("jobs").Warnw("audit event publish failed", "error", err)
	}
	return nil
}

// storeProgressSink persists each snapshot on the job row and forwards it
// to the event stream. Snapshots are idempotent so a lost one is made up
// for by the next.
type storeProgressSink struct {
	jobs      store.Job
	publisher pipeline.ProgressSink
}

var _ pipeline.ProgressSink = (*storeProgressSink)(nil)

func newStoreProgressSink(jobs store.Job, publisher pipeline.ProgressSink) *storeProgressSink {
	return &storeProgressSink{jobs: jobs, publisher: publisher}
}

func (s *storeProgressSink) Publish(ctx context.Context, snapshot api.ProgressEvent) error {
	percent := float64(0)
	if snapshot.RowsTotal != nil && *snapshot.RowsTotal > 0 {
		percent = float64(snapshot.RowsProcessed) / float64(*snapshot.RowsTotal) * 100
	}
	if err := s.jobs.UpdateProgress(ctx, snapshot.JobId, snapshot.RowsProcessed, snapshot.RowsTotal, percent); err != nil {
		return err
	}
	return s.publisher.Publish(ctx, snapshot)
}
