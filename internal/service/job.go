package service

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/jobs"
	"github.com/tabval/validation-service/internal/pipeline"
	"github.com/tabval/validation-service/internal/storage"
	"github.com/tabval/validation-service/internal/store"
	"github.com/tabval/validation-service/internal/store/model"
)

type JobService struct {
	store       store.Store
	objectStore *storage.ObjectStore
	client      *jobs.Client
	registry    *pipeline.JobRegistry
}

func NewJobService(s store.Store, objectStore *storage.ObjectStore, client *jobs.Client, registry *pipeline.JobRegistry) *JobService {
	return &JobService{
		store:       s,
		objectStore: objectStore,
		client:      client,
		registry:    registry,
	}
}

// Submit accepts a validation request: the file is parked in the object
// store, the job row is created pending and the background job is queued.
// Validation itself happens asynchronously.
func (s *JobService) Submit(ctx context.Context, submission api.JobSubmission, file io.Reader) (*api.Job, error) {
	if _, err := s.store.RuleSet().Get(ctx, submission.RuleSetId); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrRuleSetNotFound(submission.RuleSetId)
		}
		return nil, err
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, NewErrFileCorrupted(err.Error())
	}
	if len(content) == 0 {
		return nil, NewErrFileCorrupted("uploaded file is empty")
	}

	jobID := uuid.New()
	sourceKey := s.objectStore.SourceKey(jobID, submission.FileName)
	if err := s.objectStore.Put(ctx, sourceKey, content, "application/octet-stream"); err != nil {
		return nil, err
	}

	created, err := s.store.Job().Create(ctx, model.Job{
		ID:        jobID,
		FileName:  submission.FileName,
		SourceKey: sourceKey,
		RuleSetID: submission.RuleSetId,
		Status:    model.JobStatusPending,
	})
	if err != nil {
		return nil, err
	}

	args := jobs.ValidationArgs{JobID: jobID}
	if submission.ChunkSize != nil {
		args.ChunkSize = *submission.ChunkSize
	}
	if submission.Concurrency != nil {
		args.Concurrency = *submission.Concurrency
	}
	if submission.OnFailurePolicy != "" {
		args.OnFailurePolicy = string(submission.OnFailurePolicy)
	}

	if _, err := s.client.InsertJob(ctx, args); err != nil {
		// the row stays around as failed so the caller can see what happened
		if _, ferr := s.store.Job().Finalize(ctx, jobID, model.Job{
			Status:     model.JobStatusFailed,
			StatusInfo: "failed to enqueue validation job",
		}); ferr != nil {
			zap.S().Named("service").Errorw("failed to finalize unqueued job", "job_id", jobID, "error", ferr)
		}
		return nil, err
	}

	zap.S().Named("service").Infow("validation job submitted", "job_id", jobID, "file", submission.FileName)
	return created, nil
}

func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (s *JobService) List(ctx context.Context) ([]api.Job, error) {
	return s.store.Job().List(ctx)
}

// Cancel flips the job to cancelled. A running pipeline is signalled
// through the registry and drains its in-flight chunks; a queued job is
// cancelled directly on its row so the worker skips it on pickup.
func (s *JobService) Cancel(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	if model.IsTerminalStatus(string(job.Status)) {
		return nil, NewErrJobAlreadyCompleted(id)
	}

	if s.registry.Cancel(id) {
		// the worker finalizes the row once the pipeline drains
		zap.S().Named("service").Infow("cancellation requested for running job", "job_id", id)
		return job, nil
	}

	updated, err := s.store.Job().UpdateStatus(ctx, id, model.JobStatusCancelled, "cancelled before start")
	if err != nil {
		if errors.Is(err, store.ErrUpdateTerminalJob) {
			return nil, NewErrJobAlreadyCompleted(id)
		}
		return nil, err
	}
	return updated, nil
}

// GetReport returns the stored validation report of a finished job.
func (s *JobService) GetReport(ctx context.Context, id uuid.UUID) ([]byte, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	if !model.IsTerminalStatus(string(job.Status)) {
		return nil, NewErrJobNotCompleted(id)
	}

	report, err := s.store.Job().GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(report) == 0 {
		return nil, NewErrJobNotCompleted(id)
	}
	return report, nil
}

// ListAuditEvents pages through a job's audit trail in sequence order.
func (s *JobService) ListAuditEvents(ctx context.Context, id uuid.UUID, afterSequence int64, limit int) ([]api.AuditEvent, error) {
	if _, err := s.store.Job().Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return s.store.Audit().List(ctx, id, afterSequence, limit)
}
