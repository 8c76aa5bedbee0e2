package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/store/model"
)

type Job interface {
	InitialMigration() error
	Create(ctx context.Context, job model.Job) (*api.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*api.Job, error)
	List(ctx context.Context) ([]api.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, statusInfo string) (*api.Job, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, processed int64, total *int64, percent float64) error
	Finalize(ctx context.Context, id uuid.UUID, final model.Job) (*api.Job, error)
	GetReport(ctx context.Context, id uuid.UUID) ([]byte, error)
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Job{})
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*api.Job, error) {
	if err := s.getDB(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	created := job.ToApiResource()
	return &created, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*api.Job, error) {
	job := model.Job{ID: id}
	if err := s.getDB(ctx).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	apiJob := job.ToApiResource()
	return &apiJob, nil
}

func (s *JobStore) List(ctx context.Context) ([]api.Job, error) {
	var jobs model.JobList
	if err := s.getDB(ctx).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs.ToApiResource(), nil
}

// UpdateStatus refuses to move a job out of a terminal status. The
// terminal guard lives in the WHERE clause so concurrent writers cannot
// race past it.
func (s *JobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string, statusInfo string) (*api.Job, error) {
	job := model.Job{ID: id, Status: status, StatusInfo: statusInfo}

	result := s.getDB(ctx).
		Model(&job).
		Clauses(clause.Returning{}).
		Where("id = ? AND status NOT IN ?", id, []string{model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled}).
		Select("status", "status_info").
		Updates(&job)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrUpdateTerminalJob
	}

	apiJob := job.ToApiResource()
	return &apiJob, nil
}

func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, processed int64, total *int64, percent float64) error {
	updates := map[string]interface{}{
		"processed_rows":   processed,
		"progress_percent": percent,
	}
	if total != nil {
		updates["total_rows"] = *total
	}

	result := s.getDB(ctx).
		Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusRunning).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	// a job cancelled between two snapshots simply stops absorbing them
	return nil
}

// Finalize writes the terminal status and the result columns in one
// update. Only fields describing the outcome are taken from final.
func (s *JobStore) Finalize(ctx context.Context, id uuid.UUID, final model.Job) (*api.Job, error) {
	if !model.IsTerminalStatus(final.Status) {
		return nil, errors.New("finalize requires a terminal status")
	}

	now := time.Now()
	final.ID = id
	final.CompletedAt = &now

	result := s.getDB(ctx).
		Model(&final).
		Clauses(clause.Returning{}).
		Where("id = ? AND status NOT IN ?", id, []string{model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled}).
		Select("status", "status_info", "processed_rows", "total_rows", "progress_percent",
			"success_count", "failure_count", "output_key", "report_key", "report", "completed_at").
		Updates(&final)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrUpdateTerminalJob
	}

	apiJob := final.ToApiResource()
	return &apiJob, nil
}

func (s *JobStore) GetReport(ctx context.Context, id uuid.UUID) ([]byte, error) {
	job := model.Job{ID: id}
	if err := s.getDB(ctx).Select("report").First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return job.Report, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
