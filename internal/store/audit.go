package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/store/model"
)

type Audit interface {
	InitialMigration() error
	Append(ctx context.Context, entries []api.AuditEvent) error
	List(ctx context.Context, jobID uuid.UUID, afterSequence int64, limit int) ([]api.AuditEvent, error)
	Count(ctx context.Context, jobID uuid.UUID) (int64, error)
}

type AuditStore struct {
	db *gorm.DB
}

// Make sure we conform to Audit interface
var _ Audit = (*AuditStore)(nil)

func NewAuditStore(db *gorm.DB) Audit {
	return &AuditStore{db: db}
}

func (s *AuditStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.AuditEntry{})
}

// Append writes a batch of entries in one insert. The whole batch either
// lands or the caller retries it; the (job_id, sequence) unique index makes
// a redelivered batch fail loudly instead of duplicating history.
func (s *AuditStore) Append(ctx context.Context, entries []api.AuditEvent) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]model.AuditEntry, 0, len(entries))
	for i := range entries {
		records = append(records, model.NewAuditEntryFromApiResource(&entries[i]))
	}
	if err := s.getDB(ctx).Create(&records).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, jobID uuid.UUID, afterSequence int64, limit int) ([]api.AuditEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	var entries model.AuditEntryList
	err := s.getDB(ctx).
		Where("job_id = ? AND sequence > ?", jobID, afterSequence).
		Order("sequence").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries.ToApiResource(), nil
}

func (s *AuditStore) Count(ctx context.Context, jobID uuid.UUID) (int64, error) {
	var count int64
	err := s.getDB(ctx).
		Model(&model.AuditEntry{}).
		Where("job_id = ?", jobID).
		Count(&count).Error
	return count, err
}

func (s *AuditStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
