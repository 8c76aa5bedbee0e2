package model

import (
	"time"

	"github.com/google/uuid"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// AuditEntry is append-only: rows are never updated or deleted by the
// service. (job_id, sequence) is unique; sequence numbers are gapless per
// job.
type AuditEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	JobID     uuid.UUID `gorm:"uniqueIndex:audit_job_sequence;not null"`
	Sequence  int64     `gorm:"uniqueIndex:audit_job_sequence;not null"`
	RowIndex  int64
	RuleID    string
	Severity  string
	Message   string
	Timestamp time.Time
}

type AuditEntryList []AuditEntry

func (a *AuditEntry) ToApiResource() api.AuditEvent {
	return api.AuditEvent{
		JobId:     a.JobID,
		Sequence:  a.Sequence,
		RowIndex:  a.RowIndex,
		RuleId:    a.RuleID,
		Severity:  api.Severity(a.Severity),
		Message:   a.Message,
		Timestamp: a.Timestamp,
	}
}

func NewAuditEntryFromApiResource(resource *api.AuditEvent) AuditEntry {
	return AuditEntry{
		JobID:     resource.JobId,
		Sequence:  resource.Sequence,
		RowIndex:  resource.RowIndex,
		RuleID:    resource.RuleId,
		Severity:  string(resource.Severity),
		Message:   resource.Message,
		Timestamp: resource.Timestamp,
	}
}

func (al AuditEntryList) ToApiResource() []api.AuditEvent {
	entries := make([]api.AuditEvent, 0, len(al))
	for i := range al {
		entries = append(entries, al[i].ToApiResource())
	}
	return entries
}
