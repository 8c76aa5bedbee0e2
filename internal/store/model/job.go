package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// Job status values, mirroring the pipeline state machine. Completed,
// failed and cancelled are terminal: the row is never mutated afterwards.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

type Job struct {
	ID              uuid.UUID `gorm:"primaryKey;"`
	FileName        string    `gorm:"not null"`
	SourceKey       string    `gorm:"not null"`
	RuleSetID       uuid.UUID `gorm:"index;not null"`
	Status          string    `gorm:"index;not null;default:pending"`
	StatusInfo      string
	TotalRows       *int64
	ProcessedRows   int64
	ProgressPercent float64
	SuccessCount    int64
	FailureCount    int64
	OutputKey       string
	ReportKey       string
	Report          []byte `gorm:"type:jsonb"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

func (j *Job) ToApiResource() api.Job {
	return api.Job{
		Id:              j.ID,
		FileName:        j.FileName,
		SourceKey:       j.SourceKey,
		RuleSetId:       j.RuleSetID,
		Status:          api.StringToJobStatus(j.Status),
		StatusInfo:      j.StatusInfo,
		TotalRows:       j.TotalRows,
		ProcessedRows:   j.ProcessedRows,
		ProgressPercent: j.ProgressPercent,
		OutputKey:       j.OutputKey,
		ReportKey:       j.ReportKey,
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
	}
}

func (jl JobList) ToApiResource() []api.Job {
	jobs := make([]api.Job, 0, len(jl))
	for i := range jl {
		jobs = append(jobs, jl[i].ToApiResource())
	}
	return jobs
}
