// Package v1alpha1 holds the wire types exchanged with API callers and
// event subscribers.
package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type RowStatus string

const (
	RowStatusOk      RowStatus = "ok"
	RowStatusWarning RowStatus = "warning"
	RowStatusError   RowStatus = "error"
)

type FailurePolicy string

const (
	FailurePolicyStrict     FailurePolicy = "strict"
	FailurePolicyBestEffort FailurePolicy = "best-effort"
)

// Job is the API view of a validation job.
type Job struct {
	Id              uuid.UUID  `json:"id"`
	FileName        string     `json:"file_name"`
	SourceKey       string     `json:"source_key"`
	RuleSetId       uuid.UUID  `json:"rule_set_id"`
	Status          JobStatus  `json:"status"`
	StatusInfo      string     `json:"status_info,omitempty"`
	TotalRows       *int64     `json:"total_rows,omitempty"`
	ProcessedRows   int64      `json:"processed_rows"`
	ProgressPercent float64    `json:"progress_percent"`
	OutputKey       string     `json:"output_key,omitempty"`
	ReportKey       string     `json:"report_key,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// JobSubmission is the payload accepted from the API layer when a caller
// submits a file for validation.
type JobSubmission struct {
	FileName        string        `json:"file_name" validate:"required,file_name"`
	RuleSetId       uuid.UUID     `json:"rule_set_id" validate:"required"`
	ChunkSize       *int          `json:"chunk_size,omitempty" validate:"omitempty,gt=0"`
	Concurrency     *int          `json:"concurrency,omitempty" validate:"omitempty,gt=0"`
	OnFailurePolicy FailurePolicy `json:"on_failure_policy,omitempty" validate:"omitempty,failure_policy"`
}

// Finding is one rule's verdict against one row or cell.
type Finding struct {
	RuleId   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	RowIndex int64    `json:"row_index"`
	Column   string   `json:"column,omitempty"`
}

type SeverityCounts struct {
	Error   int64 `json:"error"`
	Warning int64 `json:"warning"`
	Info    int64 `json:"info"`
}

// ValidationReport is the final aggregate handed back to callers. Findings
// above the inline threshold are not embedded; FindingsKey points to the
// full report object instead.
type ValidationReport struct {
	JobId       uuid.UUID      `json:"job_id"`
	TotalRows   int64          `json:"total_rows"`
	Counts      SeverityCounts `json:"counts"`
	Findings    []Finding      `json:"findings,omitempty"`
	FindingsKey string         `json:"findings_key,omitempty"`
	Incomplete  bool           `json:"incomplete"`
	StopReason  string         `json:"stop_reason,omitempty"`
	Stages      []StageTiming  `json:"stages,omitempty"`
}

// StageTiming records the wall-clock duration of one pipeline step.
type StageTiming struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_seconds"`
}

// ProgressEvent is emitted to the pub/sub transport at a bounded cadence.
// Consumers must treat it as idempotent state, not a delta.
type ProgressEvent struct {
	JobId         uuid.UUID `json:"job_id"`
	Sequence      int64     `json:"sequence"`
	RowsProcessed int64     `json:"rows_processed"`
	RowsTotal     *int64    `json:"rows_total"`
	ErrorCount    int64     `json:"error_count"`
	WarningCount  int64     `json:"warning_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// AuditEvent is the append-only audit record handed to the audit sink,
// ordered by sequence.
type AuditEvent struct {
	JobId     uuid.UUID `json:"job_id"`
	Sequence  int64     `json:"sequence"`
	RowIndex  int64     `json:"row_index"`
	RuleId    string    `json:"rule_id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// JobEvent is the terminal notification carrying presigned result URLs.
type JobEvent struct {
	JobId        uuid.UUID `json:"job_id"`
	Status       JobStatus `json:"status"`
	StatusInfo   string    `json:"status_info,omitempty"`
	OutputURL    string    `json:"output_url,omitempty"`
	ReportURL    string    `json:"report_url,omitempty"`
	SuccessCount int64     `json:"success_count"`
	FailureCount int64     `json:"failure_count"`
}

// RuleSet is a named, versioned rule configuration.
type RuleSet struct {
	Id         uuid.UUID        `json:"id"`
	Name       string           `json:"name"`
	Version    int              `json:"version"`
	Rules      []RuleDefinition `json:"rules"`
	Unique     []string         `json:"unique_constraints,omitempty"`
	UniqueMode string           `json:"unique_mode,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// RuleDefinition is the wire form of a single rule: a closed tagged variant
// over rule kinds, each carrying its parameters.
type RuleDefinition struct {
	Id       string   `json:"id" validate:"required"`
	Kind     string   `json:"kind" validate:"required,rule_kind"`
	Column   string   `json:"column,omitempty"`
	Severity Severity `json:"severity,omitempty" validate:"omitempty,severity"`

	// type check
	Type string `json:"type,omitempty"`
	// numeric/date range
	Min *string `json:"min,omitempty"`
	Max *string `json:"max,omitempty"`
	// regex pattern
	Pattern string `json:"pattern,omitempty"`
	// cross-field comparison
	Operator    string `json:"operator,omitempty"`
	OtherColumn string `json:"other_column,omitempty"`
	// custom expression (rego body)
	Expression string `json:"expression,omitempty"`
}

func StringToJobStatus(s string) JobStatus {
	switch s {
	case string(JobStatusPending):
		return JobStatusPending
	case string(JobStatusRunning):
		return JobStatusRunning
	case string(JobStatusCompleted):
		return JobStatusCompleted
	case string(JobStatusFailed):
		return JobStatusFailed
	case string(JobStatusCancelled):
		return JobStatusCancelled
	default:
		return JobStatusPending
	}
}
