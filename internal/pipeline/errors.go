package pipeline

import (
	"errors"
	"fmt"
)

// ErrCancelled marks the cancellation path. It is a recognized terminal
// outcome, not a failure: a partial report is still produced.
var ErrCancelled = errors.New("validation cancelled")

// IngestionError reports a malformed or unreadable source file. It is fatal
// to the job; rows read before the error are still flushed downstream.
type IngestionError struct {
	error
}

func NewIngestionError(format string, args ...any) *IngestionError {
	return &IngestionError{fmt.Errorf(format, args...)}
}

func (e *IngestionError) Unwrap() error { return e.error }

// ChunkWorkerFault reports a worker crash mid-chunk. Whether it fails the
// whole job depends on the configured failure policy.
type ChunkWorkerFault struct {
	ChunkIndex int
	error
}

func NewChunkWorkerFault(chunkIndex int, cause any) *ChunkWorkerFault {
	return &ChunkWorkerFault{ChunkIndex: chunkIndex, error: fmt.Errorf("worker fault on chunk %d: %v", chunkIndex, cause)}
}

func (e *ChunkWorkerFault) Unwrap() error { return e.error }

// SinkFault reports a write failure of one of the result sinks after the
// bounded retries were exhausted.
type SinkFault struct {
	Sink string
	error
}

func NewSinkFault(sink string, err error) *SinkFault {
	return &SinkFault{Sink: sink, error: fmt.Errorf("%s sink: %w", sink, err)}
}

func (e *SinkFault) Unwrap() error { return e.error }
