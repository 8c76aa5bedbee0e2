package pipeline

import (
	"context"
	"errors"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/pipeline/engine"
	"github.com/tabval/validation-service/pkg/metrics"
)

// Options bound the pipeline's resources and select its policies. Values
// left zero fall back to defaults.
type Options struct {
	ChunkSize        int
	Concurrency      int
	QueueDepth       int
	OnFailurePolicy  api.FailurePolicy
	AuditGranularity AuditGranularity
	ProgressInterval time.Duration
	ProgressChunks   int
	SinkRetries      int
}

func (o *Options) withDefaults() {
	if o.ChunkSize < 1 {
		o.ChunkSize = 500
	}
	if o.Concurrency < 1 {
		o.Concurrency = min(runtime.NumCPU(), 8)
	}
	if o.QueueDepth < 1 {
		o.QueueDepth = 4
	}
	if o.OnFailurePolicy == "" {
		o.OnFailurePolicy = api.FailurePolicyStrict
	}
	if o.AuditGranularity == "" {
		o.AuditGranularity = GranularityFine
	}
	if o.ProgressChunks < 1 {
		o.ProgressChunks = 10
	}
	if o.SinkRetries < 1 {
		o.SinkRetries = 3
	}
}

// Result is the pipeline's terminal outcome, assembled into the validation
// report by the caller.
type Result struct {
	Status      api.JobStatus
	TotalRows   int64
	SuccessRows int64
	FailureRows int64
	Counts      api.SeverityCounts
	Findings    []api.Finding
	Incomplete  bool
	StopReason  string
	Stages      []api.StageTiming
}

// Pipeline owns one job's lifecycle: it starts the reader, the worker pool,
// the merger and the sinks, drives backpressure through bounded queues, and
// finalizes the job.
type Pipeline struct {
	jobID        uuid.UUID
	engine       *engine.Engine
	annotator    Annotator
	auditSink    AuditSink
	progressSink ProgressSink
	opts         Options
}

func New(jobID uuid.UUID, e *engine.Engine, annotator Annotator, auditSink AuditSink, progressSink ProgressSink, opts Options) *Pipeline {
	opts.withDefaults()
	return &Pipeline{
		jobID:        jobID,
		engine:       e,
		annotator:    annotator,
		auditSink:    auditSink,
		progressSink: progressSink,
		opts:         opts,
	}
}

// runState is written only by the fan-out stage and read after the stage
// group has finished.
type runState struct {
	result    Result
	ingestErr error
	rowsRead  int64
	totalSet  bool
}

// Run executes the pipeline to a terminal state. The returned error is nil
// for Completed and Cancelled outcomes; Failed outcomes return the causing
// error alongside the partial result.
func (p *Pipeline) Run(ctx context.Context, reader ChunkReader) (*Result, error) {
	logger := zap.S().Named("pipeline").With("job_id", p.jobID)
	started := time.Now()
	profiler := newStepProfiler()

	seq := &Sequence{}
	pool := NewWorkerPool(p.engine, p.opts.Concurrency)
	merger := NewMerger()
	recorder := NewAuditRecorder(p.auditSink, seq, p.jobID, p.opts.AuditGranularity, p.opts.SinkRetries)
	progress := NewProgressBroadcaster(p.progressSink, p.jobID, p.opts.ProgressInterval, p.opts.ProgressChunks, p.opts.SinkRetries)

	// External cancellation is observed only at the chunk-dispatch boundary:
	// the reader stops admitting chunks and the rest of the pipeline drains.
	// The stage context aborts the queues only on an internal stage error.
	g, stageCtx := errgroup.WithContext(context.WithoutCancel(ctx))

	chunks := make(chan *Chunk, p.opts.QueueDepth)
	results := make(chan *ChunkResult, p.opts.Concurrency+p.opts.QueueDepth)
	merged := make(chan *ChunkResult, p.opts.QueueDepth)
	auditCh := make(chan *ChunkResult, p.opts.QueueDepth)

	state := &runState{}

	g.Go(func() error {
		return p.readStage(ctx, stageCtx, reader, chunks, state, progress)
	})
	g.Go(func() error {
		return pool.Run(stageCtx, chunks, results)
	})
	g.Go(func() error {
		return merger.Run(stageCtx, results, merged)
	})
	g.Go(func() error {
		defer close(auditCh)
		return p.fanOutStage(stageCtx, merged, auditCh, state, progress)
	})
	g.Go(func() error {
		return recorder.Run(stageCtx, auditCh)
	})

	progressCtx, stopProgress := context.WithCancel(context.WithoutCancel(ctx))
	progressErr := make(chan error, 1)
	go func() {
		progressErr <- progress.Run(progressCtx)
	}()

	stageErr := g.Wait()
	profiler.step("validate")

	closeErr := p.annotator.Close()
	profiler.step("finalize_output")

	stopProgress()
	publishErr := <-progressErr
	finalCtx, cancelFinal := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelFinal()
	if err := progress.Emit(finalCtx); err != nil {
		metrics.IncreaseEventPublishErrorsMetric()
		logger.Warnw("final progress snapshot publish failed", "error", err)
	}

	state.result.Stages = profiler.stages()
	p.finalize(ctx, state, stageErr, closeErr, publishErr)

	metrics.IncreaseJobsTotalMetric(string(state.result.Status))
	metrics.AddRowsValidatedMetric(int(state.result.TotalRows))
	metrics.ObserveJobDurationMetric(time.Since(started))

	logger.Infow("pipeline finished",
		"status", state.result.Status,
		"rows", state.result.TotalRows,
		"errors", state.result.Counts.Error,
		"warnings", state.result.Counts.Warning,
		"duration", time.Since(started),
	)

	if state.result.Status == api.JobStatusFailed {
		return &state.result, errors.New(state.result.StopReason)
	}
	return &state.result, nil
}

// readStage pulls chunks from the reader and dispatches them in emission
// order. An ingestion failure terminates the sequence but everything
// already read keeps flowing downstream.
func (p *Pipeline) readStage(ctx, stageCtx context.Context, reader ChunkReader, chunks chan<- *Chunk, state *runState, progress *ProgressBroadcaster) error {
	defer close(chunks)
	defer func() {
		if err := reader.Close(); err != nil {
			zap.S().Named("pipeline").Warnw("closing reader", "error", err)
		}
	}()

	for {
		// Cancellation is checked at the dispatch boundary: no chunk is
		// admitted after the flag is observed.
		if ctx.Err() != nil {
			return nil
		}

		chunk, err := reader.Next(stageCtx)
		if err == io.EOF {
			state.totalSet = true
			progress.SetTotal(state.rowsRead)
			return nil
		}
		if err != nil {
			var ingest *IngestionError
			if errors.As(err, &ingest) {
				state.ingestErr = ingest
				return nil
			}
			return err
		}

		state.rowsRead += int64(len(chunk.Rows))

		select {
		case chunks <- chunk:
		case <-stageCtx.Done():
			return stageCtx.Err()
		}
	}
}

// fanOutStage consumes the ordered result stream and feeds the three sinks.
// The annotator writes inline (strictly sequential per job); the audit
// recorder gets its own bounded queue; progress is folded into shared state.
func (p *Pipeline) fanOutStage(stageCtx context.Context, merged <-chan *ChunkResult, auditCh chan<- *ChunkResult, state *runState, progress *ProgressBroadcaster) error {
	for {
		select {
		case <-stageCtx.Done():
			return stageCtx.Err()
		case result, ok := <-merged:
			if !ok {
				return nil
			}

			if !result.Exhaustive {
				state.result.Incomplete = true
				if p.opts.OnFailurePolicy == api.FailurePolicyStrict {
					return NewChunkWorkerFault(result.Index, "chunk not exhaustive under strict policy")
				}
			}

			if err := p.annotator.WriteChunk(result); err != nil {
				return err
			}

			select {
			case auditCh <- result:
			case <-stageCtx.Done():
				return stageCtx.Err()
			}

			progress.Update(result)
			p.accumulate(state, result)
		}
	}
}

func (p *Pipeline) accumulate(state *runState, result *ChunkResult) {
	state.result.TotalRows += result.RowCount()
	state.result.Findings = append(state.result.Findings, result.Findings...)
	for _, f := range result.Findings {
		switch f.Severity {
		case api.SeverityError:
			state.result.Counts.Error++
		case api.SeverityWarning:
			state.result.Counts.Warning++
		case api.SeverityInfo:
			state.result.Counts.Info++
		}
	}
	for _, s := range result.Statuses {
		if s == api.RowStatusError {
			state.result.FailureRows++
		} else {
			state.result.SuccessRows++
		}
	}

	metrics.IncreaseFindingsMetric(string(api.SeverityError), countSeverity(result.Findings, api.SeverityError))
	metrics.IncreaseFindingsMetric(string(api.SeverityWarning), countSeverity(result.Findings, api.SeverityWarning))
}

// finalize resolves the terminal state from the collected outcomes. The
// final status plus report always explain why the job stopped.
func (p *Pipeline) finalize(ctx context.Context, state *runState, stageErr, closeErr, publishErr error) {
	r := &state.result

	switch {
	case stageErr != nil && !errors.Is(stageErr, context.Canceled):
		r.Status = api.JobStatusFailed
		r.Incomplete = true
		r.StopReason = stopReason(stageErr)
	case state.ingestErr != nil:
		r.Status = api.JobStatusFailed
		r.Incomplete = true
		r.StopReason = stopReason(state.ingestErr)
	case closeErr != nil:
		r.Status = api.JobStatusFailed
		r.Incomplete = true
		r.StopReason = stopReason(closeErr)
	case publishErr != nil:
		r.Status = api.JobStatusFailed
		r.Incomplete = true
		r.StopReason = stopReason(publishErr)
	case ctx.Err() != nil:
		// Timeout is externally triggered cancellation after a deadline.
		r.Status = api.JobStatusCancelled
		r.Incomplete = true
		r.StopReason = "cancellation requested"
	default:
		r.Status = api.JobStatusCompleted
	}
}

func stopReason(err error) string {
	var ingest *IngestionError
	var worker *ChunkWorkerFault
	var sink *SinkFault
	switch {
	case errors.As(err, &ingest):
		return "ingestion error: " + ingest.Error()
	case errors.As(err, &worker):
		return "chunk worker fault: " + worker.Error()
	case errors.As(err, &sink):
		return "sink failure: " + sink.Error()
	default:
		return err.Error()
	}
}

func countSeverity(findings []api.Finding, severity api.Severity) int {
	n := 0
	for _, f := range findings {
		if f.Severity == severity {
			n++
		}
	}
	return n
}

type stepProfiler struct {
	last   time.Time
	timing []api.StageTiming
}

func newStepProfiler() *stepProfiler {
	return &stepProfiler{last: time.Now()}
}

func (p *stepProfiler) step(name string) {
	now := time.Now()
	p.timing = append(p.timing, api.StageTiming{Name: name, Duration: now.Sub(p.last).Seconds()})
	p.last = now
}

func (p *stepProfiler) stages() []api.StageTiming {
	return p.timing
}
