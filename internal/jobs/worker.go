package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/config"
	"github.com/tabval/validation-service/internal/events"
	"github.com/tabval/validation-service/internal/pipeline"
	"github.com/tabval/validation-service/internal/pipeline/engine"
	"github.com/tabval/validation-service/internal/storage"
	"github.com/tabval/validation-service/internal/store"
	"github.com/tabval/validation-service/internal/store/model"
)

const (
	JobTimeout = 30 * time.Minute
	JobKind    = "tabular_validation"

	// Reports carrying more findings than this keep them in the report
	// object only and reference it by key.
	maxInlineFindings = 100

	resultURLExpiry = 24 * time.Hour
)

type ValidationArgs struct {
	JobID uuid.UUID `json:"job_id"`

	// Per-job overrides of the configured pipeline defaults.
	ChunkSize       int    `json:"chunk_size,omitempty"`
	Concurrency     int    `json:"concurrency,omitempty"`
	OnFailurePolicy string `json:"on_failure_policy,omitempty"`
}

func (ValidationArgs) Kind() string {
	return JobKind
}

func (ValidationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       DefaultQueue,
		MaxAttempts: MaxJobRetries,
	}
}

type ValidationWorker struct {
	river.WorkerDefaults[ValidationArgs]
	store       store.Store
	objectStore *storage.ObjectStore
	producer    *events.EventProducer
	registry    *pipeline.JobRegistry
	cfg         *config.Config
}

func NewValidationWorker(s store.Store, objectStore *storage.ObjectStore, producer *events.EventProducer, registry *pipeline.JobRegistry, cfg *config.Config) *ValidationWorker {
	return &ValidationWorker{
		store:       s,
		objectStore: objectStore,
		producer:    producer,
		registry:    registry,
		cfg:         cfg,
	}
}

func (w *ValidationWorker) Timeout(job *river.Job[ValidationArgs]) time.Duration {
	return JobTimeout
}

func (w *ValidationWorker) Work(ctx context.Context, job *river.Job[ValidationArgs]) error {
	logger := zap.S().Named("jobs").With("job_id", job.Args.JobID)

	// Check for cancellation before starting
	if err := ctx.Err(); err != nil {
		return err
	}

	jobRecord, err := w.store.Job().Get(ctx, job.Args.JobID)
	if err != nil {
		return err
	}

	if _, err := w.store.Job().UpdateStatus(ctx, jobRecord.Id, model.JobStatusRunning, ""); err != nil {
		if errors.Is(err, store.ErrUpdateTerminalJob) {
			// cancelled before the worker picked it up
			logger.Infow("job already terminal, skipping")
			return nil
		}
		return err
	}

	// A cancel request for this job closes jobCtx; the pipeline drains
	// in-flight chunks and finalizes as cancelled.
	jobCtx, release := w.registry.Register(ctx, jobRecord.Id)
	defer release()

	result, runErr := w.run(jobCtx, logger, jobRecord, job.Args)
	if runErr != nil && result == nil {
		w.fail(ctx, logger, jobRecord, runErr)
		return runErr
	}

	return w.complete(ctx, logger, jobRecord, result, runErr)
}

// run executes the validation pipeline and returns its result. A nil result
// means the job never produced output and must be failed outright. The
// source is streamed from the object store and the annotated output is
// streamed back through a pipe, so peak memory stays bounded by the chunk
// queue regardless of file size.
func (w *ValidationWorker) run(ctx context.Context, logger *zap.SugaredLogger, jobRecord *api.Job, args ValidationArgs) (*pipelineOutcome, error) {
	ruleSet, err := w.store.RuleSet().Get(ctx, jobRecord.RuleSetId)
	if err != nil {
		return nil, err
	}

	var dups *engine.DuplicateIndex
	if len(ruleSet.Unique) > 0 {
		if dups, err = w.buildDuplicateIndex(ctx, jobRecord, ruleSet.Unique, args.ChunkSize); err != nil {
			return nil, err
		}
	}

	eng, err := engine.Compile(ruleSet.Rules, ruleSet.Unique, ruleSet.UniqueMode, dups)
	if err != nil {
		return nil, err
	}

	source, err := w.objectStore.Get(ctx, jobRecord.SourceKey)
	if err != nil {
		return nil, err
	}

	// The reader takes ownership of the source stream and closes it.
	reader, err := pipeline.NewChunkReader(source, jobRecord.FileName, w.chunkSize(args))
	if err != nil {
		_ = source.Close()
		return nil, err
	}

	// The annotated output streams into the scratch object while the
	// verdict is still unknown; complete moves it to its final key. The
	// upload keeps running through a cancellation so partial output is
	// preserved.
	scratchKey := w.objectStore.ScratchOutputKey(jobRecord.Id)
	pr, pw := io.Pipe()
	uploadErr := make(chan error, 1)
	go func() {
		uploadErr <- w.objectStore.PutStream(context.WithoutCancel(ctx), scratchKey, pr, contentTypeFor(jobRecord.FileName))
	}()

	annotator, err := pipeline.NewAnnotator(jobRecord.FileName, reader.Header(), pw)
	if err != nil {
		_ = reader.Close()
		_ = pw.CloseWithError(err)
		<-uploadErr
		return nil, err
	}

	auditSink := newCompositeAuditSink(w.store.Audit(), events.NewAuditPublisher(w.producer))
	progressSink := newStoreProgressSink(w.store.Job(), events.NewProgressPublisher(w.producer))

	p := pipeline.New(jobRecord.Id, eng, annotator, auditSink, progressSink, w.options(args))
	result, runErr := p.Run(ctx, reader)
	if result == nil {
		_ = pw.CloseWithError(runErr)
		<-uploadErr
		return nil, runErr
	}

	_ = pw.Close()
	if err := <-uploadErr; err != nil {
		return nil, err
	}

	logger.Infow("pipeline returned",
		"status", result.Status,
		"rows", result.TotalRows,
		"incomplete", result.Incomplete,
	)

	return &pipelineOutcome{result: result, scratchKey: scratchKey}, runErr
}

type pipelineOutcome struct {
	result     *pipeline.Result
	scratchKey string
}

// complete uploads the annotated output and the report, finalizes the job
// row and emits the terminal job event. The annotated output is preserved
// for failed and cancelled outcomes as well: whatever was validated is
// worth keeping.
func (w *ValidationWorker) complete(ctx context.Context, logger *zap.SugaredLogger, jobRecord *api.Job, outcome *pipelineOutcome, runErr error) error {
	result := outcome.result
	passed := result.Status == api.JobStatusCompleted && result.Counts.Error == 0 && !result.Incomplete

	outputKey := w.objectStore.OutputKey(jobRecord.Id, jobRecord.FileName, passed)
	if err := w.objectStore.Move(ctx, outcome.scratchKey, outputKey); err != nil {
		w.fail(ctx, logger, jobRecord, err)
		return err
	}

	report := api.ValidationReport{
		JobId:      jobRecord.Id,
		TotalRows:  result.TotalRows,
		Counts:     result.Counts,
		Findings:   result.Findings,
		Incomplete: result.Incomplete,
		StopReason: result.StopReason,
		Stages:     result.Stages,
	}
	reportKey := w.objectStore.ReportKey(jobRecord.Id)
	reportJSON, err := json.Marshal(report)
	if err != nil {
		w.fail(ctx, logger, jobRecord, err)
		return err
	}
	if err := w.objectStore.Put(ctx, reportKey, reportJSON, "application/json"); err != nil {
		w.fail(ctx, logger, jobRecord, err)
		return err
	}

	stored := report
	if len(stored.Findings) > maxInlineFindings {
		stored.Findings = nil
		stored.FindingsKey = reportKey
	}
	storedJSON, err := json.Marshal(stored)
	if err != nil {
		w.fail(ctx, logger, jobRecord, err)
		return err
	}

	statusInfo := result.StopReason
	final := model.Job{
		Status:          string(result.Status),
		StatusInfo:      statusInfo,
		ProcessedRows:   result.TotalRows,
		TotalRows:       &result.TotalRows,
		ProgressPercent: 100,
		SuccessCount:    result.SuccessRows,
		FailureCount:    result.FailureRows,
		OutputKey:       outputKey,
		ReportKey:       reportKey,
		Report:          storedJSON,
	}
	if _, err := w.store.Job().Finalize(ctx, jobRecord.Id, final); err != nil && !errors.Is(err, store.ErrUpdateTerminalJob) {
		return err
	}

	w.publishJobEvent(ctx, logger, jobRecord.Id, result, outputKey, reportKey, statusInfo)

	// River retries are disabled; a failed pipeline is reported through the
	// job row and the report, not through the queue.
	if runErr != nil {
		logger.Warnw("validation finished with failure", "error", runErr)
	}
	return nil
}

func (w *ValidationWorker) fail(ctx context.Context, logger *zap.SugaredLogger, jobRecord *api.Job, cause error) {
	logger.Errorw("validation job failed", "error", cause)
	final := model.Job{
		Status:     model.JobStatusFailed,
		StatusInfo: cause.Error(),
	}
	if _, err := w.store.Job().Finalize(ctx, jobRecord.Id, final); err != nil && !errors.Is(err, store.ErrUpdateTerminalJob) {
		logger.Errorw("failed to finalize job", "error", err)
	}

	event := api.JobEvent{
		JobId:      jobRecord.Id,
		Status:     api.JobStatusFailed,
		StatusInfo: cause.Error(),
	}
	if err := events.PublishJobEvent(ctx, w.producer, event); err != nil {
		logger.Warnw("failed to publish job event", "error", err)
	}
}

func (w *ValidationWorker) publishJobEvent(ctx context.Context, logger *zap.SugaredLogger, jobID uuid.UUID, result *pipeline.Result, outputKey, reportKey, statusInfo string) {
	outputURL, err := w.objectStore.PresignedGetURL(ctx, outputKey, resultURLExpiry)
	if err != nil {
		logger.Warnw("failed to presign output url", "error", err)
	}
	reportURL, err := w.objectStore.PresignedGetURL(ctx, reportKey, resultURLExpiry)
	if err != nil {
		logger.Warnw("failed to presign report url", "error", err)
	}

	event := api.JobEvent{
		JobId:        jobID,
		Status:       result.Status,
		StatusInfo:   statusInfo,
		OutputURL:    outputURL,
		ReportURL:    reportURL,
		SuccessCount: result.SuccessRows,
		FailureCount: result.FailureRows,
	}
	if err := events.PublishJobEvent(ctx, w.producer, event); err != nil {
		logger.Warnw("failed to publish job event", "error", err)
	}
}

// buildDuplicateIndex makes a first streaming pass over the file to count
// occurrences of each unique-constraint key. The pass opens its own source
// stream; only key counts are held, not rows.
func (w *ValidationWorker) buildDuplicateIndex(ctx context.Context, jobRecord *api.Job, columns []string, chunkSize int) (*engine.DuplicateIndex, error) {
	source, err := w.objectStore.Get(ctx, jobRecord.SourceKey)
	if err != nil {
		return nil, err
	}

	reader, err := pipeline.NewChunkReader(source, jobRecord.FileName, w.chunkSizeValue(chunkSize))
	if err != nil {
		_ = source.Close()
		return nil, err
	}
	defer reader.Close()

	dups := engine.NewDuplicateIndex(columns)
	for {
		chunk, err := reader.Next(ctx)
		if err == io.EOF {
			return dups, nil
		}
		if err != nil {
			return nil, err
		}
		for i := range chunk.Rows {
			dups.Observe(&chunk.Rows[i])
		}
	}
}

func (w *ValidationWorker) chunkSize(args ValidationArgs) int {
	return w.chunkSizeValue(args.ChunkSize)
}

func (w *ValidationWorker) chunkSizeValue(override int) int {
	if override > 0 {
		return override
	}
	return w.cfg.Pipeline.ChunkSize
}

func (w *ValidationWorker) options(args ValidationArgs) pipeline.Options {
	interval, err := time.ParseDuration(w.cfg.Pipeline.ProgressInterval)
	if err != nil {
		interval = 2 * time.Second
	}

	opts := pipeline.Options{
		ChunkSize:        w.chunkSize(args),
		Concurrency:      w.cfg.Pipeline.Concurrency,
		QueueDepth:       w.cfg.Pipeline.QueueDepth,
		OnFailurePolicy:  api.FailurePolicy(w.cfg.Pipeline.OnFailurePolicy),
		AuditGranularity: pipeline.AuditGranularity(w.cfg.Pipeline.AuditGranularity),
		ProgressInterval: interval,
		ProgressChunks:   w.cfg.Pipeline.ProgressChunks,
		SinkRetries:      w.cfg.Pipeline.SinkRetries,
	}
	if args.Concurrency > 0 {
		opts.Concurrency = args.Concurrency
	}
	if args.OnFailurePolicy != "" {
		opts.OnFailurePolicy = api.FailurePolicy(args.OnFailurePolicy)
	}
	return opts
}

func contentTypeFor(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}
