package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/pipeline/engine"
)

// WorkerPool applies the compiled rule engine to chunks with a fixed number
// of concurrent workers. Workers are stateless between chunks; pulling from
// a shared channel guarantees at-most-one worker per chunk.
type WorkerPool struct {
	engine *engine.Engine
	size   int
}

func NewWorkerPool(e *engine.Engine, size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{engine: e, size: size}
}

func (p *WorkerPool) Size() int { return p.size }

// Run consumes chunks until the input channel closes and emits one
// ChunkResult per chunk. A worker panic marks that chunk's result as failed
// and non-exhaustive but does not crash the pool.
func (p *WorkerPool) Run(ctx context.Context, in <-chan *Chunk, out chan<- *ChunkResult) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case chunk, ok := <-in:
					if !ok {
						return nil
					}
					result := p.process(ctx, chunk)
					select {
					case out <- result:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		})
	}

	err := g.Wait()
	close(out)
	return err
}

func (p *WorkerPool) process(ctx context.Context, chunk *Chunk) (result *ChunkResult) {
	defer func() {
		if rec := recover(); rec != nil {
			fault := NewChunkWorkerFault(chunk.Index, rec)
			zap.S().Named("pool").Errorw("worker fault", "chunk", chunk.Index, "error", fault)
			result = &ChunkResult{
				Index:      chunk.Index,
				Rows:       chunk.Rows,
				Statuses:   make([]api.RowStatus, len(chunk.Rows)),
				Remarks:    make([]string, len(chunk.Rows)),
				Exhaustive: false,
				Failed:     true,
			}
			for i := range result.Statuses {
				result.Statuses[i] = api.RowStatusError
				result.Remarks[i] = fault.Error()
			}
		}
	}()

	result = &ChunkResult{
		Index:      chunk.Index,
		Rows:       chunk.Rows,
		Statuses:   make([]api.RowStatus, len(chunk.Rows)),
		Remarks:    make([]string, len(chunk.Rows)),
		Exhaustive: true,
	}

	for i, row := range chunk.Rows {
		findings, exhaustive := p.engine.Evaluate(ctx, row)
		if !exhaustive {
			result.Exhaustive = false
		}
		result.Statuses[i] = statusForFindings(findings)
		result.Remarks[i] = remarksForFindings(findings)
		result.Findings = append(result.Findings, findings...)
	}

	return result
}
