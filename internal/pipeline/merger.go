package pipeline

import (
	"context"
)

// Merger reassembles chunk results into ascending chunk-index order before
// any sink observes them. The reordering buffer is owned exclusively by the
// merger stage; its size is bounded by the number of in-flight chunks,
// which the worker pool's concurrency and the queue capacities cap.
type Merger struct {
	next    int
	pending map[int]*ChunkResult
}

func NewMerger() *Merger {
	return &Merger{pending: make(map[int]*ChunkResult)}
}

// Run consumes results in any completion order and emits them strictly in
// ascending chunk-index order. Returns when the input channel closes or the
// context is cancelled.
func (m *Merger) Run(ctx context.Context, in <-chan *ChunkResult, out chan<- *ChunkResult) error {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-in:
			if !ok {
				return nil
			}
			m.pending[result.Index] = result

			for {
				ready, held := m.pending[m.next]
				if !held {
					break
				}
				delete(m.pending, m.next)
				select {
				case out <- ready:
				case <-ctx.Done():
					return ctx.Err()
				}
				m.next++
			}
		}
	}
}

// Buffered returns the number of results currently held for reordering.
func (m *Merger) Buffered() int {
	return len(m.pending)
}
