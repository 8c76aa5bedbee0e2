package pipeline_test

import (
	"context"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tabval/validation-service/internal/pipeline"
)

var _ = Describe("merger", func() {
	It("emits results in ascending chunk order regardless of completion order", func() {
		const count = 50

		in := make(chan *pipeline.ChunkResult, count)
		out := make(chan *pipeline.ChunkResult, count)

		indices := rand.Perm(count)
		for _, i := range indices {
			in <- &pipeline.ChunkResult{Index: i}
		}
		close(in)

		merger := pipeline.NewMerger()
		Expect(merger.Run(context.Background(), in, out)).To(Succeed())

		var got []int
		for result := range out {
			got = append(got, result.Index)
		}
		Expect(got).To(HaveLen(count))
		for i, index := range got {
			Expect(index).To(Equal(i))
		}
		Expect(merger.Buffered()).To(BeZero())
	})

	It("closes the output when the input closes", func() {
		in := make(chan *pipeline.ChunkResult)
		out := make(chan *pipeline.ChunkResult, 1)
		close(in)

		merger := pipeline.NewMerger()
		Expect(merger.Run(context.Background(), in, out)).To(Succeed())

		_, open := <-out
		Expect(open).To(BeFalse())
	})

	It("holds later chunks until the gap is filled", func() {
		in := make(chan *pipeline.ChunkResult, 3)
		out := make(chan *pipeline.ChunkResult, 3)

		in <- &pipeline.ChunkResult{Index: 2}
		in <- &pipeline.ChunkResult{Index: 1}
		in <- &pipeline.ChunkResult{Index: 0}
		close(in)

		merger := pipeline.NewMerger()
		Expect(merger.Run(context.Background(), in, out)).To(Succeed())

		Expect((<-out).Index).To(Equal(0))
		Expect((<-out).Index).To(Equal(1))
		Expect((<-out).Index).To(Equal(2))
	})

	It("returns the context error when cancelled mid-stream", func() {
		in := make(chan *pipeline.ChunkResult)
		out := make(chan *pipeline.ChunkResult)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		merger := pipeline.NewMerger()
		Expect(merger.Run(ctx, in, out)).To(MatchError(context.Canceled))
	})
})
