package pipeline_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/pipeline"
)

func chunkOf(index int, rows int, findings ...api.Finding) *pipeline.ChunkResult {
	header := pipeline.NewHeader([]string{"name"})
	result := &pipeline.ChunkResult{Index: index, Findings: findings}
	for i := 0; i < rows; i++ {
		result.Rows = append(result.Rows, pipeline.Row{Idx: int64(i), Values: []string{"x"}, Header: header})
	}
	return result
}

var _ = Describe("progress broadcaster", func() {
	var (
		jobID uuid.UUID
		sink  *fakeProgressSink
	)

	BeforeEach(func() {
		jobID = uuid.New()
		sink = &fakeProgressSink{}
	})

	It("folds merged chunks into monotonic state", func() {
		b := pipeline.NewProgressBroadcaster(sink, jobID, time.Minute, 100, 3)

		b.Update(chunkOf(0, 2, api.Finding{Severity: api.SeverityError}))
		b.Update(chunkOf(1, 3, api.Finding{Severity: api.SeverityWarning}, api.Finding{Severity: api.SeverityWarning}))

		state := b.Current()
		Expect(state.RowsProcessed).To(Equal(int64(5)))
		Expect(state.ErrorCount).To(Equal(int64(1)))
		Expect(state.WarningCount).To(Equal(int64(2)))
	})

	It("publishes idempotent snapshots with increasing sequence numbers", func() {
		b := pipeline.NewProgressBroadcaster(sink, jobID, time.Minute, 100, 3)
		ctx := context.Background()

		b.Update(chunkOf(0, 2))
		Expect(b.Emit(ctx)).To(Succeed())

		b.Update(chunkOf(1, 3))
		b.SetTotal(5)
		Expect(b.Emit(ctx)).To(Succeed())

		events := sink.Events()
		Expect(events).To(HaveLen(2))
		Expect(events[0].JobId).To(Equal(jobID))
		Expect(events[0].Sequence).To(Equal(int64(1)))
		Expect(events[0].RowsProcessed).To(Equal(int64(2)))
		Expect(events[0].RowsTotal).To(BeNil())
		Expect(events[1].Sequence).To(Equal(int64(2)))
		Expect(events[1].RowsProcessed).To(Equal(int64(5)))
		Expect(events[1].RowsTotal).ToNot(BeNil())
		Expect(*events[1].RowsTotal).To(Equal(int64(5)))
	})

	It("suppresses duplicate snapshots when nothing advanced", func() {
		b := pipeline.NewProgressBroadcaster(sink, jobID, time.Minute, 100, 3)
		ctx := context.Background()

		b.Update(chunkOf(0, 2))
		Expect(b.Emit(ctx)).To(Succeed())
		Expect(b.Emit(ctx)).To(Succeed())
		Expect(b.Emit(ctx)).To(Succeed())

		Expect(sink.Events()).To(HaveLen(1))
	})

	It("emits on the chunk-count cadence while running", func() {
		b := pipeline.NewProgressBroadcaster(sink, jobID, time.Minute, 1, 3)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- b.Run(ctx)
		}()

		b.Update(chunkOf(0, 4))
		Eventually(sink.Events).Should(HaveLen(1))
		Expect(sink.Events()[0].RowsProcessed).To(Equal(int64(4)))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("gives up after repeated publish failures", func() {
		sink.fail = true
		sink.err = errors.New("broker unavailable")
		b := pipeline.NewProgressBroadcaster(sink, jobID, 10*time.Millisecond, 1, 2)

		done := make(chan error, 1)
		go func() {
			done <- b.Run(context.Background())
		}()

		// Keep rows advancing so that every cycle has something to publish.
		stop := make(chan struct{})
		go func() {
			index := 0
			for {
				select {
				case <-stop:
					return
				case <-time.After(2 * time.Millisecond):
					b.Update(chunkOf(index, 1))
					index++
				}
			}
		}()
		defer close(stop)

		var err error
		Eventually(done, "5s").Should(Receive(&err))

		var fault *pipeline.SinkFault
		Expect(errors.As(err, &fault)).To(BeTrue())
		Expect(fault.Sink).To(Equal("progress"))
	})
})
