package pipeline_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tabval/validation-service/internal/pipeline"
)

var _ = Describe("job registry", func() {
	It("cancels the registered job's context", func() {
		registry := pipeline.NewJobRegistry()
		jobID := uuid.New()

		jobCtx, release := registry.Register(context.Background(), jobID)
		defer release()

		Expect(registry.Running()).To(Equal(1))
		Expect(jobCtx.Err()).To(BeNil())

		Expect(registry.Cancel(jobID)).To(BeTrue())
		Expect(jobCtx.Err()).To(MatchError(context.Canceled))
	})

	It("reports unknown jobs as not running", func() {
		registry := pipeline.NewJobRegistry()
		Expect(registry.Cancel(uuid.New())).To(BeFalse())
	})

	It("forgets a job once released", func() {
		registry := pipeline.NewJobRegistry()
		jobID := uuid.New()

		jobCtx, release := registry.Register(context.Background(), jobID)
		release()

		Expect(registry.Running()).To(BeZero())
		Expect(registry.Cancel(jobID)).To(BeFalse())
		Expect(jobCtx.Err()).To(MatchError(context.Canceled))
	})
})
