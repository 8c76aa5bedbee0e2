package service_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/pipeline"
	"github.com/tabval/validation-service/internal/service"
)

var _ = Describe("job service", func() {
	var (
		st       *fakeStore
		registry *pipeline.JobRegistry
		srv      *service.JobService
		ctx      context.Context
	)

	BeforeEach(func() {
		st = newFakeStore()
		registry = pipeline.NewJobRegistry()
		srv = service.NewJobService(st, nil, nil, registry)
		ctx = context.Background()
	})

	addJob := func(status api.JobStatus) uuid.UUID {
		id := uuid.New()
		st.job.jobs[id] = &api.Job{
			Id:       id,
			FileName: "customers.csv",
			Status:   status,
		}
		return id
	}

	Describe("get", func() {
		It("returns the job", func() {
			id := addJob(api.JobStatusRunning)

			job, err := srv.Get(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(job.Id).To(Equal(id))
		})

		It("maps a missing row to a not-found error", func() {
			_, err := srv.Get(ctx, uuid.New())

			var notFound *service.ErrResourceNotFound
			Expect(err).To(BeAssignableToTypeOf(notFound))
		})
	})

	Describe("cancel", func() {
		It("rejects a job that already finished", func() {
			id := addJob(api.JobStatusCompleted)

			_, err := srv.Cancel(ctx, id)

			var alreadyDone *service.ErrJobAlreadyCompleted
			Expect(err).To(BeAssignableToTypeOf(alreadyDone))
		})

		It("signals a running pipeline through the registry", func() {
			id := addJob(api.JobStatusRunning)
			jobCtx, release := registry.Register(ctx, id)
			defer release()

			job, err := srv.Cancel(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(job.Id).To(Equal(id))

			// The pipeline owns the terminal transition, not the service.
			Expect(jobCtx.Err()).To(MatchError(context.Canceled))
			Expect(st.job.statusUpdates).To(BeEmpty())
		})

		It("cancels a queued job directly on its row", func() {
			id := addJob(api.JobStatusPending)

			job, err := srv.Cancel(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(job.Status).To(Equal(api.JobStatusCancelled))
			Expect(job.StatusInfo).To(Equal("cancelled before start"))
		})

		It("maps a missing row to a not-found error", func() {
			_, err := srv.Cancel(ctx, uuid.New())

			var notFound *service.ErrResourceNotFound
			Expect(err).To(BeAssignableToTypeOf(notFound))
		})
	})

	Describe("report", func() {
		It("refuses while the job is still running", func() {
			id := addJob(api.JobStatusRunning)

			_, err := srv.GetReport(ctx, id)

			var notDone *service.ErrJobNotCompleted
			Expect(err).To(BeAssignableToTypeOf(notDone))
		})

		It("returns the stored report of a finished job", func() {
			id := addJob(api.JobStatusCompleted)
			st.job.reports[id] = []byte(`{"total_rows":10}`)

			report, err := srv.GetReport(ctx, id)
			Expect(err).ToNot(HaveOccurred())
			Expect(report).To(MatchJSON(`{"total_rows":10}`))
		})

		It("treats a finished job without a report as not completed", func() {
			id := addJob(api.JobStatusFailed)

			_, err := srv.GetReport(ctx, id)

			var notDone *service.ErrJobNotCompleted
			Expect(err).To(BeAssignableToTypeOf(notDone))
		})
	})

	Describe("audit trail", func() {
		It("pages entries after a sequence number", func() {
			id := addJob(api.JobStatusCompleted)
			Expect(st.audit.Append(ctx, []api.AuditEvent{
				{JobId: id, Sequence: 1, RuleId: "r1"},
				{JobId: id, Sequence: 2, RuleId: "r2"},
				{JobId: id, Sequence: 3, RuleId: "r3"},
			})).To(Succeed())

			entries, err := srv.ListAuditEvents(ctx, id, 1, 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Sequence).To(Equal(int64(2)))
		})

		It("maps a missing job to a not-found error", func() {
			_, err := srv.ListAuditEvents(ctx, uuid.New(), 0, 10)

			var notFound *service.ErrResourceNotFound
			Expect(err).To(BeAssignableToTypeOf(notFound))
		})
	})
})
