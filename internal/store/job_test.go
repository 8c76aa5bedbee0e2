package store_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/store"
	"github.com/tabval/validation-service/internal/store/model"
)

var _ = Describe("job store", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	newJob := func() model.Job {
		return model.Job{
			ID:        uuid.New(),
			FileName:  "customers.csv",
			SourceKey: "uploads/customers.csv",
			RuleSetID: uuid.New(),
			Status:    model.JobStatusPending,
		}
	}

	It("creates and reads back a job", func() {
		job := newJob()

		created, err := s.Job().Create(ctx, job)
		Expect(err).ToNot(HaveOccurred())
		Expect(created.Id).To(Equal(job.ID))
		Expect(created.Status).To(Equal(api.JobStatusPending))

		got, err := s.Job().Get(ctx, job.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.FileName).To(Equal("customers.csv"))
		Expect(got.SourceKey).To(Equal("uploads/customers.csv"))
	})

	It("returns a typed error for an unknown job", func() {
		_, err := s.Job().Get(ctx, uuid.New())
		Expect(err).To(MatchError(store.ErrRecordNotFound))
	})

	It("walks a job through its lifecycle", func() {
		job := newJob()
		_, err := s.Job().Create(ctx, job)
		Expect(err).ToNot(HaveOccurred())

		running, err := s.Job().UpdateStatus(ctx, job.ID, model.JobStatusRunning, "")
		Expect(err).ToNot(HaveOccurred())
		Expect(running.Status).To(Equal(api.JobStatusRunning))

		total := int64(100)
		Expect(s.Job().UpdateProgress(ctx, job.ID, 40, &total, 40)).To(Succeed())

		got, err := s.Job().Get(ctx, job.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.ProcessedRows).To(Equal(int64(40)))
		Expect(got.TotalRows).ToNot(BeNil())
		Expect(*got.TotalRows).To(Equal(int64(100)))

		final, err := s.Job().Finalize(ctx, job.ID, model.Job{
			Status:        model.JobStatusCompleted,
			ProcessedRows: 100,
			TotalRows:     &total,
			SuccessCount:  95,
			FailureCount:  5,
			OutputKey:     "validated/customers_PASS.csv",
			Report:        []byte(`{"total_rows":100}`),
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(final.Status).To(Equal(api.JobStatusCompleted))
		Expect(final.CompletedAt).ToNot(BeNil())

		report, err := s.Job().GetReport(ctx, job.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(report).To(MatchJSON(`{"total_rows":100}`))
	})

	It("refuses to move a job out of a terminal status", func() {
		job := newJob()
		_, err := s.Job().Create(ctx, job)
		Expect(err).ToNot(HaveOccurred())

		_, err = s.Job().Finalize(ctx, job.ID, model.Job{Status: model.JobStatusCancelled})
		Expect(err).ToNot(HaveOccurred())

		_, err = s.Job().UpdateStatus(ctx, job.ID, model.JobStatusRunning, "")
		Expect(err).To(MatchError(store.ErrUpdateTerminalJob))

		_, err = s.Job().Finalize(ctx, job.ID, model.Job{Status: model.JobStatusCompleted})
		Expect(err).To(MatchError(store.ErrUpdateTerminalJob))

		got, err := s.Job().Get(ctx, job.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Status).To(Equal(api.JobStatusCancelled))
	})

	It("rejects finalizing with a non-terminal status", func() {
		job := newJob()
		_, err := s.Job().Create(ctx, job)
		Expect(err).ToNot(HaveOccurred())

		_, err = s.Job().Finalize(ctx, job.ID, model.Job{Status: model.JobStatusRunning})
		Expect(err).To(HaveOccurred())
	})

	It("drops progress snapshots for a job that is not running", func() {
		job := newJob()
		_, err := s.Job().Create(ctx, job)
		Expect(err).ToNot(HaveOccurred())

		Expect(s.Job().UpdateProgress(ctx, job.ID, 10, nil, 10)).To(Succeed())

		got, err := s.Job().Get(ctx, job.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.ProcessedRows).To(BeZero())
	})
})
