package store_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/store"
)

var _ = Describe("audit store", func() {
	var (
		ctx   context.Context
		jobID uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		jobID = uuid.New()
	})

	entriesFor := func(sequences ...int64) []api.AuditEvent {
		entries := make([]api.AuditEvent, 0, len(sequences))
		for _, seq := range sequences {
			entries = append(entries, api.AuditEvent{
				JobId:     jobID,
				Sequence:  seq,
				RowIndex:  seq * 10,
				RuleId:    "r1",
				Severity:  api.SeverityError,
				Message:   "missing value",
				Timestamp: time.Now().UTC(),
			})
		}
		return entries
	}

	It("appends and lists entries in sequence order", func() {
		Expect(s.Audit().Append(ctx, entriesFor(1, 2, 3))).To(Succeed())

		entries, err := s.Audit().List(ctx, jobID, 0, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(HaveLen(3))
		for i, entry := range entries {
			Expect(entry.Sequence).To(Equal(int64(i + 1)))
			Expect(entry.JobId).To(Equal(jobID))
		}

		count, err := s.Audit().Count(ctx, jobID)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(int64(3)))
	})

	It("pages with an after-sequence cursor and a limit", func() {
		Expect(s.Audit().Append(ctx, entriesFor(1, 2, 3, 4, 5))).To(Succeed())

		page, err := s.Audit().List(ctx, jobID, 2, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(page).To(HaveLen(2))
		Expect(page[0].Sequence).To(Equal(int64(3)))
		Expect(page[1].Sequence).To(Equal(int64(4)))
	})

	It("rejects a redelivered batch instead of duplicating history", func() {
		Expect(s.Audit().Append(ctx, entriesFor(1, 2))).To(Succeed())

		err := s.Audit().Append(ctx, entriesFor(2))
		Expect(err).To(MatchError(store.ErrDuplicateKey))

		count, err := s.Audit().Count(ctx, jobID)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(int64(2)))
	})

	It("accepts an empty batch", func() {
		Expect(s.Audit().Append(ctx, nil)).To(Succeed())
	})
})
