package pipeline_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/pipeline"
	"github.com/tabval/validation-service/internal/pipeline/engine"
)

var _ = Describe("pipeline run", func() {
	var (
		jobID        uuid.UUID
		auditSink    *fakeAuditSink
		progressSink *fakeProgressSink
		output       bytes.Buffer
	)

	BeforeEach(func() {
		jobID = uuid.New()
		auditSink = &fakeAuditSink{}
		progressSink = &fakeProgressSink{}
		output.Reset()
	})

	runCtx := func(ctx context.Context, src, fileName string, e *engine.Engine, opts pipeline.Options) (*pipeline.Result, error) {
		reader, err := pipeline.NewChunkReader(strings.NewReader(src), fileName, opts.ChunkSize)
		Expect(err).ToNot(HaveOccurred())

		annotator, err := pipeline.NewAnnotator(fileName, reader.Header(), &output)
		Expect(err).ToNot(HaveOccurred())

		p := pipeline.New(jobID, e, annotator, auditSink, progressSink, opts)
		return p.Run(ctx, reader)
	}

	run := func(src, fileName string, e *engine.Engine, opts pipeline.Options) (*pipeline.Result, error) {
		return runCtx(context.Background(), src, fileName, e, opts)
	}

	It("validates a delimited file end to end", func() {
		e := mustCompile([]api.RuleDefinition{
			{Id: "name-required", Kind: engine.KindRequired, Column: "name"},
		})
		src := "name,age\nalice,30\n,31\ncarol,32\ndave,33\nerin,34\n"

		result, err := run(src, "people.csv", e, pipeline.Options{ChunkSize: 2, Concurrency: 4})
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Status).To(Equal(api.JobStatusCompleted))
		Expect(result.Incomplete).To(BeFalse())
		Expect(result.TotalRows).To(Equal(int64(5)))
		Expect(result.SuccessRows).To(Equal(int64(4)))
		Expect(result.FailureRows).To(Equal(int64(1)))
		Expect(result.Counts.Error).To(Equal(int64(1)))
		Expect(result.Findings).To(HaveLen(1))
		Expect(result.Findings[0].RowIndex).To(Equal(int64(1)))

		records, err := csv.NewReader(&output).ReadAll()
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(6))
		Expect(records[0]).To(Equal([]string{"name", "age", "row_status", "remarks"}))

		// Input order survives concurrent chunk processing.
		var names []string
		for _, record := range records[1:] {
			names = append(names, record[0])
		}
		Expect(names).To(Equal([]string{"alice", "", "carol", "dave", "erin"}))
		Expect(records[2][2]).To(Equal("error"))
		Expect(records[3][2]).To(Equal("ok"))

		entries := auditSink.Entries()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Sequence).To(Equal(int64(1)))
		Expect(entries[0].JobId).To(Equal(jobID))

		events := progressSink.Events()
		Expect(events).ToNot(BeEmpty())
		final := events[len(events)-1]
		Expect(final.RowsProcessed).To(Equal(int64(5)))
		Expect(final.RowsTotal).ToNot(BeNil())
		Expect(*final.RowsTotal).To(Equal(int64(5)))

		var stageNames []string
		for _, s := range result.Stages {
			stageNames = append(stageNames, s.Name)
		}
		Expect(stageNames).To(Equal([]string{"validate", "finalize_output"}))
	})

	It("summarizes chunks under coarse audit granularity", func() {
		e := mustCompile([]api.RuleDefinition{
			{Id: "name-required", Kind: engine.KindRequired, Column: "name"},
		})
		src := "name\nalice\nbob\ncarol\n"

		result, err := run(src, "people.csv", e, pipeline.Options{
			ChunkSize:        2,
			AuditGranularity: pipeline.GranularityCoarse,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Status).To(Equal(api.JobStatusCompleted))

		entries := auditSink.Entries()
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Sequence).To(Equal(int64(1)))
		Expect(entries[1].Sequence).To(Equal(int64(2)))
		Expect(entries[0].Message).To(ContainSubstring("chunk 0"))
	})

	It("fails the job on a rule fault under the strict policy", func() {
		e := faultingEngine()
		src := "name,qty\nalice,2\nbob,zero\ncarol,3\n"

		result, err := run(src, "people.csv", e, pipeline.Options{
			ChunkSize:       1,
			OnFailurePolicy: api.FailurePolicyStrict,
		})
		Expect(err).To(HaveOccurred())

		Expect(result.Status).To(Equal(api.JobStatusFailed))
		Expect(result.Incomplete).To(BeTrue())
		Expect(result.StopReason).To(ContainSubstring("chunk worker fault"))
	})

	It("finishes despite rule faults under the best-effort policy", func() {
		e := faultingEngine()
		src := "name,qty\nalice,2\nbob,zero\ncarol,3\n"

		result, err := run(src, "people.csv", e, pipeline.Options{
			ChunkSize:       1,
			OnFailurePolicy: api.FailurePolicyBestEffort,
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Status).To(Equal(api.JobStatusCompleted))
		Expect(result.Incomplete).To(BeTrue())
		Expect(result.TotalRows).To(Equal(int64(3)))
		Expect(result.FailureRows).To(Equal(int64(1)))

		records, err := csv.NewReader(&output).ReadAll()
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(4))
		Expect(records[2][2]).To(Equal("error"))
		Expect(records[2][3]).To(ContainSubstring("rule engine fault"))
	})

	It("fails on a malformed row but keeps the rows read before it", func() {
		e := mustCompile([]api.RuleDefinition{
			{Id: "name-required", Kind: engine.KindRequired, Column: "name"},
		})
		src := "name\nalice\n\"bob\n"

		result, err := run(src, "people.csv", e, pipeline.Options{ChunkSize: 1})
		Expect(err).To(HaveOccurred())

		Expect(result.Status).To(Equal(api.JobStatusFailed))
		Expect(result.Incomplete).To(BeTrue())
		Expect(result.StopReason).To(ContainSubstring("ingestion error"))
		Expect(result.TotalRows).To(Equal(int64(1)))

		records, readErr := csv.NewReader(&output).ReadAll()
		Expect(readErr).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[1][0]).To(Equal("alice"))
	})

	It("stops admitting chunks once cancelled", func() {
		e := mustCompile([]api.RuleDefinition{
			{Id: "name-required", Kind: engine.KindRequired, Column: "name"},
		})
		src := "name\nalice\nbob\n"

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := runCtx(ctx, src, "people.csv", e, pipeline.Options{ChunkSize: 1})
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Status).To(Equal(api.JobStatusCancelled))
		Expect(result.Incomplete).To(BeTrue())
		Expect(result.StopReason).To(Equal("cancellation requested"))
		Expect(result.TotalRows).To(BeZero())
	})
})

func faultingEngine() *engine.Engine {
	return mustCompile([]api.RuleDefinition{
		{
			Id:         "qty-positive",
			Kind:       engine.KindExpression,
			Expression: "package validation.custom\n\ndeny contains msg if {\n\t1 / to_number(input.cells.qty) < 0\n\tmsg := \"quantity must be positive\"\n}\n",
		},
	})
}
