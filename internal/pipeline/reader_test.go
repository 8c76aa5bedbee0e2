package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/tabval/validation-service/internal/pipeline"
)

func readAllChunks(r pipeline.ChunkReader) []*pipeline.Chunk {
	var chunks []*pipeline.Chunk
	for {
		chunk, err := r.Next(context.Background())
		if err == io.EOF {
			return chunks
		}
		Expect(err).ToNot(HaveOccurred())
		chunks = append(chunks, chunk)
	}
}

var _ = Describe("chunk reader", func() {
	Context("delimited text", func() {
		It("splits rows into fixed-size chunks with contiguous indices", func() {
			src := "Name,Age\nalice,30\nbob,31\ncarol,32\n"
			reader, err := pipeline.NewChunkReader(strings.NewReader(src), "people.csv", 2)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()

			Expect(reader.Header().Columns).To(Equal([]string{"name", "age"}))

			chunks := readAllChunks(reader)
			Expect(chunks).To(HaveLen(2))

			Expect(chunks[0].Index).To(Equal(0))
			Expect(chunks[0].Offset).To(Equal(int64(0)))
			Expect(chunks[0].Rows).To(HaveLen(2))
			Expect(chunks[0].Rows[0].Idx).To(Equal(int64(0)))
			Expect(chunks[0].Rows[0].Values).To(Equal([]string{"alice", "30"}))
			Expect(chunks[0].Rows[1].Idx).To(Equal(int64(1)))

			Expect(chunks[1].Index).To(Equal(1))
			Expect(chunks[1].Offset).To(Equal(int64(2)))
			Expect(chunks[1].Rows).To(HaveLen(1))
			Expect(chunks[1].Rows[0].Idx).To(Equal(int64(2)))
			Expect(chunks[1].Rows[0].Values).To(Equal([]string{"carol", "32"}))

			_, err = reader.Next(context.Background())
			Expect(err).To(Equal(io.EOF))
		})

		DescribeTable("sniffs the delimiter from the header line",
			func(src string) {
				reader, err := pipeline.NewChunkReader(strings.NewReader(src), "data.csv", 10)
				Expect(err).ToNot(HaveOccurred())
				defer reader.Close()

				Expect(reader.Header().Columns).To(Equal([]string{"name", "age"}))
				chunks := readAllChunks(reader)
				Expect(chunks).To(HaveLen(1))
				Expect(chunks[0].Rows[0].Values).To(Equal([]string{"alice", "30"}))
			},
			Entry("comma", "name,age\nalice,30\n"),
			Entry("tab", "name\tage\nalice\t30\n"),
			Entry("semicolon", "name;age\nalice;30\n"),
			Entry("pipe", "name|age\nalice|30\n"),
		)

		It("accepts ragged rows", func() {
			src := "name,age,city\nalice,30\nbob,31,berlin,extra\n"
			reader, err := pipeline.NewChunkReader(strings.NewReader(src), "data.csv", 10)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()

			chunks := readAllChunks(reader)
			Expect(chunks).To(HaveLen(1))
			Expect(chunks[0].Rows[0].Values).To(HaveLen(2))
			Expect(chunks[0].Rows[1].Values).To(HaveLen(4))
		})

		It("resolves short rows to empty cells on lookup", func() {
			src := "name,age\nalice\n"
			reader, err := pipeline.NewChunkReader(strings.NewReader(src), "data.csv", 10)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()

			chunks := readAllChunks(reader)
			value, ok := chunks[0].Rows[0].Lookup("age")
			Expect(ok).To(BeTrue())
			Expect(value).To(BeEmpty())

			_, ok = chunks[0].Rows[0].Lookup("missing")
			Expect(ok).To(BeFalse())
		})

		It("rejects an empty file", func() {
			_, err := pipeline.NewChunkReader(strings.NewReader(""), "data.csv", 10)
			Expect(err).To(HaveOccurred())

			var ingest *pipeline.IngestionError
			Expect(errors.As(err, &ingest)).To(BeTrue())
		})

		It("returns EOF for a header-only file", func() {
			reader, err := pipeline.NewChunkReader(strings.NewReader("name,age\n"), "data.csv", 10)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()

			_, err = reader.Next(context.Background())
			Expect(err).To(Equal(io.EOF))
		})

		It("flushes rows read before a parse error, then reports it", func() {
			src := "name,age\nalice,30\n\"bob,31\n"
			reader, err := pipeline.NewChunkReader(strings.NewReader(src), "data.csv", 10)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()

			chunk, err := reader.Next(context.Background())
			Expect(err).ToNot(HaveOccurred())
			Expect(chunk.Rows).To(HaveLen(1))
			Expect(chunk.Rows[0].Values[0]).To(Equal("alice"))

			_, err = reader.Next(context.Background())
			Expect(err).To(HaveOccurred())

			var ingest *pipeline.IngestionError
			Expect(errors.As(err, &ingest)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("row 2"))

			_, err = reader.Next(context.Background())
			Expect(err).To(Equal(io.EOF))
		})

		It("fails the first read when nothing precedes the parse error", func() {
			src := "name,age\n\"bob,31\n"
			reader, err := pipeline.NewChunkReader(strings.NewReader(src), "data.csv", 10)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()

			_, err = reader.Next(context.Background())
			var ingest *pipeline.IngestionError
			Expect(errors.As(err, &ingest)).To(BeTrue())

			_, err = reader.Next(context.Background())
			Expect(err).To(Equal(io.EOF))
		})

		It("stops on a cancelled context", func() {
			reader, err := pipeline.NewChunkReader(strings.NewReader("name\nalice\n"), "data.csv", 10)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err = reader.Next(ctx)
			Expect(err).To(Equal(context.Canceled))
		})
	})

	Context("spreadsheets", func() {
		It("streams the first sheet in chunks", func() {
			file := excelize.NewFile()
			sheet := file.GetSheetName(file.GetActiveSheetIndex())
			Expect(file.SetSheetRow(sheet, "A1", &[]interface{}{"Name", "Age"})).To(Succeed())
			Expect(file.SetSheetRow(sheet, "A2", &[]interface{}{"alice", "30"})).To(Succeed())
			Expect(file.SetSheetRow(sheet, "A3", &[]interface{}{"bob", "31"})).To(Succeed())
			Expect(file.SetSheetRow(sheet, "A4", &[]interface{}{"carol", "32"})).To(Succeed())

			var buf bytes.Buffer
			Expect(file.Write(&buf)).To(Succeed())
			Expect(file.Close()).To(Succeed())

			reader, err := pipeline.NewChunkReader(&buf, "people.xlsx", 2)
			Expect(err).ToNot(HaveOccurred())
			defer reader.Close()

			Expect(reader.Header().Columns).To(Equal([]string{"name", "age"}))

			chunks := readAllChunks(reader)
			Expect(chunks).To(HaveLen(2))
			Expect(chunks[0].Rows).To(HaveLen(2))
			Expect(chunks[0].Rows[0].Values).To(Equal([]string{"alice", "30"}))
			Expect(chunks[1].Rows).To(HaveLen(1))
			Expect(chunks[1].Rows[0].Idx).To(Equal(int64(2)))
		})

		It("rejects a sheet without a header row", func() {
			file := excelize.NewFile()
			var buf bytes.Buffer
			Expect(file.Write(&buf)).To(Succeed())
			Expect(file.Close()).To(Succeed())

			_, err := pipeline.NewChunkReader(&buf, "empty.xlsx", 10)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a corrupted archive", func() {
			_, err := pipeline.NewChunkReader(strings.NewReader("not a zip"), "data.xlsx", 10)
			Expect(err).To(HaveOccurred())

			var ingest *pipeline.IngestionError
			Expect(errors.As(err, &ingest)).To(BeTrue())
		})
	})

	Context("source stream ownership", func() {
		It("closes a delimited source on Close", func() {
			src := &closableReader{Reader: strings.NewReader("name\nalice\n")}
			reader, err := pipeline.NewChunkReader(src, "data.csv", 10)
			Expect(err).ToNot(HaveOccurred())

			Expect(reader.Close()).To(Succeed())
			Expect(src.closed).To(BeTrue())
		})

		It("closes a spreadsheet source on Close", func() {
			file := excelize.NewFile()
			sheet := file.GetSheetName(file.GetActiveSheetIndex())
			Expect(file.SetSheetRow(sheet, "A1", &[]interface{}{"name"})).To(Succeed())

			var buf bytes.Buffer
			Expect(file.Write(&buf)).To(Succeed())
			Expect(file.Close()).To(Succeed())

			src := &closableReader{Reader: &buf}
			reader, err := pipeline.NewChunkReader(src, "data.xlsx", 10)
			Expect(err).ToNot(HaveOccurred())

			Expect(reader.Close()).To(Succeed())
			Expect(src.closed).To(BeTrue())
		})
	})
})

type closableReader struct {
	io.Reader
	closed bool
}

func (r *closableReader) Close() error {
	r.closed = true
	return nil
}
