package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ChunkReader produces a lazy, finite, non-restartable sequence of chunks.
// Next returns io.EOF after the last chunk. Implementations never buffer
// more than one chunk of rows.
type ChunkReader interface {
	Header() *Header
	Next(ctx context.Context) (*Chunk, error)
	Close() error
}

// NewChunkReader picks the concrete reader from the file name extension:
// .xlsx and .xlsm open as a spreadsheet, anything else is treated as
// delimited text with delimiter sniffing.
func NewChunkReader(r io.Reader, fileName string, chunkSize int) (ChunkReader, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return newExcelChunkReader(r, chunkSize)
	default:
		return newCSVChunkReader(r, chunkSize)
	}
}

type csvChunkReader struct {
	reader    *csv.Reader
	closer    io.Closer
	header    *Header
	chunkSize int
	nextChunk int
	nextRow   int64
	done      bool
	pending   error
}

func newCSVChunkReader(r io.Reader, chunkSize int) (*csvChunkReader, error) {
	buffered := bufio.NewReader(r)

	sample, _ := buffered.Peek(4096)
	delimiter := sniffDelimiter(sample)

	cr := csv.NewReader(buffered)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1

	headerRecord, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, NewIngestionError("empty file: no header row")
		}
		return nil, NewIngestionError("reading header row: %v", err)
	}

	reader := &csvChunkReader{
		reader:    cr,
		header:    NewHeader(headerRecord),
		chunkSize: chunkSize,
	}
	if c, ok := r.(io.Closer); ok {
		reader.closer = c
	}
	return reader, nil
}

func (r *csvChunkReader) Header() *Header { return r.header }

func (r *csvChunkReader) Next(ctx context.Context) (*Chunk, error) {
	if r.pending != nil {
		err := r.pending
		r.pending = nil
		r.done = true
		return nil, err
	}
	if r.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunk := &Chunk{
		Index:  r.nextChunk,
		Offset: r.nextRow,
		Rows:   make([]Row, 0, r.chunkSize),
	}

	for len(chunk.Rows) < r.chunkSize {
		record, err := r.reader.Read()
		if err == io.EOF {
			r.done = true
			break
		}
		if err != nil {
			// The rows already collected are flushed as a final partial
			// chunk; the error surfaces on the following Next call and
			// ends the sequence.
			ingest := NewIngestionError("row %d: %v", r.nextRow+int64(len(chunk.Rows))+1, err)
			if len(chunk.Rows) == 0 {
				r.done = true
				return nil, ingest
			}
			zap.S().Named("reader").Warnf("flushing %d rows read before parse error: %v", len(chunk.Rows), err)
			r.pending = ingest
			break
		}
		chunk.Rows = append(chunk.Rows, Row{
			Idx:    r.nextRow + int64(len(chunk.Rows)),
			Values: record,
			Header: r.header,
		})
	}

	if len(chunk.Rows) == 0 {
		return nil, io.EOF
	}

	r.nextChunk++
	r.nextRow += int64(len(chunk.Rows))
	return chunk, nil
}

func (r *csvChunkReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// sniffDelimiter picks the delimiter with the highest count on the first
// line, out of comma, tab, semicolon and pipe.
func sniffDelimiter(sample []byte) rune {
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	best, bestCount := ',', 0
	for _, candidate := range []byte{',', '\t', ';', '|'} {
		if n := bytes.Count(sample, []byte{candidate}); n > bestCount {
			best, bestCount = rune(candidate), n
		}
	}
	return best
}

type excelChunkReader struct {
	file      *excelize.File
	rows      *excelize.Rows
	closer    io.Closer
	header    *Header
	chunkSize int
	nextChunk int
	nextRow   int64
	done      bool
	pending   error
}

func newExcelChunkReader(r io.Reader, chunkSize int) (*excelChunkReader, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, NewIngestionError("opening spreadsheet: %v", err)
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		_ = file.Close()
		return nil, NewIngestionError("spreadsheet has no sheets")
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		_ = file.Close()
		return nil, NewIngestionError("reading sheet %q: %v", sheets[0], err)
	}

	if !rows.Next() {
		_ = rows.Close()
		_ = file.Close()
		return nil, NewIngestionError("empty sheet: no header row")
	}
	headerRecord, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		_ = file.Close()
		return nil, NewIngestionError("reading header row: %v", err)
	}

	reader := &excelChunkReader{
		file:      file,
		rows:      rows,
		header:    NewHeader(headerRecord),
		chunkSize: chunkSize,
	}
	if c, ok := r.(io.Closer); ok {
		reader.closer = c
	}
	return reader, nil
}

func (r *excelChunkReader) Header() *Header { return r.header }

func (r *excelChunkReader) Next(ctx context.Context) (*Chunk, error) {
	if r.pending != nil {
		err := r.pending
		r.pending = nil
		r.done = true
		return nil, err
	}
	if r.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunk := &Chunk{
		Index:  r.nextChunk,
		Offset: r.nextRow,
		Rows:   make([]Row, 0, r.chunkSize),
	}

	for len(chunk.Rows) < r.chunkSize {
		if !r.rows.Next() {
			if err := r.rows.Error(); err != nil {
				return r.flushOrFail(chunk, err)
			}
			r.done = true
			break
		}
		record, err := r.rows.Columns()
		if err != nil {
			return r.flushOrFail(chunk, err)
		}
		chunk.Rows = append(chunk.Rows, Row{
			Idx:    r.nextRow + int64(len(chunk.Rows)),
			Values: record,
			Header: r.header,
		})
	}

	if len(chunk.Rows) == 0 {
		return nil, io.EOF
	}

	r.nextChunk++
	r.nextRow += int64(len(chunk.Rows))
	return chunk, nil
}

// flushOrFail returns the partial chunk and holds the error back for the
// following Next call, or fails straight away when nothing was collected.
func (r *excelChunkReader) flushOrFail(chunk *Chunk, err error) (*Chunk, error) {
	ingest := NewIngestionError("row %d: %v", r.nextRow+int64(len(chunk.Rows))+1, err)
	if len(chunk.Rows) == 0 {
		r.done = true
		return nil, ingest
	}
	zap.S().Named("reader").Warnf("flushing %d rows read before parse error: %v", len(chunk.Rows), err)
	r.pending = ingest
	r.nextChunk++
	r.nextRow += int64(len(chunk.Rows))
	return chunk, nil
}

func (r *excelChunkReader) Close() error {
	var errs []error
	if r.rows != nil {
		errs = append(errs, r.rows.Close())
	}
	errs = append(errs, r.file.Close())
	if r.closer != nil {
		errs = append(errs, r.closer.Close())
	}
	return errors.Join(errs...)
}
