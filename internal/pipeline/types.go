// Package pipeline implements the asynchronous chunked validation pipeline:
// a streaming reader, a concurrent worker pool running the rule engine, an
// order-restoring merger and the result sinks (annotated output, audit
// trail, progress events).
package pipeline

import (
	"strings"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// Header is the parsed column set of the source file. It is built once by
// the reader and shared read-only by every row.
type Header struct {
	Columns []string
	index   map[string]int
}

func NewHeader(columns []string) *Header {
	h := &Header{
		Columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		name := strings.ToLower(strings.TrimSpace(c))
		h.index[name] = len(h.Columns)
		h.Columns = append(h.Columns, name)
	}
	return h
}

func (h *Header) Position(column string) (int, bool) {
	i, ok := h.index[strings.ToLower(column)]
	return i, ok
}

// Row is one data row. Values are aligned with the header columns; Index is
// the global zero-based row index used for re-assembly and reporting.
type Row struct {
	Idx    int64
	Values []string
	Header *Header
}

func (r Row) Index() int64 { return r.Idx }

// ColumnNames exposes the header columns to full-row rule kinds.
func (r Row) ColumnNames() []string { return r.Header.Columns }

// Lookup returns the cell value for a column by (case-insensitive) name.
// The second return is false when the column is not part of the header.
func (r Row) Lookup(column string) (string, bool) {
	i, ok := r.Header.Position(column)
	if !ok {
		return "", false
	}
	if i >= len(r.Values) {
		return "", true
	}
	return r.Values[i], true
}

// Chunk is a bounded contiguous slice of input rows processed as one unit.
// Chunk indices are contiguous starting at zero.
type Chunk struct {
	Index  int
	Offset int64
	Rows   []Row
}

// ChunkResult is the outcome of running the rule engine over one chunk.
// Statuses and Remarks are aligned with Rows. Exhaustive is false when a
// rule fault or a worker fault prevented the full rule set from running.
type ChunkResult struct {
	Index      int
	Rows       []Row
	Statuses   []api.RowStatus
	Remarks    []string
	Findings   []api.Finding
	Exhaustive bool
	Failed     bool
}

// RowCount returns the number of rows carried by the result.
func (cr *ChunkResult) RowCount() int64 {
	return int64(len(cr.Rows))
}

// Snapshot is the merger-derived progress state at a point in time.
// Later snapshots supersede earlier ones.
type Snapshot struct {
	RowsProcessed int64
	RowsTotal     *int64
	ErrorCount    int64
	WarningCount  int64
}

// statusForFindings derives the row status from the severities present.
func statusForFindings(findings []api.Finding) api.RowStatus {
	status := api.RowStatusOk
	for _, f := range findings {
		switch f.Severity {
		case api.SeverityError:
			return api.RowStatusError
		case api.SeverityWarning:
			status = api.RowStatusWarning
		}
	}
	return status
}

// remarksForFindings renders the human-readable remarks cell. Offending
// cells are referenced by column name and rule id.
func remarksForFindings(findings []api.Finding) string {
	if len(findings) == 0 {
		return "Validated Successfully"
	}
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Column != "" {
			parts = append(parts, f.Column+": "+f.Message+" ["+f.RuleId+"]")
		} else {
			parts = append(parts, f.Message+" ["+f.RuleId+"]")
		}
	}
	return strings.Join(parts, "; ")
}
