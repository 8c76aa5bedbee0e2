package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	api "github.com/tabval/validation-service/api/v1alpha1"
)

// Annotated output columns, appended after the original columns. Their
// naming and position are stable for a given rule-set version.
const (
	StatusColumn  = "row_status"
	RemarksColumn = "remarks"

	outputSheet = "ValidatedData"
	legendSheet = "Legend"
)

// Annotator writes the annotated output incrementally as merged chunks
// arrive: the original row data untouched, plus the derived status columns.
// Close flushes the artifact to the writer handed to the constructor.
type Annotator interface {
	WriteChunk(result *ChunkResult) error
	Close() error
}

// NewAnnotator picks the output codec from the file name extension,
// mirroring the reader: spreadsheets annotate to a spreadsheet, delimited
// text annotates to CSV.
func NewAnnotator(fileName string, header *Header, w io.Writer) (Annotator, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return newExcelAnnotator(header, w)
	default:
		return newCSVAnnotator(header, w)
	}
}

type csvAnnotator struct {
	writer *csv.Writer
	header *Header
}

func newCSVAnnotator(header *Header, w io.Writer) (*csvAnnotator, error) {
	a := &csvAnnotator{writer: csv.NewWriter(w), header: header}

	record := append(append([]string{}, header.Columns...), StatusColumn, RemarksColumn)
	if err := a.writer.Write(record); err != nil {
		return nil, NewSinkFault("annotator", err)
	}
	return a, nil
}

func (a *csvAnnotator) WriteChunk(result *ChunkResult) error {
	for i, row := range result.Rows {
		// Rows wider than the header keep every original cell.
		width := max(len(a.header.Columns), len(row.Values))
		record := make([]string, width+2)
		copy(record, row.Values)
		record[width] = string(result.Statuses[i])
		record[width+1] = result.Remarks[i]
		if err := a.writer.Write(record); err != nil {
			return NewSinkFault("annotator", err)
		}
	}
	a.writer.Flush()
	return a.writer.Error()
}

func (a *csvAnnotator) Close() error {
	a.writer.Flush()
	return a.writer.Error()
}

type excelAnnotator struct {
	file    *excelize.File
	stream  *excelize.StreamWriter
	header  *Header
	out     io.Writer
	nextRow int
	styles  map[api.RowStatus]int
}

func newExcelAnnotator(header *Header, w io.Writer) (*excelAnnotator, error) {
	file := excelize.NewFile()

	index, err := file.NewSheet(outputSheet)
	if err != nil {
		return nil, NewSinkFault("annotator", err)
	}
	file.SetActiveSheet(index)

	styles, err := statusStyles(file)
	if err != nil {
		return nil, NewSinkFault("annotator", err)
	}

	if err := writeLegend(file, styles); err != nil {
		return nil, NewSinkFault("annotator", err)
	}

	// The default sheet stays empty; drop it.
	if err := file.DeleteSheet("Sheet1"); err != nil {
		return nil, NewSinkFault("annotator", err)
	}

	stream, err := file.NewStreamWriter(outputSheet)
	if err != nil {
		return nil, NewSinkFault("annotator", err)
	}

	a := &excelAnnotator{
		file:    file,
		stream:  stream,
		header:  header,
		out:     w,
		nextRow: 1,
		styles:  styles,
	}

	headerCells := make([]interface{}, 0, len(header.Columns)+2)
	for _, c := range header.Columns {
		headerCells = append(headerCells, c)
	}
	headerCells = append(headerCells, StatusColumn, RemarksColumn)
	if err := a.writeRow(headerCells); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *excelAnnotator) WriteChunk(result *ChunkResult) error {
	for i, row := range result.Rows {
		width := max(len(a.header.Columns), len(row.Values))
		styleID := a.styles[result.Statuses[i]]
		cells := make([]interface{}, width+2)
		for c := 0; c < width; c++ {
			var value string
			if c < len(row.Values) {
				value = row.Values[c]
			}
			cells[c] = value
		}
		cells[width] = excelize.Cell{StyleID: styleID, Value: string(result.Statuses[i])}
		cells[width+1] = excelize.Cell{StyleID: styleID, Value: result.Remarks[i]}
		if err := a.writeRow(cells); err != nil {
			return err
		}
	}
	return nil
}

func (a *excelAnnotator) writeRow(cells []interface{}) error {
	ref, err := excelize.CoordinatesToCellName(1, a.nextRow)
	if err != nil {
		return NewSinkFault("annotator", err)
	}
	if err := a.stream.SetRow(ref, cells); err != nil {
		return NewSinkFault("annotator", err)
	}
	a.nextRow++
	return nil
}

func (a *excelAnnotator) Close() error {
	if err := a.stream.Flush(); err != nil {
		return NewSinkFault("annotator", err)
	}
	if err := a.file.Write(a.out); err != nil {
		return NewSinkFault("annotator", err)
	}
	return a.file.Close()
}

func statusStyles(file *excelize.File) (map[api.RowStatus]int, error) {
	styles := make(map[api.RowStatus]int, 3)
	for status, colors := range map[api.RowStatus][2]string{
		api.RowStatusOk:      {"C6EFCE", "006100"},
		api.RowStatusWarning: {"FFF2CC", "9C6500"},
		api.RowStatusError:   {"F4CCCC", "9C0006"},
	} {
		id, err := file.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{colors[0]}, Pattern: 1},
			Font: &excelize.Font{Color: colors[1]},
		})
		if err != nil {
			return nil, err
		}
		styles[status] = id
	}
	return styles, nil
}

func writeLegend(file *excelize.File, styles map[api.RowStatus]int) error {
	if _, err := file.NewSheet(legendSheet); err != nil {
		return err
	}

	rows := []struct {
		status  api.RowStatus
		meaning string
	}{
		{api.RowStatusOk, "Row passed all validations."},
		{api.RowStatusWarning, "At least one warning-severity finding."},
		{api.RowStatusError, "At least one error-severity finding."},
	}

	if err := file.SetCellValue(legendSheet, "A1", "Validation Status Legend"); err != nil {
		return err
	}
	for i, r := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		if err := file.SetCellValue(legendSheet, cell, string(r.status)); err != nil {
			return err
		}
		if err := file.SetCellStyle(legendSheet, cell, cell, styles[r.status]); err != nil {
			return err
		}
		if err := file.SetCellValue(legendSheet, fmt.Sprintf("B%d", i+2), r.meaning); err != nil {
			return err
		}
	}
	return file.SetColWidth(legendSheet, "B", "B", 48)
}
