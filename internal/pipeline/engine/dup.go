package engine

import (
	"strings"
)

// DuplicateIndex maps a unique-constraint key tuple to its occurrence count
// and first row index. It is filled by a single pre-pass over the source
// and read-only afterwards, so workers can share it without locking.
type DuplicateIndex struct {
	columns []string
	entries map[string]dupEntry
}

type dupEntry struct {
	count    int
	firstRow int64
}

func NewDuplicateIndex(columns []string) *DuplicateIndex {
	return &DuplicateIndex{
		columns: lowerAll(columns),
		entries: make(map[string]dupEntry),
	}
}

// Observe records one row during the pre-pass. Not safe for concurrent use.
func (d *DuplicateIndex) Observe(row RowView) {
	key := d.key(row)
	entry, seen := d.entries[key]
	if !seen {
		entry.firstRow = row.Index()
	}
	entry.count++
	d.entries[key] = entry
}

// Lookup returns the occurrence count of the row's key tuple and the row
// index of its first occurrence.
func (d *DuplicateIndex) Lookup(row RowView) (int, int64) {
	entry := d.entries[d.key(row)]
	return entry.count, entry.firstRow
}

func (d *DuplicateIndex) key(row RowView) string {
	parts := make([]string, len(d.columns))
	for i, c := range d.columns {
		v, _ := row.Lookup(c)
		parts[i] = v
	}
	return strings.Join(parts, "\x1f")
}
