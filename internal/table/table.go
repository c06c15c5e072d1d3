// Package table is the tabular file layer of the pipeline. Every external
// artefact (survey exports, the reference catalogue, the crosswalk store)
// is a CSV table read fully into memory, transformed, and written back out
// in full.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table holds one tabular file in memory: a header and its rows.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// ReadCSV loads an entire CSV file. Short rows are padded to the header
// width so downstream indexing is always in bounds.
func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	t := &Table{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d of %s: %w", len(t.Rows)+1, path, err)
		}
		for len(record) < len(header) {
			record = append(record, "")
		}
		t.Rows = append(t.Rows, record[:len(header)])
	}

	return t, nil
}

// WriteCSV writes the table to path, creating parent directories as needed.
// The write is all-or-nothing: rows are flushed only after every record has
// been encoded without error.
func (t *Table) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	writer.Flush()

	return writer.Error()
}

// ColumnIndex returns the position of a column by case-insensitive header
// match, or -1 when the column is absent.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(col), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// Get returns a trimmed cell value, or "" when the column is absent.
func (t *Table) Get(row int, col int) string {
	if col < 0 || col >= len(t.Columns) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// AddColumn appends a column filled with the given value on every row and
// returns its index.
func (t *Table) AddColumn(name, fill string) int {
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], fill)
	}
	return len(t.Columns) - 1
}

// DropColumns removes the named columns if present. Used to strip PII
// columns before any cleaned table is written.
func (t *Table) DropColumns(names ...string) {
	drop := make(map[int]bool)
	for _, name := range names {
		if idx := t.ColumnIndex(name); idx >= 0 {
			drop[idx] = true
		}
	}
	if len(drop) == 0 {
		return
	}

	var columns []string
	for i, col := range t.Columns {
		if !drop[i] {
			columns = append(columns, col)
		}
	}
	for r, row := range t.Rows {
		var kept []string
		for i, cell := range row {
			if !drop[i] {
				kept = append(kept, cell)
			}
		}
		t.Rows[r] = kept
	}
	t.Columns = columns
}

// KeepRows retains only the rows whose index is in keep, preserving the
// original order.
func (t *Table) KeepRows(keep map[int]bool) {
	var rows [][]string
	for i, row := range t.Rows {
		if keep[i] {
			rows = append(rows, row)
		}
	}
	t.Rows = rows
}
