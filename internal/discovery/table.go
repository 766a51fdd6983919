package discovery

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Table is a column-oriented view of a dataset.
type Table interface {
	ColumnNames() []string
	// Column returns the values of one column, or false if it is unknown.
	Column(name string) ([]any, bool)
	NumRows() int
}

// RecordTable is an in-memory Table.
type RecordTable struct {
	columns []string
	data    map[string][]any
	rows    int
}

// NewRecordTable builds a table from columns of equal length.
func NewRecordTable(columns []string, data map[string][]any) (*RecordTable, error) {
	t := &RecordTable{columns: slices.Clone(columns), data: make(map[string][]any, len(columns))}
	for i, c := range columns {
		values, ok := data[c]
		if !ok {
			return nil, fmt.Errorf("column %q has no data", c)
		}
		if i == 0 {
			t.rows = len(values)
		} else if len(values) != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c, len(values), t.rows)
		}
		t.data[c] = values
	}
	return t, nil
}

func (t *RecordTable) ColumnNames() []string { return slices.Clone(t.columns) }

func (t *RecordTable) Column(name string) ([]any, bool) {
	v, ok := t.data[name]
	return v, ok
}

func (t *RecordTable) NumRows() int { return t.rows }

// ReadCSV loads a table from CSV with a header row. Numeric and boolean
// cells are typed, empty cells become nil, everything else stays a string.
func ReadCSV(r io.Reader) (*RecordTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}

	data := make(map[string][]any, len(header))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row: %w", err)
		}
		for i, col := range header {
			data[col] = append(data[col], parseCell(record[i]))
		}
	}
	for _, col := range header {
		if data[col] == nil {
			data[col] = []any{}
		}
	}
	return NewRecordTable(header, data)
}

func parseCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// columnarJSON is the wire form of a table restricted to some columns.
type columnarJSON struct {
	Schema struct {
		Fields []fieldJSON `json:"fields"`
	} `json:"schema"`
	Data map[string][]any `json:"data"`
}

type fieldJSON struct {
	Name string `json:"name"`
}

func tableJSON(t Table, columns []string) (*columnarJSON, error) {
	out := &columnarJSON{Data: make(map[string][]any, len(columns))}
	out.Schema.Fields = []fieldJSON{}
	for _, c := range columns {
		values, ok := t.Column(c)
		if !ok {
			return nil, fmt.Errorf("dataset has no column %q", c)
		}
		out.Schema.Fields = append(out.Schema.Fields, fieldJSON{Name: c})
		out.Data[c] = values
	}
	return out, nil
}
