package csvmerge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// TimeColumnAliases lists the accepted time column names in lookup order.
var TimeColumnAliases = []string{"time", "timestamp", "Time", "Timestamp"}

// ErrMissingTimeColumn is returned when no accepted time column is present.
var ErrMissingTimeColumn = errors.New("missing time column")

var knownColumns = map[string]struct{}{
	"time": {}, "timestamp": {}, "open": {}, "high": {}, "low": {}, "close": {}, "volume": {},
}

// Schema describes the header of one loaded file.
type Schema struct {
	Columns []string
	Known   []string
	Extras  []string
	index   map[string]int
}

// NewSchema validates a header row and classifies its columns.
func NewSchema(header []string) (Schema, error) {
	if len(header) == 0 {
		return Schema{}, errors.New("empty header")
	}
	s := Schema{
		Columns: make([]string, len(header)),
		index:   make(map[string]int, len(header)),
	}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if strings.TrimSpace(name) == "" {
			return Schema{}, fmt.Errorf("column %d has an empty name", i+1)
		}
		if _, dup := s.index[name]; dup {
			return Schema{}, fmt.Errorf("duplicate column %q", name)
		}
		s.Columns[i] = name
		s.index[name] = i
		if _, ok := knownColumns[strings.ToLower(name)]; ok {
			s.Known = append(s.Known, name)
		} else {
			s.Extras = append(s.Extras, name)
		}
	}
	return s, nil
}

// Index returns the position of a column, or -1.
func (s Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// TimeColumn returns the first accepted time alias present in the schema.
func (s Schema) TimeColumn() (string, error) {
	for _, alias := range TimeColumnAliases {
		if _, ok := s.index[alias]; ok {
			return alias, nil
		}
	}
	return "", fmt.Errorf("%w (columns: %s)", ErrMissingTimeColumn, strings.Join(s.Columns, ", "))
}

// Table is a loaded file: its schema and raw string rows.
type Table struct {
	Path   string
	Schema Schema
	Rows   [][]string
}

// Column returns every value of the named column, or nil if absent.
func (t *Table) Column(name string) []string {
	idx := t.Schema.Index(name)
	if idx < 0 {
		return nil
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values
}

// FileOutcome is the result of attempting to load one source file: either a
// table or the reason it was skipped.
type FileOutcome struct {
	Path  string
	Table *Table
	Err   error
}

// Loaded reports whether the file produced a table.
func (o FileOutcome) Loaded() bool {
	return o.Err == nil && o.Table != nil
}

// LoadFile reads a comma-separated file with a header row.
func LoadFile(path string) FileOutcome {
	table, err := readTable(path)
	return FileOutcome{Path: path, Table: table, Err: err}
}

func readTable(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return ReadTable(file, path)
}

// ReadTable parses CSV content from r. Every data row must have as many fields as
// the header.
func ReadTable(r io.Reader, path string) (*Table, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: file is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	schema, err := NewSchema(header)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return &Table{Path: path, Schema: schema, Rows: rows}, nil
}
