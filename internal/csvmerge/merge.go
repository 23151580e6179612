package csvmerge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// ErrNoUsableInput is returned when every file of a group failed to load.
var ErrNoUsableInput = errors.New("no usable input files")

// Record is one merged row. Values follow Dataset.Columns; the time cell is
// re-rendered from Time on write.
type Record struct {
	Time   time.Time
	Values []string
}

// Dataset is the deduplicated, time-ordered union of several tables.
type Dataset struct {
	Columns    []string
	TimeColumn string
	Records    []Record
	RowsBefore int
}

// Start returns the earliest timestamp, or the zero time for an empty dataset.
func (d *Dataset) Start() time.Time {
	if len(d.Records) == 0 {
		return time.Time{}
	}
	return d.Records[0].Time
}

// End returns the latest timestamp, or the zero time for an empty dataset.
func (d *Dataset) End() time.Time {
	if len(d.Records) == 0 {
		return time.Time{}
	}
	return d.Records[len(d.Records)-1].Time
}

// Build concatenates tables in order, drops repeated timestamps keeping the
// first occurrence and sorts the survivors ascending.
func Build(tables []*Table) (*Dataset, error) {
	if len(tables) == 0 {
		return nil, ErrNoUsableInput
	}

	var columns []string
	seen := make(map[string]struct{})
	for _, t := range tables {
		for _, col := range t.Schema.Columns {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			columns = append(columns, col)
		}
	}
	union, err := NewSchema(columns)
	if err != nil {
		return nil, fmt.Errorf("union schema: %w", err)
	}
	timeCol, err := union.TimeColumn()
	if err != nil {
		return nil, err
	}
	timeIdx := union.Index(timeCol)

	var rows [][]string
	for _, t := range tables {
		mapping := make([]int, len(t.Schema.Columns))
		for i, col := range t.Schema.Columns {
			mapping[i] = union.Index(col)
		}
		for _, src := range t.Rows {
			row := make([]string, len(columns))
			for i, v := range src {
				row[mapping[i]] = v
			}
			rows = append(rows, row)
		}
	}

	rawTimes := make([]string, len(rows))
	for i, row := range rows {
		rawTimes[i] = row[timeIdx]
	}
	times, err := ParseEpochColumn(rawTimes)
	if err != nil {
		if mixed := timeAliases(union); len(mixed) > 1 {
			return nil, fmt.Errorf("column %q: %w (inputs mix time columns %s)", timeCol, err, strings.Join(mixed, ", "))
		}
		return nil, fmt.Errorf("column %q: %w", timeCol, err)
	}

	type instant struct {
		sec  int64
		nsec int
	}
	kept := make(map[instant]struct{}, len(rows))
	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		key := instant{sec: times[i].Unix(), nsec: times[i].Nanosecond()}
		if _, dup := kept[key]; dup {
			continue
		}
		kept[key] = struct{}{}
		records = append(records, Record{Time: times[i], Values: row})
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.Before(records[j].Time)
	})

	return &Dataset{
		Columns:    columns,
		TimeColumn: timeCol,
		Records:    records,
		RowsBefore: len(rows),
	}, nil
}

// WriteCSV serialises the dataset with the time column in canonical form.
func (d *Dataset) WriteCSV(w io.Writer) error {
	timeIdx := -1
	for i, col := range d.Columns {
		if col == d.TimeColumn {
			timeIdx = i
			break
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(d.Columns); err != nil {
		return err
	}
	out := make([]string, len(d.Columns))
	for _, rec := range d.Records {
		copy(out, rec.Values)
		if timeIdx >= 0 {
			out[timeIdx] = FormatTimestamp(rec.Time)
		}
		if err := writer.Write(out); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Stats summarises one merge.
type Stats struct {
	Timeframe         string
	Label             string
	FilesMerged       int
	FilesSkipped      int
	RowsBefore        int
	RowsAfter         int
	DuplicatesRemoved int
	Start             time.Time
	End               time.Time
	OutputPath        string
	OutputBytes       int64
}

// Options configures where merged files go.
type Options struct {
	OutputDir string
	PairLabel string
}

// Merger loads, merges and writes groups of exports. Progress lines are written
// to out; diagnostics go to the logger.
type Merger struct {
	opts     Options
	out      io.Writer
	logger   zerolog.Logger
	recorder Recorder
}

// NewMerger constructs a Merger. A nil out discards progress output.
func NewMerger(opts Options, out io.Writer, logger zerolog.Logger) *Merger {
	if out == nil {
		out = io.Discard
	}
	return &Merger{
		opts:   opts,
		out:    out,
		logger: logger.With().Str("component", "csv_merger").Logger(),
	}
}

// MergeGroup merges one timeframe group into its canonical output file.
func (m *Merger) MergeGroup(timeframe string, files []string) (*Stats, error) {
	label := CanonicalLabel(timeframe)
	fmt.Fprintf(m.out, "\nProcessing %s files (%s)...\n", timeframe, label)

	stats, err := m.MergeFiles(files, OutputPath(m.opts.OutputDir, m.opts.PairLabel, timeframe))
	if err != nil {
		return nil, err
	}
	stats.Timeframe = timeframe
	stats.Label = label
	return stats, nil
}

// MergeFiles merges the given files, in order, into outputPath.
func (m *Merger) MergeFiles(files []string, outputPath string) (*Stats, error) {
	outcomes := m.load(files)

	tables := make([]*Table, 0, len(outcomes))
	skipped := 0
	for _, o := range outcomes {
		if o.Loaded() {
			tables = append(tables, o.Table)
		} else {
			skipped++
		}
	}
	if len(tables) == 0 {
		fmt.Fprintln(m.out, "  no valid data loaded")
		return nil, ErrNoUsableInput
	}

	fmt.Fprintf(m.out, "  merging %d files...\n", len(tables))
	dataset, err := Build(tables)
	if err != nil {
		fmt.Fprintf(m.out, "  merge failed: %v\n", err)
		return nil, err
	}

	fmt.Fprintf(m.out, "  saving to %s...\n", filepath.Base(outputPath))
	size, err := writeDataset(outputPath, dataset)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		FilesMerged:       len(tables),
		FilesSkipped:      skipped,
		RowsBefore:        dataset.RowsBefore,
		RowsAfter:         len(dataset.Records),
		DuplicatesRemoved: dataset.RowsBefore - len(dataset.Records),
		Start:             dataset.Start(),
		End:               dataset.End(),
		OutputPath:        outputPath,
		OutputBytes:       size,
	}
	m.printStats(stats)

	m.logger.Info().
		Str("output", outputPath).
		Int("files", stats.FilesMerged).
		Int("rows_before", stats.RowsBefore).
		Int("rows_after", stats.RowsAfter).
		Int("duplicates", stats.DuplicatesRemoved).
		Msg("merge complete")
	return stats, nil
}

func (m *Merger) load(files []string) []FileOutcome {
	outcomes := make([]FileOutcome, 0, len(files))
	for i, path := range files {
		fmt.Fprintf(m.out, "  [%d/%d] reading %s...\n", i+1, len(files), filepath.Base(path))
		outcome := LoadFile(path)
		if !outcome.Loaded() {
			fmt.Fprintf(m.out, "      error reading %s: %v\n", filepath.Base(path), outcome.Err)
			m.logger.Warn().Err(outcome.Err).Str("file", path).Msg("skipping unreadable file")
		} else {
			fmt.Fprintf(m.out, "      loaded %s rows\n", humanize.Comma(int64(len(outcome.Table.Rows))))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (m *Merger) printStats(s *Stats) {
	fmt.Fprintln(m.out, "  SUCCESS")
	fmt.Fprintf(m.out, "     - merged %d files\n", s.FilesMerged)
	fmt.Fprintf(m.out, "     - total input rows: %s\n", humanize.Comma(int64(s.RowsBefore)))
	fmt.Fprintf(m.out, "     - after deduplication: %s\n", humanize.Comma(int64(s.RowsAfter)))
	fmt.Fprintf(m.out, "     - duplicates removed: %s\n", humanize.Comma(int64(s.DuplicatesRemoved)))
	fmt.Fprintf(m.out, "     - date range: %s\n", dateRange(s.Start, s.End))
	fmt.Fprintf(m.out, "     - output size: %s\n", humanize.Bytes(uint64(s.OutputBytes)))
	fmt.Fprintf(m.out, "     - saved to: %s\n", s.OutputPath)
}

func dateRange(start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return "n/a"
	}
	return formatDay(start) + " to " + formatDay(end)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Format("2006-01-02")
}

func writeDataset(path string, d *Dataset) (int64, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	if err := d.WriteCSV(file); err != nil {
		file.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

func timeAliases(s Schema) []string {
	var found []string
	for _, alias := range TimeColumnAliases {
		if s.Index(alias) >= 0 {
			found = append(found, alias)
		}
	}
	return found
}
