package csvmerge

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const maxReportedGaps = 5

// Gap is a hole between two consecutive candles.
type Gap struct {
	From     time.Time
	To       time.Time
	Interval time.Duration
}

// ColumnCount pairs a column with a count.
type ColumnCount struct {
	Column string
	Count  int
}

// Report describes the quality of a single candle file.
type Report struct {
	Path            string
	Rows            int
	Columns         []string
	TimeColumn      string
	Start           time.Time
	End             time.Time
	Duplicates      int
	Missing         []ColumnCount
	TypicalInterval time.Duration
	GapCount        int
	Gaps            []Gap
	LatestClose     string
	LatestVolume    string
}

// Inspect loads a candle file and reports duplicates, missing values and gaps.
// Time cells may hold epoch seconds or already-normalised timestamps.
func Inspect(path string) (*Report, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	outcome := LoadFile(path)
	if !outcome.Loaded() {
		return nil, outcome.Err
	}
	table := outcome.Table

	timeCol, err := table.Schema.TimeColumn()
	if err != nil {
		return nil, err
	}

	raw := table.Column(timeCol)
	times := make([]time.Time, len(raw))
	for i, v := range raw {
		ts, err := ParseTimestamp(v)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", timeCol, i+1, err)
		}
		times[i] = ts
	}

	report := &Report{
		Path:       path,
		Rows:       len(table.Rows),
		Columns:    table.Schema.Columns,
		TimeColumn: timeCol,
	}

	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return times[order[a]].Before(times[order[b]]) })

	if len(order) > 0 {
		report.Start = times[order[0]]
		report.End = times[order[len(order)-1]]
	}

	seen := make(map[time.Time]struct{}, len(times))
	for _, ts := range times {
		if _, dup := seen[ts]; dup {
			report.Duplicates++
			continue
		}
		seen[ts] = struct{}{}
	}

	for idx, col := range table.Schema.Columns {
		n := 0
		for _, row := range table.Rows {
			if isMissing(row[idx]) {
				n++
			}
		}
		if n > 0 {
			report.Missing = append(report.Missing, ColumnCount{Column: col, Count: n})
		}
	}

	report.findGaps(times, order)

	if len(order) > 0 {
		last := table.Rows[order[len(order)-1]]
		if i := columnFold(table.Schema, "close"); i >= 0 {
			report.LatestClose = last[i]
		}
		if i := columnFold(table.Schema, "volume"); i >= 0 {
			report.LatestVolume = last[i]
		}
	}
	return report, nil
}

func (r *Report) findGaps(times []time.Time, order []int) {
	if len(order) < 2 {
		return
	}
	intervals := make([]time.Duration, 0, len(order)-1)
	freq := make(map[time.Duration]int)
	for i := 1; i < len(order); i++ {
		d := times[order[i]].Sub(times[order[i-1]])
		intervals = append(intervals, d)
		if d > 0 {
			freq[d]++
		}
	}

	var typical time.Duration
	best := 0
	for d, n := range freq {
		if n > best || (n == best && d < typical) {
			typical, best = d, n
		}
	}
	r.TypicalInterval = typical
	if typical == 0 {
		return
	}

	for i, d := range intervals {
		if d <= 2*typical {
			continue
		}
		r.GapCount++
		if len(r.Gaps) < maxReportedGaps {
			r.Gaps = append(r.Gaps, Gap{From: times[order[i]], To: times[order[i+1]], Interval: d})
		}
	}
}

// Write renders the report for a terminal.
func (r *Report) Write(w io.Writer) {
	fmt.Fprintf(w, "File:        %s\n", r.Path)
	fmt.Fprintf(w, "Rows:        %s\n", humanize.Comma(int64(r.Rows)))
	fmt.Fprintf(w, "Columns:     %s\n", strings.Join(r.Columns, ", "))
	fmt.Fprintf(w, "Date range:  %s\n", dateRange(r.Start, r.End))
	if !r.Start.IsZero() {
		fmt.Fprintf(w, "Span:        %s\n", r.End.Sub(r.Start))
	}

	if r.Duplicates > 0 {
		fmt.Fprintf(w, "Duplicates:  %d duplicate timestamps\n", r.Duplicates)
	} else {
		fmt.Fprintln(w, "Duplicates:  none")
	}

	if len(r.Missing) == 0 {
		fmt.Fprintln(w, "Missing:     none")
	} else {
		fmt.Fprintln(w, "Missing:")
		for _, m := range r.Missing {
			fmt.Fprintf(w, "  %s: %d\n", m.Column, m.Count)
		}
	}

	if r.TypicalInterval > 0 {
		fmt.Fprintf(w, "Interval:    %s\n", r.TypicalInterval)
	}
	if r.GapCount == 0 {
		fmt.Fprintln(w, "Gaps:        none")
	} else {
		fmt.Fprintf(w, "Gaps:        %d\n", r.GapCount)
		for _, g := range r.Gaps {
			fmt.Fprintf(w, "  %s -> %s (%s)\n", FormatTimestamp(g.From), FormatTimestamp(g.To), g.Interval)
		}
		if r.GapCount > len(r.Gaps) {
			fmt.Fprintf(w, "  ... and %d more\n", r.GapCount-len(r.Gaps))
		}
	}

	if r.LatestClose != "" {
		fmt.Fprintf(w, "Last close:  %s\n", r.LatestClose)
	}
	if r.LatestVolume != "" {
		fmt.Fprintf(w, "Last volume: %s\n", r.LatestVolume)
	}
}

func isMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "nan", "null", "na":
		return true
	}
	return false
}

func columnFold(s Schema, name string) int {
	for i, col := range s.Columns {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}
