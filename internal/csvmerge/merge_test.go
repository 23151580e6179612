package csvmerge

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestMerger(outDir string) *Merger {
	return NewMerger(Options{OutputDir: outDir, PairLabel: "BTC_USDT"}, nil, zerolog.Nop())
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestMergeGroupBaseFileWins(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "merged")
	base := writeFile(t, in, "BTC, 60.csv",
		"time,open,high,low,close,volume\n100,1,2,0.5,1.5,10\n200,2,3,1,2.5,20\n300,3,4,2,3.5,30\n")
	dup := writeFile(t, in, "BTC, 60 (1).csv",
		"time,open,high,low,close,volume\n200,9,9,9,9,90\n300,9,9,9,9,90\n400,4,5,3,4.5,40\n")

	stats, err := newTestMerger(out).MergeGroup("60", []string{base, dup})
	if err != nil {
		t.Fatalf("MergeGroup: %v", err)
	}

	if stats.RowsBefore != 6 || stats.RowsAfter != 4 || stats.DuplicatesRemoved != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.RowsBefore-stats.DuplicatesRemoved != stats.RowsAfter {
		t.Fatalf("rows before minus duplicates should equal rows after: %+v", stats)
	}
	if stats.FilesMerged != 2 || stats.FilesSkipped != 0 {
		t.Fatalf("file counts wrong: %+v", stats)
	}
	if stats.Label != "1H" || stats.Timeframe != "60" {
		t.Fatalf("label = %q timeframe = %q", stats.Label, stats.Timeframe)
	}
	if want := filepath.Join(out, "BTC_USDT_1H_merged.csv"); stats.OutputPath != want {
		t.Fatalf("output path = %q, want %q", stats.OutputPath, want)
	}
	if !stats.Start.Equal(time.Unix(100, 0)) || !stats.End.Equal(time.Unix(400, 0)) {
		t.Fatalf("range = %s..%s", stats.Start, stats.End)
	}

	info, err := os.Stat(stats.OutputPath)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if info.Size() != stats.OutputBytes {
		t.Fatalf("OutputBytes = %d, file size %d", stats.OutputBytes, info.Size())
	}

	want := []string{
		"time,open,high,low,close,volume",
		"1970-01-01 00:01:40,1,2,0.5,1.5,10",
		"1970-01-01 00:03:20,2,3,1,2.5,20",
		"1970-01-01 00:05:00,3,4,2,3.5,30",
		"1970-01-01 00:06:40,4,5,3,4.5,40",
	}
	got := readLines(t, stats.OutputPath)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("merged output:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestMergeGroupIdempotent(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	a := writeFile(t, in, "BTC, 15.csv", "time,close\n900,3\n0,1\n450,2\n")
	b := writeFile(t, in, "BTC, 15 (1).csv", "time,close\n450,9\n1350,4\n")

	m := newTestMerger(out)
	first, err := m.MergeGroup("15", []string{a, b})
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	firstBytes, _ := os.ReadFile(first.OutputPath)

	second, err := m.MergeGroup("15", []string{a, b})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	secondBytes, _ := os.ReadFile(second.OutputPath)

	if !bytes.Equal(firstBytes, secondBytes) {
		t.Fatalf("re-merge changed output:\n%s\nvs\n%s", firstBytes, secondBytes)
	}
}

func TestMergeGroupSortedAndUnique(t *testing.T) {
	in := t.TempDir()
	a := writeFile(t, in, "X, 5.csv", "time,close\n50,5\n10,1\n30,3\n10,7\n")
	b := writeFile(t, in, "X, 5 (1).csv", "time,close\n20,2\n50,8\n40,4\n")

	tables := make([]*Table, 0, 2)
	for _, p := range []string{a, b} {
		o := LoadFile(p)
		if !o.Loaded() {
			t.Fatalf("load %s: %v", p, o.Err)
		}
		tables = append(tables, o.Table)
	}
	ds, err := Build(tables)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ds.Records) != 5 {
		t.Fatalf("expected 5 unique records, got %d", len(ds.Records))
	}
	for i := 1; i < len(ds.Records); i++ {
		if !ds.Records[i-1].Time.Before(ds.Records[i].Time) {
			t.Fatalf("records not strictly ascending at %d", i)
		}
	}
	if ds.Records[0].Values[1] != "1" {
		t.Fatalf("first occurrence of t=10 should win, got %q", ds.Records[0].Values[1])
	}
	if ds.Records[4].Values[1] != "5" {
		t.Fatalf("first occurrence of t=50 should win, got %q", ds.Records[4].Values[1])
	}
}

func TestMergeGroupUnionSchema(t *testing.T) {
	in := t.TempDir()
	a := writeFile(t, in, "X, 60.csv", "time,close\n100,1\n")
	b := writeFile(t, in, "X, 60 (1).csv", "time,close,Volume MA\n200,2,55\n")

	stats, err := newTestMerger(t.TempDir()).MergeGroup("60", []string{a, b})
	if err != nil {
		t.Fatalf("MergeGroup: %v", err)
	}
	got := readLines(t, stats.OutputPath)
	want := []string{
		"time,close,Volume MA",
		"1970-01-01 00:01:40,1,",
		"1970-01-01 00:03:20,2,55",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("union output:\n%s", strings.Join(got, "\n"))
	}
}

func TestMergeGroupSkipsUnreadableFile(t *testing.T) {
	in := t.TempDir()
	good := writeFile(t, in, "X, 60.csv", "time,close\n100,1\n200,2\n")
	bad := writeFile(t, in, "X, 60 (1).csv", "time,close\n300,3,extra\n")
	missing := filepath.Join(in, "X, 60 (2).csv")

	var buf bytes.Buffer
	m := NewMerger(Options{OutputDir: t.TempDir(), PairLabel: "BTC_USDT"}, &buf, zerolog.Nop())
	stats, err := m.MergeGroup("60", []string{good, bad, missing})
	if err != nil {
		t.Fatalf("a bad file must not abort the group: %v", err)
	}
	if stats.FilesMerged != 1 || stats.FilesSkipped != 2 {
		t.Fatalf("unexpected file counts %+v", stats)
	}
	if stats.RowsAfter != 2 {
		t.Fatalf("expected 2 rows, got %d", stats.RowsAfter)
	}
	if !strings.Contains(buf.String(), "error reading") {
		t.Fatalf("progress output should mention the skipped file:\n%s", buf.String())
	}
}

func TestMergeGroupNoUsableInput(t *testing.T) {
	in := t.TempDir()
	empty := writeFile(t, in, "X, 60.csv", "")

	_, err := newTestMerger(t.TempDir()).MergeGroup("60", []string{empty, filepath.Join(in, "absent.csv")})
	if !errors.Is(err, ErrNoUsableInput) {
		t.Fatalf("expected ErrNoUsableInput, got %v", err)
	}
}

func TestMergeGroupMissingTimeColumn(t *testing.T) {
	in := t.TempDir()
	f := writeFile(t, in, "X, 60.csv", "date,close\n100,1\n")
	out := t.TempDir()

	_, err := newTestMerger(out).MergeGroup("60", []string{f})
	if !errors.Is(err, ErrMissingTimeColumn) {
		t.Fatalf("expected ErrMissingTimeColumn, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(out, "BTC_USDT_1H_merged.csv")); !os.IsNotExist(statErr) {
		t.Fatal("no output should be written for a failed group")
	}
}

func TestMergeGroupMalformedTimestamp(t *testing.T) {
	in := t.TempDir()
	f := writeFile(t, in, "X, 240.csv", "time,close\n100,1\nyesterday,2\n")

	_, err := newTestMerger(t.TempDir()).MergeGroup("240", []string{f})
	if !errors.Is(err, ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp, got %v", err)
	}
}

func TestMergeGroupTimeAliasOrder(t *testing.T) {
	in := t.TempDir()
	f := writeFile(t, in, "X, 60.csv", "Timestamp,timestamp,close\nbad,100,1\n")

	stats, err := newTestMerger(t.TempDir()).MergeGroup("60", []string{f})
	if err != nil {
		t.Fatalf("lower-case alias should be preferred: %v", err)
	}
	got := readLines(t, stats.OutputPath)
	if got[1] != "bad,1970-01-01 00:01:40,1" {
		t.Fatalf("unexpected row %q", got[1])
	}
}

func TestMergeGroupHeaderOnly(t *testing.T) {
	in := t.TempDir()
	f := writeFile(t, in, "X, 60.csv", "time,close\n")

	stats, err := newTestMerger(t.TempDir()).MergeGroup("60", []string{f})
	if err != nil {
		t.Fatalf("header-only file should merge: %v", err)
	}
	if stats.RowsAfter != 0 || !stats.Start.IsZero() {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if lines := readLines(t, stats.OutputPath); len(lines) != 1 || lines[0] != "time,close" {
		t.Fatalf("expected header only, got %v", lines)
	}
}

func TestMergeFilesMixedTimeColumns(t *testing.T) {
	in := t.TempDir()
	a := writeFile(t, in, "a.csv", "time,close\n100,1\n")
	b := writeFile(t, in, "b.csv", "timestamp,close\n200,2\n")
	out := filepath.Join(t.TempDir(), "out.csv")

	_, err := newTestMerger(filepath.Dir(out)).MergeFiles([]string{a, b}, out)
	if !errors.Is(err, ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp, got %v", err)
	}
	if !strings.Contains(err.Error(), "inputs mix time columns time, timestamp") {
		t.Fatalf("error should name the mixed time columns: %v", err)
	}
}
