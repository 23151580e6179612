package csvmerge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var (
	// ErrNoGroups is returned when the input directory holds no recognisable exports.
	ErrNoGroups = errors.New("no timeframe groups found")
	// ErrNothingMerged is returned when every discovered group failed.
	ErrNothingMerged = errors.New("no groups merged successfully")
)

// Recorder persists the statistics of each merged group.
type Recorder interface {
	RecordMerge(ctx context.Context, runID uuid.UUID, stats *Stats) error
}

// GroupFailure names a group that was abandoned and why.
type GroupFailure struct {
	Timeframe string
	Err       error
}

// BatchSummary aggregates the groups of one batch run.
type BatchSummary struct {
	RunID    uuid.UUID
	Merged   []*Stats
	Failures []GroupFailure

	TotalRowsBefore  int
	TotalRowsAfter   int
	TotalDuplicates  int
	TotalOutputBytes int64
}

// DedupRate is the share of input rows removed, in percent.
func (s *BatchSummary) DedupRate() float64 {
	if s.TotalRowsBefore == 0 {
		return 0
	}
	return float64(s.TotalDuplicates) / float64(s.TotalRowsBefore) * 100
}

func (s *BatchSummary) add(stats *Stats) {
	s.Merged = append(s.Merged, stats)
	s.TotalRowsBefore += stats.RowsBefore
	s.TotalRowsAfter += stats.RowsAfter
	s.TotalDuplicates += stats.DuplicatesRemoved
	s.TotalOutputBytes += stats.OutputBytes
}

// WithRecorder attaches a recorder used by RunBatch. A nil recorder disables
// persistence.
func (m *Merger) WithRecorder(r Recorder) *Merger {
	m.recorder = r
	return m
}

// RunBatch discovers every timeframe group in inputDir and merges them one by
// one. Group failures are collected in the summary; an error is returned only
// when nothing was found or nothing merged.
func (m *Merger) RunBatch(ctx context.Context, inputDir string) (*BatchSummary, error) {
	summary := &BatchSummary{RunID: uuid.New()}
	logger := m.logger.With().Str("run_id", summary.RunID.String()).Logger()

	fmt.Fprintln(m.out, strings.Repeat("=", 60))
	fmt.Fprintln(m.out, "TradingView CSV batch merger")
	fmt.Fprintln(m.out, strings.Repeat("=", 60))
	fmt.Fprintf(m.out, "Input folder:  %s\n", inputDir)
	fmt.Fprintf(m.out, "Output folder: %s\n", m.opts.OutputDir)

	groups, err := DetectGroups(inputDir)
	if err != nil {
		if !errors.Is(err, ErrInputDirNotFound) {
			return summary, err
		}
		fmt.Fprintf(m.out, "\nInput folder not found: %s\n", inputDir)
		logger.Warn().Str("input_dir", inputDir).Msg("input directory missing")
	}
	if len(groups) == 0 {
		fmt.Fprintf(m.out, "\nNo files found in %s\n", inputDir)
		fmt.Fprintln(m.out, "Expected names like \"CRYPTO_BTCUSD, 60.csv\" or \"CRYPTO_BTCUSD, 60 (1).csv\"")
		return summary, ErrNoGroups
	}

	timeframes := groups.Timeframes()
	fmt.Fprintf(m.out, "\nFound %d timeframe group(s):\n", len(timeframes))
	for _, tf := range timeframes {
		fmt.Fprintf(m.out, "  - %s: %d file(s)\n", CanonicalLabel(tf), len(groups[tf]))
	}

	for _, tf := range timeframes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		stats, err := m.MergeGroup(tf, groups[tf])
		if err != nil {
			summary.Failures = append(summary.Failures, GroupFailure{Timeframe: tf, Err: err})
			logger.Error().Err(err).Str("timeframe", tf).Msg("group merge failed")
			continue
		}
		summary.add(stats)

		if m.recorder != nil {
			if err := m.recorder.RecordMerge(ctx, summary.RunID, stats); err != nil {
				logger.Warn().Err(err).Str("timeframe", tf).Msg("failed to record merge run")
			}
		}
	}

	m.printSummary(summary)
	if len(summary.Merged) == 0 {
		return summary, ErrNothingMerged
	}
	return summary, nil
}

func (m *Merger) printSummary(s *BatchSummary) {
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat("=", 60))
	fmt.Fprintln(m.out, "BATCH MERGE SUMMARY")
	fmt.Fprintln(m.out, strings.Repeat("=", 60))

	if len(s.Merged) == 0 {
		fmt.Fprintln(m.out, "No files were merged successfully")
		for _, f := range s.Failures {
			fmt.Fprintf(m.out, "  %s: %v\n", CanonicalLabel(f.Timeframe), f.Err)
		}
		return
	}

	fmt.Fprintf(m.out, "Merged %d timeframe(s):\n", len(s.Merged))
	for _, st := range s.Merged {
		fmt.Fprintf(m.out, "  %-8s %s rows (%s to %s)\n",
			st.Label+":", humanize.Comma(int64(st.RowsAfter)), formatDay(st.Start), formatDay(st.End))
	}
	if len(s.Failures) > 0 {
		fmt.Fprintf(m.out, "Skipped %d timeframe(s):\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Fprintf(m.out, "  %-8s %v\n", CanonicalLabel(f.Timeframe)+":", f.Err)
		}
	}

	fmt.Fprintln(m.out, "\nOverall:")
	fmt.Fprintf(m.out, "  total input rows:    %s\n", humanize.Comma(int64(s.TotalRowsBefore)))
	fmt.Fprintf(m.out, "  total output rows:   %s\n", humanize.Comma(int64(s.TotalRowsAfter)))
	fmt.Fprintf(m.out, "  duplicates removed:  %s\n", humanize.Comma(int64(s.TotalDuplicates)))
	fmt.Fprintf(m.out, "  deduplication rate:  %.1f%%\n", s.DedupRate())
	fmt.Fprintf(m.out, "  total output size:   %s\n", humanize.Bytes(uint64(s.TotalOutputBytes)))
	fmt.Fprintf(m.out, "\nMerged files saved to: %s\n", m.opts.OutputDir)
}
