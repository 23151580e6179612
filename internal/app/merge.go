package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"trading-analyst/internal/csvmerge"
	"trading-analyst/internal/storage"
)

// MergeBatch merges every timeframe group found in the input directory. Each
// merged group is recorded when a store is configured.
func (a *App) MergeBatch(ctx context.Context, opts MergeBatchOptions) (*csvmerge.BatchSummary, error) {
	cfg := a.Config.Merge
	if opts.InputDir == "" {
		opts.InputDir = cfg.InputDir
	}
	if opts.OutputDir == "" {
		opts.OutputDir = cfg.OutputDir
	}
	if opts.PairLabel == "" {
		opts.PairLabel = cfg.PairLabel
	}

	merger := csvmerge.NewMerger(csvmerge.Options{OutputDir: opts.OutputDir, PairLabel: opts.PairLabel}, a.out(), a.Logger)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer closeStore()
		merger.WithRecorder(storage.NewRecorder(store))
	}

	summary, err := merger.RunBatch(ctx, opts.InputDir)
	if err != nil {
		return summary, err
	}
	a.Logger.Info().
		Str("run_id", summary.RunID.String()).
		Int("merged", len(summary.Merged)).
		Int("failed", len(summary.Failures)).
		Msg("batch merge finished")
	return summary, nil
}

// Merge merges an explicit file list, or the files in a folder matching a
// symbol and timeframe, into one output file.
func (a *App) Merge(_ context.Context, opts MergeOptions) (*csvmerge.Stats, error) {
	if opts.Folder == "" {
		opts.Folder = a.Config.Merge.InputDir
	}
	out := a.out()
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(out, "\n%s\nCSV MERGE TOOL\n%s\n\n", rule, rule)

	output := opts.Output
	if output == "" {
		output = defaultMergeOutput(opts)
	}

	files := opts.Files
	if len(files) == 0 {
		if opts.Symbol == "" || opts.Timeframe == "" {
			return nil, errors.New("provide either --files or both --symbol and --timeframe")
		}
		matches, err := csvmerge.FindMatching(opts.Folder, opts.Symbol, opts.Timeframe)
		if err != nil {
			return nil, err
		}
		matches = withoutPath(matches, output)
		if len(matches) == 0 {
			fmt.Fprintf(out, "No files found matching %s %s\nSearched in: %s\n", opts.Symbol, opts.Timeframe, opts.Folder)
			return nil, fmt.Errorf("no files matching %s %s in %s", opts.Symbol, opts.Timeframe, opts.Folder)
		}
		files = matches
	}

	if opts.ListOnly {
		fmt.Fprintf(out, "Found %d files:\n\n", len(files))
		for _, f := range files {
			fmt.Fprintf(out, "  %s\n", f)
		}
		return nil, nil
	}

	fmt.Fprintf(out, "Input files:  %d\n", len(files))
	fmt.Fprintf(out, "Output file:  %s\n", output)

	merger := csvmerge.NewMerger(csvmerge.Options{OutputDir: filepath.Dir(output)}, out, a.Logger)
	stats, err := merger.MergeFiles(files, output)
	if err != nil {
		return nil, fmt.Errorf("merge files: %w", err)
	}

	fmt.Fprintf(out, "\n%s\nMERGE COMPLETE\n%s\n", rule, rule)
	fmt.Fprintf(out, "Merged %d files into:\n  %s\n", stats.FilesMerged, output)
	fmt.Fprintf(out, "\nTotal rows: %s\n", humanize.Comma(int64(stats.RowsAfter)))
	if !stats.Start.IsZero() {
		fmt.Fprintf(out, "Date range: %s to %s\n", csvmerge.FormatTimestamp(stats.Start), csvmerge.FormatTimestamp(stats.End))
	}
	return stats, nil
}

func defaultMergeOutput(opts MergeOptions) string {
	if opts.Symbol != "" && opts.Timeframe != "" {
		symbol := strings.ReplaceAll(opts.Symbol, "/", "_")
		return filepath.Join(opts.Folder, fmt.Sprintf("%s_%s_merged.csv", symbol, opts.Timeframe))
	}
	return filepath.Join(opts.Folder, "merged_output.csv")
}

func withoutPath(paths []string, exclude string) []string {
	target := filepath.Clean(exclude)
	kept := paths[:0]
	for _, p := range paths {
		if filepath.Clean(p) != target {
			kept = append(kept, p)
		}
	}
	return kept
}

// Validate prints a quality report for one candle file.
func (a *App) Validate(_ context.Context, opts ValidateOptions) (*csvmerge.Report, error) {
	if opts.Path == "" {
		return nil, errors.New("file path required")
	}
	report, err := csvmerge.Inspect(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", opts.Path, err)
	}
	report.Write(a.out())
	return report, nil
}
