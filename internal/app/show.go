package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// Show prints recent analysis runs and merge runs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Limit <= 0 {
		opts.Limit = a.Config.Database.HistoryLimit
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	defer closeStore()

	analyses, err := store.ListRecentAnalyses(ctx, opts.Limit)
	if err != nil {
		return err
	}
	runs, err := store.ListRecentMergeRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}

	out := a.out()
	fmt.Fprintln(out, "Recent analyses:")
	if len(analyses) == 0 {
		fmt.Fprintln(out, "  no analyses found")
	} else {
		writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tSymbol\tTF\tSource\tPrice\tAlignment\tDivergence\tOutput")
		for _, rec := range analyses {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
				rec.CreatedAt.UTC().Format(time.RFC3339),
				rec.Symbol,
				rec.Timeframe,
				rec.DataSource,
				rec.LatestPrice.StringFixed(2),
				rec.Alignment,
				rec.Divergence,
				sanitizeInline(rec.OutputFile),
			)
		}
		writer.Flush()
	}

	fmt.Fprintln(out, "\nRecent merges:")
	if len(runs) == 0 {
		fmt.Fprintln(out, "  no merges found")
		return nil
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRun\tTimeframe\tFiles\tRows\tDuplicates\tRange\tSize")
	for _, run := range runs {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			run.CreatedAt.UTC().Format(time.RFC3339),
			shortID(run.RunID.String()),
			run.Label,
			run.Files,
			humanize.Comma(int64(run.RowsAfter)),
			humanize.Comma(int64(run.Duplicates)),
			formatRange(run.StartTS, run.EndTS),
			humanize.Bytes(uint64(run.OutputBytes)),
		)
	}
	writer.Flush()
	return nil
}

func formatRange(start, end *time.Time) string {
	if start == nil || end == nil {
		return "n/a"
	}
	return start.UTC().Format("2006-01-02") + ".." + end.UTC().Format("2006-01-02")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
