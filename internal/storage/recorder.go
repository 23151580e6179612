package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"trading-analyst/internal/analysis"
	"trading-analyst/internal/csvmerge"
)

// Recorder adapts a Store to the analysis and merge recording hooks.
type Recorder struct {
	store Store
}

var (
	_ analysis.Recorder = (*Recorder)(nil)
	_ csvmerge.Recorder = (*Recorder)(nil)
)

// NewRecorder wraps store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// RecordAnalysis stores a finished analysis run.
func (r *Recorder) RecordAnalysis(ctx context.Context, res *analysis.Result) error {
	return r.store.InsertAnalysis(ctx, AnalysisRecord{
		ID:          res.ID,
		Symbol:      res.Metadata.Symbol,
		Timeframe:   res.Metadata.Timeframe,
		DataSource:  res.Metadata.DataSource,
		ChartPath:   res.Metadata.ChartImage,
		QuantModel:  res.Quantitative.Model,
		VisualModel: res.Visual.Model,
		LatestPrice: res.Quantitative.LatestPrice,
		Divergence:  res.Integration.DivergenceDetected,
		Alignment:   res.Integration.AlignmentStatus,
		OutputFile:  res.OutputFile,
		CreatedAt:   res.Metadata.Timestamp.UTC(),
	})
}

// RecordMerge stores one merged group of a batch run.
func (r *Recorder) RecordMerge(ctx context.Context, runID uuid.UUID, stats *csvmerge.Stats) error {
	return r.store.InsertMergeRun(ctx, MergeRunRecord{
		RunID:       runID,
		Timeframe:   stats.Timeframe,
		Label:       stats.Label,
		Files:       stats.FilesMerged,
		RowsBefore:  stats.RowsBefore,
		RowsAfter:   stats.RowsAfter,
		Duplicates:  stats.DuplicatesRemoved,
		StartTS:     optionalTime(stats.Start),
		EndTS:       optionalTime(stats.End),
		OutputPath:  stats.OutputPath,
		OutputBytes: stats.OutputBytes,
	})
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
