package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnalysisRecord is a persisted two-model analysis run.
type AnalysisRecord struct {
	ID          uuid.UUID
	Symbol      string
	Timeframe   string
	DataSource  string
	ChartPath   string
	QuantModel  string
	VisualModel string
	LatestPrice decimal.Decimal
	Divergence  bool
	Alignment   string
	OutputFile  string
	CreatedAt   time.Time
}

// MergeRunRecord captures one merged timeframe group of a batch run.
type MergeRunRecord struct {
	ID          int64
	RunID       uuid.UUID
	Timeframe   string
	Label       string
	Files       int
	RowsBefore  int
	RowsAfter   int
	Duplicates  int
	StartTS     *time.Time
	EndTS       *time.Time
	OutputPath  string
	OutputBytes int64
	CreatedAt   time.Time
}
