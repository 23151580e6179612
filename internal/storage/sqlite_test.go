package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-analyst/internal/analysis"
	"trading-analyst/internal/config"
	"trading-analyst/internal/csvmerge"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "db", "analyst.db")
	store, err := Open(context.Background(), config.DatabaseConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestParseDSN(t *testing.T) {
	cases := []struct {
		dsn     string
		backend Backend
		target  string
	}{
		{"postgres://u:p@localhost:5432/db", BackendPostgres, "postgres://u:p@localhost:5432/db"},
		{"postgresql://localhost/db", BackendPostgres, "postgresql://localhost/db"},
		{"sqlite://data/analyst.db", BackendSQLite, "data/analyst.db"},
		{"analyst.db", BackendSQLite, "analyst.db"},
	}
	for _, tc := range cases {
		backend, target, err := ParseDSN(tc.dsn)
		if err != nil || backend != tc.backend || target != tc.target {
			t.Errorf("ParseDSN(%q) = %s, %s, %v", tc.dsn, backend, target, err)
		}
	}
	if _, _, err := ParseDSN("  "); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("empty dsn should be ErrNotConfigured, got %v", err)
	}
	if _, _, err := ParseDSN("sqlite://"); err == nil {
		t.Fatal("sqlite dsn without path should fail")
	}
}

func TestSQLiteAnalysisRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := AnalysisRecord{
		ID: uuid.New(), Symbol: "ETH/USDT", Timeframe: "1h", DataSource: "csv",
		ChartPath: "charts/eth.png", QuantModel: "q", VisualModel: "v",
		LatestPrice: decimal.RequireFromString("3100.5"), Alignment: "high",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := older
	newer.ID = uuid.New()
	newer.Symbol = "BTC/USDT"
	newer.Divergence = true
	newer.Alignment = "low"
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	for _, rec := range []AnalysisRecord{older, newer} {
		if err := store.InsertAnalysis(ctx, rec); err != nil {
			t.Fatalf("InsertAnalysis: %v", err)
		}
	}

	got, err := store.ListRecentAnalyses(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentAnalyses: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer.ID || !got[0].Divergence {
		t.Fatalf("unexpected records %+v", got)
	}
	if !got[1].LatestPrice.Equal(older.LatestPrice) || !got[1].CreatedAt.Equal(older.CreatedAt) {
		t.Fatalf("round trip lost data: %+v", got[1])
	}

	limited, err := store.ListRecentAnalyses(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit not applied: %v %v", limited, err)
	}
}

func TestRecorderWritesMergeRuns(t *testing.T) {
	store := openTestStore(t)
	rec := NewRecorder(store)
	ctx := context.Background()
	runID := uuid.New()

	stats := &csvmerge.Stats{
		Timeframe: "60", Label: "1H", FilesMerged: 2, RowsBefore: 6, RowsAfter: 4, DuplicatesRemoved: 2,
		Start: time.Unix(100, 0), End: time.Unix(400, 0), OutputPath: "out/BTC_USDT_1H_merged.csv", OutputBytes: 128,
	}
	if err := rec.RecordMerge(ctx, runID, stats); err != nil {
		t.Fatalf("RecordMerge: %v", err)
	}
	if err := rec.RecordMerge(ctx, runID, &csvmerge.Stats{Timeframe: "1D", Label: "Daily", OutputPath: "out/d.csv"}); err != nil {
		t.Fatalf("RecordMerge empty group: %v", err)
	}

	runs, err := store.ListRecentMergeRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentMergeRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	var hourly MergeRunRecord
	for _, r := range runs {
		if r.Timeframe == "60" {
			hourly = r
		}
		if r.RunID != runID {
			t.Fatalf("run id not preserved: %s", r.RunID)
		}
	}
	if hourly.Duplicates != 2 || hourly.StartTS == nil || hourly.StartTS.Unix() != 100 {
		t.Fatalf("unexpected hourly record %+v", hourly)
	}
	for _, r := range runs {
		if r.Timeframe == "1D" && r.StartTS != nil {
			t.Fatal("empty group should store NULL range")
		}
	}
}

func TestRecorderWritesAnalysis(t *testing.T) {
	store := openTestStore(t)
	res := &analysis.Result{
		ID:       uuid.New(),
		Metadata: analysis.Metadata{Symbol: "BTC/USDT", Timeframe: "4h", Timestamp: time.Now(), DataSource: "ccxt", ChartImage: "c.png"},
		Quantitative: analysis.QuantSection{
			Model: "qwen", LatestPrice: decimal.NewFromInt(42000),
		},
		Visual:      analysis.VisualSection{Model: "llava"},
		Integration: analysis.Integration{AlignmentStatus: analysis.AlignmentHigh},
		OutputFile:  "results/json/x.json",
	}
	if err := NewRecorder(store).RecordAnalysis(context.Background(), res); err != nil {
		t.Fatalf("RecordAnalysis: %v", err)
	}
	got, err := store.ListRecentAnalyses(context.Background(), 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListRecentAnalyses = %v, %v", got, err)
	}
	if got[0].ID != res.ID || got[0].QuantModel != "qwen" || got[0].OutputFile != "results/json/x.json" {
		t.Fatalf("unexpected record %+v", got[0])
	}
}
