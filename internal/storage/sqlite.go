package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS analyses (
		id           TEXT PRIMARY KEY,
		symbol       TEXT NOT NULL,
		timeframe    TEXT NOT NULL,
		data_source  TEXT NOT NULL,
		chart_path   TEXT NOT NULL,
		quant_model  TEXT NOT NULL,
		visual_model TEXT NOT NULL,
		latest_price TEXT NOT NULL,
		divergence   INTEGER NOT NULL,
		alignment    TEXT NOT NULL,
		output_file  TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at)`,
	`CREATE TABLE IF NOT EXISTS merge_runs (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id       TEXT NOT NULL,
		timeframe    TEXT NOT NULL,
		label        TEXT NOT NULL,
		files        INTEGER NOT NULL,
		rows_before  INTEGER NOT NULL,
		rows_after   INTEGER NOT NULL,
		duplicates   INTEGER NOT NULL,
		start_ts     INTEGER,
		end_ts       INTEGER,
		output_path  TEXT NOT NULL,
		output_bytes INTEGER NOT NULL,
		created_at   INTEGER NOT NULL,
		UNIQUE (run_id, timeframe)
	)`,
}

const (
	sqliteInsertAnalysisSQL = `INSERT INTO analyses (
		id, symbol, timeframe, data_source, chart_path, quant_model, visual_model,
		latest_price, divergence, alignment, output_file, created_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT (id) DO UPDATE SET output_file = excluded.output_file`

	sqliteListRecentAnalysesSQL = `SELECT
		id, symbol, timeframe, data_source, chart_path, quant_model, visual_model,
		latest_price, divergence, alignment, output_file, created_at
	FROM analyses
	ORDER BY created_at DESC
	LIMIT ?`

	sqliteInsertMergeRunSQL = `INSERT INTO merge_runs (
		run_id, timeframe, label, files, rows_before, rows_after, duplicates,
		start_ts, end_ts, output_path, output_bytes, created_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT (run_id, timeframe) DO UPDATE SET
		rows_before = excluded.rows_before,
		rows_after = excluded.rows_after,
		duplicates = excluded.duplicates,
		output_bytes = excluded.output_bytes`

	sqliteListRecentMergeRunsSQL = `SELECT
		id, run_id, timeframe, label, files, rows_before, rows_after, duplicates,
		start_ts, end_ts, output_path, output_bytes, created_at
	FROM merge_runs
	ORDER BY created_at DESC, id DESC
	LIMIT ?`
)

// SQLiteStore persists records in an embedded SQLite file. Timestamps are stored
// as Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// EnsureSchema creates the tables when missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// InsertAnalysis persists an analysis run.
func (s *SQLiteStore) InsertAnalysis(ctx context.Context, rec AnalysisRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, sqliteInsertAnalysisSQL,
		rec.ID.String(),
		rec.Symbol,
		rec.Timeframe,
		rec.DataSource,
		rec.ChartPath,
		rec.QuantModel,
		rec.VisualModel,
		rec.LatestPrice.String(),
		rec.Divergence,
		rec.Alignment,
		rec.OutputFile,
		created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// ListRecentAnalyses lists the most recent analysis runs.
func (s *SQLiteStore) ListRecentAnalyses(ctx context.Context, limit int) ([]AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListRecentAnalysesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent analyses: %w", err)
	}
	defer rows.Close()

	records := make([]AnalysisRecord, 0, limit)
	for rows.Next() {
		var (
			rec      AnalysisRecord
			id       string
			priceStr string
			created  int64
		)
		if err := rows.Scan(
			&id,
			&rec.Symbol,
			&rec.Timeframe,
			&rec.DataSource,
			&rec.ChartPath,
			&rec.QuantModel,
			&rec.VisualModel,
			&priceStr,
			&rec.Divergence,
			&rec.Alignment,
			&rec.OutputFile,
			&created,
		); err != nil {
			return nil, err
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse analysis id: %w", err)
		}
		if rec.LatestPrice, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse latest price: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// InsertMergeRun persists one merged group.
func (s *SQLiteStore) InsertMergeRun(ctx context.Context, rec MergeRunRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, sqliteInsertMergeRunSQL,
		rec.RunID.String(),
		rec.Timeframe,
		rec.Label,
		rec.Files,
		rec.RowsBefore,
		rec.RowsAfter,
		rec.Duplicates,
		nullableUnix(rec.StartTS),
		nullableUnix(rec.EndTS),
		rec.OutputPath,
		rec.OutputBytes,
		created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert merge run: %w", err)
	}
	return nil
}

// ListRecentMergeRuns lists the most recent merged groups.
func (s *SQLiteStore) ListRecentMergeRuns(ctx context.Context, limit int) ([]MergeRunRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListRecentMergeRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent merge runs: %w", err)
	}
	defer rows.Close()

	records := make([]MergeRunRecord, 0, limit)
	for rows.Next() {
		var (
			rec        MergeRunRecord
			runID      string
			start, end sql.NullInt64
			created    int64
		)
		if err := rows.Scan(
			&rec.ID,
			&runID,
			&rec.Timeframe,
			&rec.Label,
			&rec.Files,
			&rec.RowsBefore,
			&rec.RowsAfter,
			&rec.Duplicates,
			&start,
			&end,
			&rec.OutputPath,
			&rec.OutputBytes,
			&created,
		); err != nil {
			return nil, err
		}
		if rec.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		rec.StartTS = fromNullableUnix(start)
		rec.EndTS = fromNullableUnix(end)
		rec.CreatedAt = time.Unix(0, created).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNullableUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
