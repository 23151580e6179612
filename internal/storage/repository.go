package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgSchemaSQL = `CREATE TABLE IF NOT EXISTS analyses (
        id            UUID PRIMARY KEY,
        symbol        TEXT NOT NULL,
        timeframe     TEXT NOT NULL,
        data_source   TEXT NOT NULL,
        chart_path    TEXT NOT NULL,
        quant_model   TEXT NOT NULL,
        visual_model  TEXT NOT NULL,
        latest_price  NUMERIC NOT NULL,
        divergence    BOOLEAN NOT NULL,
        alignment     TEXT NOT NULL,
        output_file   TEXT NOT NULL DEFAULT '',
        created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );
    CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses (created_at DESC);
    CREATE TABLE IF NOT EXISTS merge_runs (
        id            BIGSERIAL PRIMARY KEY,
        run_id        UUID NOT NULL,
        timeframe     TEXT NOT NULL,
        label         TEXT NOT NULL,
        files         INTEGER NOT NULL,
        rows_before   INTEGER NOT NULL,
        rows_after    INTEGER NOT NULL,
        duplicates    INTEGER NOT NULL,
        start_ts      TIMESTAMPTZ,
        end_ts        TIMESTAMPTZ,
        output_path   TEXT NOT NULL,
        output_bytes  BIGINT NOT NULL,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        UNIQUE (run_id, timeframe)
    );`

	pgInsertAnalysisSQL = `INSERT INTO analyses (
        id,
        symbol,
        timeframe,
        data_source,
        chart_path,
        quant_model,
        visual_model,
        latest_price,
        divergence,
        alignment,
        output_file,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (id) DO UPDATE
    SET output_file = EXCLUDED.output_file;`

	pgListRecentAnalysesSQL = `SELECT
        id,
        symbol,
        timeframe,
        data_source,
        chart_path,
        quant_model,
        visual_model,
        latest_price::TEXT,
        divergence,
        alignment,
        output_file,
        created_at
    FROM analyses
    ORDER BY created_at DESC
    LIMIT $1;`

	pgInsertMergeRunSQL = `INSERT INTO merge_runs (
        run_id,
        timeframe,
        label,
        files,
        rows_before,
        rows_after,
        duplicates,
        start_ts,
        end_ts,
        output_path,
        output_bytes
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (run_id, timeframe) DO UPDATE
    SET rows_before  = EXCLUDED.rows_before,
        rows_after   = EXCLUDED.rows_after,
        duplicates   = EXCLUDED.duplicates,
        output_bytes = EXCLUDED.output_bytes;`

	pgListRecentMergeRunsSQL = `SELECT
        id,
        run_id,
        timeframe,
        label,
        files,
        rows_before,
        rows_after,
        duplicates,
        start_ts,
        end_ts,
        output_path,
        output_bytes,
        created_at
    FROM merge_runs
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`
)

// PGStore persists records in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertAnalysis persists an analysis run.
func (s *PGStore) InsertAnalysis(ctx context.Context, rec AnalysisRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, execErr := pool.Exec(ctx, pgInsertAnalysisSQL,
		rec.ID,
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
		created,
	)
	if execErr != nil {
		return fmt.Errorf("insert analysis: %w", execErr)
	}
	return nil
}

// ListRecentAnalyses lists the most recent analysis runs.
func (s *PGStore) ListRecentAnalyses(ctx context.Context, limit int) ([]AnalysisRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListRecentAnalysesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent analyses: %w", queryErr)
	}
	defer rows.Close()

	records := make([]AnalysisRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAnalysis(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// InsertMergeRun persists one merged group.
func (s *PGStore) InsertMergeRun(ctx context.Context, rec MergeRunRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, pgInsertMergeRunSQL,
		rec.RunID,
		rec.Timeframe,
		rec.Label,
		rec.Files,
		rec.RowsBefore,
		rec.RowsAfter,
		rec.Duplicates,
		rec.StartTS,
		rec.EndTS,
		rec.OutputPath,
		rec.OutputBytes,
	)
	if execErr != nil {
		return fmt.Errorf("insert merge run: %w", execErr)
	}
	return nil
}

// ListRecentMergeRuns lists the most recent merged groups.
func (s *PGStore) ListRecentMergeRuns(ctx context.Context, limit int) ([]MergeRunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListRecentMergeRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent merge runs: %w", queryErr)
	}
	defer rows.Close()

	records := make([]MergeRunRecord, 0, limit)
	for rows.Next() {
		var rec MergeRunRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Timeframe,
			&rec.Label,
			&rec.Files,
			&rec.RowsBefore,
			&rec.RowsAfter,
			&rec.Duplicates,
			&rec.StartTS,
			&rec.EndTS,
			&rec.OutputPath,
			&rec.OutputBytes,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanAnalysis(rows pgx.Rows) (AnalysisRecord, error) {
	var (
		rec      AnalysisRecord
		priceStr string
	)
	if err := rows.Scan(
		&rec.ID,
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
		&rec.CreatedAt,
	); err != nil {
		return AnalysisRecord{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("parse latest price: %w", err)
	}
	rec.LatestPrice = price
	return rec, nil
}
