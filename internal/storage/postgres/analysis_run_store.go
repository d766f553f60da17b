package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"smc-lab/internal/domain"
	"smc-lab/internal/storage"
)

// AnalysisRunStore implements storage.AnalysisRunStore using PostgreSQL.
type AnalysisRunStore struct {
	pool *Pool
}

// NewAnalysisRunStore creates a new AnalysisRunStore.
func NewAnalysisRunStore(pool *Pool) *AnalysisRunStore {
	return &AnalysisRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AnalysisRunStore = (*AnalysisRunStore)(nil)

const runColumns = `
	run_id, fingerprint, symbol, bar_interval, candle_count, first_time, last_time,
	swing_trend, internal_trend, structure_count, order_block_count, fvg_count,
	equal_level_count, config, result, started_at, duration_ms
`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *AnalysisRunStore) Insert(ctx context.Context, r *domain.AnalysisRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO analysis_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	config := r.ConfigJSON
	if len(config) == 0 {
		config = []byte("{}")
	}
	var result []byte
	if len(r.ResultJSON) > 0 {
		result = r.ResultJSON
	}

	_, err := s.pool.Exec(ctx, query,
		r.RunID,
		r.Fingerprint,
		r.Series.Symbol,
		r.Series.Interval,
		r.CandleCount,
		r.FirstTime,
		r.LastTime,
		string(r.SwingTrend),
		string(r.InternalTrend),
		r.StructureCount,
		r.OrderBlockCount,
		r.FVGCount,
		r.EqualLevelCount,
		config,
		result,
		r.StartedAt,
		r.DurationMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *AnalysisRunStore) GetByID(ctx context.Context, runID string) (*domain.AnalysisRun, error) {
	query := `SELECT ` + runColumns + ` FROM analysis_runs WHERE run_id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get analysis run by id: %w", err)
	}
	return r, nil
}

// GetLatest retrieves the most recent run of a series. Returns ErrNotFound if none.
func (s *AnalysisRunStore) GetLatest(ctx context.Context, key domain.SeriesKey) (*domain.AnalysisRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM analysis_runs
		WHERE symbol = $1 AND bar_interval = $2
		ORDER BY started_at DESC, created_at DESC
		LIMIT 1
	`

	r, err := scanRun(s.pool.QueryRow(ctx, query, key.Symbol, key.Interval))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest analysis run: %w", err)
	}
	return r, nil
}

// ListBySeries retrieves up to limit runs of a series, newest first.
func (s *AnalysisRunStore) ListBySeries(ctx context.Context, key domain.SeriesKey, limit int) ([]*domain.AnalysisRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM analysis_runs
		WHERE symbol = $1 AND bar_interval = $2
		ORDER BY started_at DESC, created_at DESC
	`
	args := []any{key.Symbol, key.Interval}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	defer rows.Close()

	runs := []*domain.AnalysisRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis run rows: %w", err)
	}
	return runs, nil
}

// scanRun scans one row; pgx.Rows satisfies pgx.Row.
func scanRun(row pgx.Row) (*domain.AnalysisRun, error) {
	var r domain.AnalysisRun
	var swingTrend, internalTrend string

	err := row.Scan(
		&r.RunID,
		&r.Fingerprint,
		&r.Series.Symbol,
		&r.Series.Interval,
		&r.CandleCount,
		&r.FirstTime,
		&r.LastTime,
		&swingTrend,
		&internalTrend,
		&r.StructureCount,
		&r.OrderBlockCount,
		&r.FVGCount,
		&r.EqualLevelCount,
		&r.ConfigJSON,
		&r.ResultJSON,
		&r.StartedAt,
		&r.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	r.SwingTrend = domain.Trend(swingTrend)
	r.InternalTrend = domain.Trend(internalTrend)
	return &r, nil
}
