package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

const alertSelect = `SELECT id, symbol, period, change_pct, message, forced, created_at FROM alerts`

func scanAlertRows(rows pgx.Rows) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for rows.Next() {
		var (
			a      domain.Alert
			period string
		)
		if err := rows.Scan(&a.ID, &a.Symbol, &period, &a.Change, &a.Message, &a.Forced, &a.CreatedAt); err != nil {
			return nil, err
		}
		p, err := domain.ParsePeriod(period)
		if err != nil {
			return nil, err
		}
		a.Period = p
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Insert stores alerts in one batch. Re-inserting an existing ID is a no-op.
func (s *AlertStore) Insert(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	const query = `
		INSERT INTO alerts (id, symbol, period, change_pct, message, forced, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, a := range alerts {
		batch.Queue(query, a.ID, a.Symbol, a.Period.String(), a.Change, a.Message, a.Forced, a.CreatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range alerts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert alert %d/%d (%s): %w", i+1, len(alerts), alerts[i].ID, err)
		}
	}
	return nil
}

// ListRecent returns alerts newest first.
func (s *AlertStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Alert, error) {
	query, args := listQuery(alertSelect, "created_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	alerts, err := scanAlertRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan alerts: %w", err)
	}
	return alerts, nil
}

// ListBefore returns up to limit alerts created strictly before the cutoff,
// oldest first.
func (s *AlertStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Alert, error) {
	query := alertSelect + ` WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	alerts, err := scanAlertRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan alerts: %w", err)
	}
	return alerts, nil
}

// DeleteBefore removes alerts created strictly before the cutoff and reports
// how many rows were deleted.
func (s *AlertStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete alerts before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.AlertStore = (*AlertStore)(nil)
