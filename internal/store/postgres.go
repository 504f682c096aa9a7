package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/expenseapp/split-engine/internal/model"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// PostgresStore implements RateStore using PostgreSQL as the source of truth.
// Rates are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// UpsertRate updates the existing row for the key or inserts a new one.
// The insert path can lose a race on unique(rate_date, currency); that
// surfaces as ErrRateConflict so the caller can re-read the survivor.
func (s *PostgresStore) UpsertRate(ctx context.Context, r *model.FXRate) error {
	day := model.Day(r.RateDate)

	err := s.pool.QueryRow(ctx,
		`UPDATE fx_rates SET rate_to_base = $3::NUMERIC
		 WHERE rate_date = $1 AND currency = $2
		 RETURNING id, created_at`,
		day, r.Currency, r.RateToBase.String()).
		Scan(&r.ID, &r.CreatedAt)
	if err == nil {
		r.RateDate = day
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update rate %s/%s: %w", r.Currency, day.Format("2006-01-02"), err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO fx_rates (id, rate_date, currency, rate_to_base, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		r.ID, day, r.Currency, r.RateToBase.String(), r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrRateConflict
		}
		return fmt.Errorf("insert rate %s/%s: %w", r.Currency, day.Format("2006-01-02"), err)
	}
	r.RateDate = day
	return nil
}

func (s *PostgresStore) GetRate(ctx context.Context, date time.Time, currency string) (*model.FXRate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, rate_date, currency, rate_to_base::TEXT, created_at
		 FROM fx_rates WHERE rate_date = $1 AND currency = $2`,
		model.Day(date), currency)
	return scanRate(row)
}

func (s *PostgresStore) LatestOnOrBefore(ctx context.Context, date time.Time, currency string) (*model.FXRate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, rate_date, currency, rate_to_base::TEXT, created_at
		 FROM fx_rates WHERE currency = $2 AND rate_date <= $1
		 ORDER BY rate_date DESC LIMIT 1`,
		model.Day(date), currency)
	return scanRate(row)
}

func (s *PostgresStore) History(ctx context.Context, currency string, from, to time.Time) ([]model.FXRate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, rate_date, currency, rate_to_base::TEXT, created_at
		 FROM fx_rates
		 WHERE currency = $1 AND rate_date BETWEEN $2 AND $3
		 ORDER BY rate_date`,
		currency, model.Day(from), model.Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.FXRate
	for rows.Next() {
		var r model.FXRate
		var rateS string
		if err := rows.Scan(&r.ID, &r.RateDate, &r.Currency, &rateS, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RateToBase, _ = decimal.NewFromString(rateS)
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRate(row pgx.Row) (*model.FXRate, error) {
	var r model.FXRate
	var rateS string

	err := row.Scan(&r.ID, &r.RateDate, &r.Currency, &rateS, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRateNotFound
	}
	if err != nil {
		return nil, err
	}

	r.RateToBase, _ = decimal.NewFromString(rateS)
	return &r, nil
}
