package rates

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PostgresRepo reads effective-dated rates from Postgres.
//
// Assumed table:
// - rates (id PK, kind, category, per_unit NUMERIC, effective_from,
//   effective_to NULL, status, created_at, updated_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) FindRate(ctx context.Context, kind, category string, at time.Time) (Rate, bool, error) {
	const q = `
SELECT id, kind, category, per_unit, effective_from, effective_to, status, created_at, updated_at
FROM rates
WHERE kind = $1 AND category = $2 AND status = $3
  AND effective_from <= $4
  AND (effective_to IS NULL OR effective_to > $4)
ORDER BY effective_from DESC
LIMIT 1
`
	var (
		rate       Rate
		perUnitStr string
		until      sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, kind, category, RateStatusActive, at).Scan(
		&rate.ID, &rate.Kind, &rate.Category, &perUnitStr,
		&rate.EffectiveFrom, &until, &rate.Status,
		&rate.CreatedAt, &rate.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Rate{}, false, nil
		}
		return Rate{}, false, err
	}
	rate.PerUnit, err = decimal.NewFromString(perUnitStr)
	if err != nil {
		return Rate{}, false, err
	}
	if until.Valid {
		t := until.Time
		rate.EffectiveTo = &t
	}
	return rate, true, nil
}
