package referral

import (
	"context"
	"database/sql"
	"errors"

	"tradepay-platform/internal/money"
	"tradepay-platform/pkg/utils"
)

// PostgresStore persists referral credits.
//
// Assumed table:
// - referral_credits (id PK, referrer_id, referred_id UNIQUE,
//   cumulative_amount NUMERIC, paid BOOL, paid_at NULL,
//   created_at, updated_at)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, PostgresTx(tx))
	})
}

func (s *PostgresStore) ByReferred(ctx context.Context, referredID string) (Credit, error) {
	q := selectCredit + `WHERE referred_id = $1`
	return scanCredit(s.db.QueryRowContext(ctx, q, referredID))
}

func (s *PostgresStore) ByReferrer(ctx context.Context, referrerID string) ([]Credit, error) {
	q := selectCredit + `WHERE referrer_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q, referrerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PostgresTx adapts a database/sql transaction to the Tx contract; the
// review store shares one transaction across trade and referral writes.
func PostgresTx(tx *sql.Tx) Tx { return pgTx{tx: tx} }

type pgTx struct {
	tx *sql.Tx
}

func (t pgTx) ByReferredForUpdate(ctx context.Context, referredID string) (Credit, bool, error) {
	q := selectCredit + `WHERE referred_id = $1 FOR UPDATE`
	c, err := scanCredit(t.tx.QueryRowContext(ctx, q, referredID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Credit{}, false, nil
		}
		return Credit{}, false, err
	}
	return c, true, nil
}

func (t pgTx) Insert(ctx context.Context, c Credit) error {
	const q = `
INSERT INTO referral_credits (
  id, referrer_id, referred_id, cumulative_amount, paid, paid_at,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := t.tx.ExecContext(ctx, q,
		c.ID, c.ReferrerID, c.ReferredID,
		c.CumulativeAmount.String(),
		c.Paid, c.PaidAt,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (t pgTx) Update(ctx context.Context, c Credit) error {
	const q = `
UPDATE referral_credits
SET cumulative_amount = $2, paid = $3, paid_at = $4, updated_at = $5
WHERE referred_id = $1
`
	res, err := t.tx.ExecContext(ctx, q,
		c.ReferredID,
		c.CumulativeAmount.String(),
		c.Paid, c.PaidAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectCredit = `
SELECT id, referrer_id, referred_id, cumulative_amount, paid, paid_at,
       created_at, updated_at
FROM referral_credits
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredit(row rowScanner) (Credit, error) {
	var c Credit
	var amountStr string
	var paidAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.ReferrerID, &c.ReferredID,
		&amountStr, &c.Paid, &paidAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credit{}, ErrNotFound
		}
		return Credit{}, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		c.PaidAt = &t
	}
	c.CumulativeAmount, err = money.FromString(amountStr)
	if err != nil {
		return Credit{}, err
	}
	return c, nil
}
