package review

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/money"
	"tradepay-platform/internal/referral"
	"tradepay-platform/pkg/utils"

	"github.com/shopspring/decimal"
)

// PostgresStore persists trades in Postgres. A decision transaction
// carries the trade update, the ledger credit and the referral accrual on
// the same *sql.Tx, adapted into the sibling packages' Tx contracts.
//
// Assumed table:
// - trades (id PK, kind, category, owner_id, parent_id, amount NUMERIC,
//   rate NUMERIC, payable_amount NUMERIC, credited_amount NUMERIC,
//   status, reviewed_by, reviewed_at NULL, review_note, proof_ref,
//   created_at, updated_at)
// Text columns default to '' rather than NULL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
}

func (s *PostgresStore) Trade(ctx context.Context, id string) (Trade, error) {
	q := selectTrade + `WHERE id = $1`
	return scanTrade(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) TradesByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]Trade, error) {
	q := selectTrade + `
WHERE owner_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`
	return s.queryTrades(ctx, q, ownerID, from, to)
}

func (s *PostgresStore) PendingByCategory(ctx context.Context, kind Kind, category string) ([]Trade, error) {
	q := selectTrade + `
WHERE kind = $1 AND category = $2 AND parent_id = ''
  AND status IN ('PENDING', 'TRANSFERRED', 'PARTIALLYAPPROVED')
ORDER BY created_at
`
	return s.queryTrades(ctx, q, kind, category)
}

func (s *PostgresStore) queryTrades(ctx context.Context, q string, args ...any) ([]Trade, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx *sql.Tx
}

func (t pgTx) TradeForUpdate(ctx context.Context, id string) (Trade, error) {
	q := selectTrade + `WHERE id = $1 FOR UPDATE`
	return scanTrade(t.tx.QueryRowContext(ctx, q, id))
}

func (t pgTx) Children(ctx context.Context, parentID string) ([]Trade, error) {
	q := selectTrade + `WHERE parent_id = $1 ORDER BY created_at`
	rows, err := t.tx.QueryContext(ctx, q, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t pgTx) InsertTrade(ctx context.Context, tr Trade) error {
	const q = `
INSERT INTO trades (
  id, kind, category, owner_id, parent_id, amount, rate, payable_amount,
  credited_amount, status, reviewed_by, reviewed_at, review_note,
  proof_ref, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
`
	_, err := t.tx.ExecContext(ctx, q,
		tr.ID, tr.Kind, tr.Category, tr.OwnerID, tr.ParentID,
		tr.Amount.String(), tr.Rate.String(),
		tr.PayableAmount.String(), tr.CreditedAmount.String(),
		tr.Status, tr.ReviewedBy, tr.ReviewedAt, tr.ReviewNote, tr.ProofRef,
		tr.CreatedAt, tr.UpdatedAt,
	)
	return err
}

func (t pgTx) UpdateTrade(ctx context.Context, tr Trade) error {
	const q = `
UPDATE trades
SET credited_amount = $2, status = $3, reviewed_by = $4, reviewed_at = $5,
    review_note = $6, proof_ref = $7, updated_at = $8
WHERE id = $1
`
	res, err := t.tx.ExecContext(ctx, q,
		tr.ID,
		tr.CreditedAmount.String(), tr.Status,
		tr.ReviewedBy, tr.ReviewedAt, tr.ReviewNote, tr.ProofRef,
		tr.UpdatedAt,
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

func (t pgTx) Ledger() ledger.Tx { return ledger.PostgresTx(t.tx) }

func (t pgTx) Referrals() referral.Tx { return referral.PostgresTx(t.tx) }

const selectTrade = `
SELECT id, kind, category, owner_id, parent_id, amount, rate,
       payable_amount, credited_amount, status, reviewed_by, reviewed_at,
       review_note, proof_ref, created_at, updated_at
FROM trades
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (Trade, error) {
	var t Trade
	var amountStr, rateStr, payableStr, creditedStr string
	var reviewedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.Kind, &t.Category, &t.OwnerID, &t.ParentID,
		&amountStr, &rateStr, &payableStr, &creditedStr,
		&t.Status, &t.ReviewedBy, &reviewedAt,
		&t.ReviewNote, &t.ProofRef,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trade{}, ErrNotFound
		}
		return Trade{}, err
	}
	if reviewedAt.Valid {
		at := reviewedAt.Time
		t.ReviewedAt = &at
	}
	if t.Amount, err = money.FromString(amountStr); err != nil {
		return Trade{}, err
	}
	if t.Rate, err = decimal.NewFromString(rateStr); err != nil {
		return Trade{}, err
	}
	if t.PayableAmount, err = money.FromString(payableStr); err != nil {
		return Trade{}, err
	}
	if t.CreditedAmount, err = money.FromString(creditedStr); err != nil {
		return Trade{}, err
	}
	return t, nil
}
