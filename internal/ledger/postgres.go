package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/money"
	"tradepay-platform/pkg/utils"
)

// PostgresStore persists wallets and entries in Postgres.
//
// Assumed tables:
// - wallets (owner_kind, owner_id, balance NUMERIC, updated_at;
//   PRIMARY KEY (owner_kind, owner_id))
// - ledger_entries (id PK, owner_kind, owner_id, causer_kind, causer_id,
//   amount NUMERIC, service, type, status, bank_ref, comment, summary,
//   admin_note, receipt_ref, counterpart_id, created_at, updated_at,
//   deleted_at NULL)
// Text columns default to '' rather than NULL.
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

func (s *PostgresStore) Wallet(ctx context.Context, owner actor.Ref) (Wallet, error) {
	const q = `
SELECT balance, updated_at
FROM wallets
WHERE owner_kind = $1 AND owner_id = $2
`
	var balanceStr string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, q, owner.Kind, owner.ID).Scan(&balanceStr, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unfunded owners read as zero; rows are created lazily on the
			// first mutation.
			return Wallet{Owner: owner, Balance: money.Zero}, nil
		}
		return Wallet{}, err
	}
	balance, err := money.FromString(balanceStr)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{Owner: owner, Balance: balance, UpdatedAt: updatedAt}, nil
}

func (s *PostgresStore) Entry(ctx context.Context, id string, withTrashed bool) (Entry, error) {
	q := selectEntry + `WHERE id = $1`
	if !withTrashed {
		q += ` AND deleted_at IS NULL`
	}
	return scanEntry(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) EntriesByOwner(ctx context.Context, owner actor.Ref, from, to time.Time) ([]Entry, error) {
	q := selectEntry + `
WHERE owner_kind = $1 AND owner_id = $2
  AND created_at >= $3 AND created_at < $4
  AND deleted_at IS NULL
ORDER BY created_at
`
	rows, err := s.db.QueryContext(ctx, q, owner.Kind, owner.ID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PostgresTx adapts a database/sql transaction to the Tx contract. The
// review store uses this to share one transaction across trade, ledger
// and referral writes.
func PostgresTx(tx *sql.Tx) Tx { return pgTx{tx: tx} }

type pgTx struct {
	tx *sql.Tx
}

func (t pgTx) WalletForUpdate(ctx context.Context, owner actor.Ref) (Wallet, error) {
	// Ensure the row exists before locking so first-time owners serialize
	// the same way funded ones do.
	const ins = `
INSERT INTO wallets (owner_kind, owner_id, balance, updated_at)
VALUES ($1, $2, 0, now())
ON CONFLICT (owner_kind, owner_id) DO NOTHING
`
	if _, err := t.tx.ExecContext(ctx, ins, owner.Kind, owner.ID); err != nil {
		return Wallet{}, err
	}

	const q = `
SELECT balance, updated_at
FROM wallets
WHERE owner_kind = $1 AND owner_id = $2
FOR UPDATE
`
	var balanceStr string
	var updatedAt time.Time
	if err := t.tx.QueryRowContext(ctx, q, owner.Kind, owner.ID).Scan(&balanceStr, &updatedAt); err != nil {
		return Wallet{}, err
	}
	balance, err := money.FromString(balanceStr)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{Owner: owner, Balance: balance, UpdatedAt: updatedAt}, nil
}

func (t pgTx) SetBalance(ctx context.Context, owner actor.Ref, balance money.Money, now time.Time) error {
	const q = `
UPDATE wallets
SET balance = $3, updated_at = $4
WHERE owner_kind = $1 AND owner_id = $2
`
	_, err := t.tx.ExecContext(ctx, q, owner.Kind, owner.ID, balance.String(), now)
	return err
}

func (t pgTx) EntryForUpdate(ctx context.Context, id string) (Entry, error) {
	q := selectEntry + `WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	return scanEntry(t.tx.QueryRowContext(ctx, q, id))
}

func (t pgTx) TrashedEntryForUpdate(ctx context.Context, id string) (Entry, error) {
	q := selectEntry + `WHERE id = $1 FOR UPDATE`
	return scanEntry(t.tx.QueryRowContext(ctx, q, id))
}

func (t pgTx) InsertEntry(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO ledger_entries (
  id, owner_kind, owner_id, causer_kind, causer_id, amount, service, type,
  status, bank_ref, comment, summary, admin_note, receipt_ref,
  counterpart_id, created_at, updated_at, deleted_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)
`
	_, err := t.tx.ExecContext(ctx, q,
		e.ID,
		e.Owner.Kind, e.Owner.ID,
		e.Causer.Kind, e.Causer.ID,
		e.Amount.String(),
		e.Service, e.Type, e.Status,
		e.BankRef, e.Comment, e.Summary, e.AdminNote, e.ReceiptRef,
		e.CounterpartID,
		e.CreatedAt, e.UpdatedAt, e.DeletedAt,
	)
	return err
}

func (t pgTx) UpdateEntry(ctx context.Context, e Entry) error {
	const q = `
UPDATE ledger_entries
SET causer_kind = $2, causer_id = $3, status = $4, summary = $5,
    admin_note = $6, updated_at = $7, deleted_at = $8
WHERE id = $1
`
	res, err := t.tx.ExecContext(ctx, q,
		e.ID,
		e.Causer.Kind, e.Causer.ID,
		e.Status, e.Summary, e.AdminNote,
		e.UpdatedAt, e.DeletedAt,
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

const selectEntry = `
SELECT id, owner_kind, owner_id, causer_kind, causer_id, amount, service,
       type, status, bank_ref, comment, summary, admin_note, receipt_ref,
       counterpart_id, created_at, updated_at, deleted_at
FROM ledger_entries
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var amountStr string
	err := row.Scan(
		&e.ID,
		&e.Owner.Kind, &e.Owner.ID,
		&e.Causer.Kind, &e.Causer.ID,
		&amountStr,
		&e.Service, &e.Type, &e.Status,
		&e.BankRef, &e.Comment, &e.Summary, &e.AdminNote, &e.ReceiptRef,
		&e.CounterpartID,
		&e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	e.Amount, err = money.FromString(amountStr)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}
