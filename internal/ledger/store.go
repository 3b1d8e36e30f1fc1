package ledger

import (
	"context"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/money"
)

// Store is the persistence contract for wallets and ledger entries.
//
// Atomically must provide transactional isolation: writes made through the
// Tx are all-or-nothing, and ForUpdate reads must block concurrent
// transactions touching the same row until commit. The Postgres backend
// maps this to BEGIN + SELECT ... FOR UPDATE; the memory backend holds a
// store-wide mutex for the duration of fn.
type Store interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Wallet reads the balance projection without locking.
	Wallet(ctx context.Context, owner actor.Ref) (Wallet, error)

	// Entry reads one entry. Soft-deleted rows are excluded unless
	// withTrashed is set; this is always stated explicitly at call sites.
	Entry(ctx context.Context, id string, withTrashed bool) (Entry, error)

	// EntriesByOwner lists entries for an owner within [from, to).
	// Soft-deleted rows are excluded.
	EntriesByOwner(ctx context.Context, owner actor.Ref, from, to time.Time) ([]Entry, error)
}

// Tx is the set of operations available inside Atomically.
type Tx interface {
	// WalletForUpdate locks the owner's balance row, creating a zero-balance
	// row first if the owner has never been funded.
	WalletForUpdate(ctx context.Context, owner actor.Ref) (Wallet, error)

	// SetBalance persists a balance computed by the service.
	SetBalance(ctx context.Context, owner actor.Ref, balance money.Money, now time.Time) error

	// EntryForUpdate locks one entry row. Soft-deleted entries are not
	// eligible for status transitions and are reported as ErrNotFound.
	EntryForUpdate(ctx context.Context, id string) (Entry, error)

	// TrashedEntryForUpdate locks one entry row regardless of soft
	// deletion, so a restore reads and writes under the same lock.
	TrashedEntryForUpdate(ctx context.Context, id string) (Entry, error)

	InsertEntry(ctx context.Context, e Entry) error
	UpdateEntry(ctx context.Context, e Entry) error
}
