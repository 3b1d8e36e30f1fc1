package review

import (
	"context"
	"time"

	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/referral"
)

// Store is the persistence boundary for trades. A decision touches the
// trade row, the seller's wallet, and the referral ledger in one unit of
// work, so Tx exposes the sibling packages' transaction views alongside
// the trade operations.
type Store interface {
	// Atomically runs fn in a single transaction spanning trades, ledger
	// and referral state, committing only when fn returns nil.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Trade(ctx context.Context, id string) (Trade, error)
	TradesByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]Trade, error)
	PendingByCategory(ctx context.Context, kind Kind, category string) ([]Trade, error)
}

type Tx interface {
	// TradeForUpdate locks the trade row for the duration of the
	// transaction.
	TradeForUpdate(ctx context.Context, id string) (Trade, error)

	// Children returns the sub-records of a composite trade.
	Children(ctx context.Context, parentID string) ([]Trade, error)

	InsertTrade(ctx context.Context, t Trade) error
	UpdateTrade(ctx context.Context, t Trade) error

	// Ledger and Referrals expose the same transaction to the sibling
	// stores so credits and bonus accruals commit with the decision.
	Ledger() ledger.Tx
	Referrals() referral.Tx
}
