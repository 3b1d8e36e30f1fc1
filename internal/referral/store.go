package referral

import (
	"context"
	"time"

	"tradepay-platform/internal/money"
)

// Store is the persistence contract for referral credits.
type Store interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ByReferred(ctx context.Context, referredID string) (Credit, error)
	ByReferrer(ctx context.Context, referrerID string) ([]Credit, error)
}

type Tx interface {
	// ByReferredForUpdate locks the credit row for the referred user.
	// ok is false when the user was never referred; that is not an error.
	ByReferredForUpdate(ctx context.Context, referredID string) (c Credit, ok bool, err error)

	Insert(ctx context.Context, c Credit) error
	Update(ctx context.Context, c Credit) error
}

// AccumulateTx is the referral credit accumulator. It runs inside the
// caller's transaction so a trade approval and its referral bookkeeping
// commit together; the once-per-trade guarantee follows from the trade's
// own status transition being single-shot.
//
// Returns ok=false when the referred user has no referrer or the credit is
// already paid; neither blocks the approval.
func AccumulateTx(ctx context.Context, tx Tx, referredID string, amount money.Money, now time.Time) (Credit, bool, error) {
	c, ok, err := tx.ByReferredForUpdate(ctx, referredID)
	if err != nil {
		return Credit{}, false, err
	}
	if !ok || c.Paid {
		return Credit{}, false, nil
	}
	if err := c.Accumulate(amount, now); err != nil {
		return Credit{}, false, err
	}
	if err := tx.Update(ctx, c); err != nil {
		return Credit{}, false, err
	}
	return c, true, nil
}
