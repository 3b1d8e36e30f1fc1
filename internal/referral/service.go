package referral

import (
	"context"
	"time"

	"tradepay-platform/internal/money"

	"github.com/google/uuid"
)

// Service manages referral links and settlement bookkeeping. Accumulation
// itself happens inside trade approval transactions via AccumulateTx.
type Service struct {
	store Store
	clock func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

// Link records that referrer referred the given user. A user can be
// referred at most once.
func (s *Service) Link(ctx context.Context, referrerID, referredID string) (Credit, error) {
	if referrerID == "" || referredID == "" || referrerID == referredID {
		return Credit{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	c := Credit{
		ID:               uuid.NewString(),
		ReferrerID:       referrerID,
		ReferredID:       referredID,
		CumulativeAmount: money.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if _, ok, err := tx.ByReferredForUpdate(ctx, referredID); err != nil {
			return err
		} else if ok {
			return ErrAlreadyLinked
		}
		return tx.Insert(ctx, c)
	})
	if err != nil {
		return Credit{}, err
	}
	return c, nil
}

func (s *Service) ByReferred(ctx context.Context, referredID string) (Credit, error) {
	if referredID == "" {
		return Credit{}, ErrInvalidArgument
	}
	return s.store.ByReferred(ctx, referredID)
}

func (s *Service) ByReferrer(ctx context.Context, referrerID string) ([]Credit, error) {
	if referrerID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ByReferrer(ctx, referrerID)
}

// MarkPaid freezes the credit and returns the settled amount. Paying the
// amount out is a separate admin ledger credit with the referral-bonus
// service class; the freeze here guarantees later approvals no longer
// accumulate regardless of when that payout lands.
func (s *Service) MarkPaid(ctx context.Context, referredID string) (Credit, error) {
	if referredID == "" {
		return Credit{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	var out Credit
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		c, ok, err := tx.ByReferredForUpdate(ctx, referredID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if err := c.MarkPaid(now); err != nil {
			return err
		}
		if err := tx.Update(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Credit{}, err
	}
	return out, nil
}
