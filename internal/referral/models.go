package referral

import (
	"errors"
	"time"

	"tradepay-platform/internal/money"
)

// Credit tracks what a referrer is owed for one referred user.
//
// Invariants:
// - A referred user appears in at most one credit row (one referrer).
// - CumulativeAmount only grows, and only through trade approvals.
// - Once Paid is set the amount is frozen; later approvals by the referred
//   user no longer accumulate.
type Credit struct {
	ID         string `json:"id" db:"id"`
	ReferrerID string `json:"referrer_id" db:"referrer_id"`
	ReferredID string `json:"referred_id" db:"referred_id"`

	CumulativeAmount money.Money `json:"cumulative_amount"`

	Paid   bool       `json:"paid" db:"paid"`
	PaidAt *time.Time `json:"paid_at,omitempty" db:"paid_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var (
	ErrNotFound        = errors.New("referral: credit not found")
	ErrAlreadyLinked   = errors.New("referral: user already has a referrer")
	ErrAlreadyPaid     = errors.New("referral: credit already paid")
	ErrInvalidArgument = errors.New("referral: invalid argument")
)

// Accumulate adds amount to the running total. Paid credits are frozen.
func (c *Credit) Accumulate(amount money.Money, now time.Time) error {
	if c.Paid {
		return ErrAlreadyPaid
	}
	c.CumulativeAmount = c.CumulativeAmount.Add(amount)
	c.UpdatedAt = now
	return nil
}

// MarkPaid freezes the credit. Settling the owed amount into the
// referrer's wallet is a separate explicit ledger credit.
func (c *Credit) MarkPaid(now time.Time) error {
	if c.Paid {
		return ErrAlreadyPaid
	}
	c.Paid = true
	c.PaidAt = &now
	c.UpdatedAt = now
	return nil
}
