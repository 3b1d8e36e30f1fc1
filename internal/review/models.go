package review

import (
	"errors"
	"fmt"
	"time"

	"tradepay-platform/internal/money"

	"github.com/shopspring/decimal"
)

// Trade is a reviewable giftcard or crypto-asset sale.
//
// Invariants:
// - reviewed_by and reviewed_at are set together, by the deciding admin.
// - APPROVED and DECLINED are terminal. PARTIALLYAPPROVED accepts further
//   approvals for the remainder until a complete approval lands.
// - Proceeds are credited only through the review gate; a trade never
//   credits a wallet twice for the same decision because decisions run
//   under the trade row lock.
// - Children of a composite sale are never decided individually. The
//   parent carries the aggregated payable, and its terminal decision
//   settles the children in the same transaction.
type Trade struct {
	ID string `json:"id" db:"id"`

	Kind     Kind   `json:"kind" db:"kind"`
	Category string `json:"category" db:"category"`

	// OwnerID is the selling user.
	OwnerID string `json:"owner_id" db:"owner_id"`

	// ParentID links child sub-records (e.g. the individual cards of a
	// multi-card giftcard sale) to their parent trade.
	ParentID string `json:"parent_id,omitempty" db:"parent_id"`

	// Amount is the traded quantity: card face value or coin quantity.
	Amount money.Money `json:"amount"`

	// Rate is the NGN-per-unit rate locked in at submission.
	Rate decimal.Decimal `json:"rate" db:"rate"`

	// PayableAmount is the NGN proceeds at full approval. For parents with
	// children this aggregates the children's payable amounts.
	PayableAmount money.Money `json:"payable_amount"`

	// CreditedAmount is the NGN total credited so far across partial
	// approvals.
	CreditedAmount money.Money `json:"credited_amount"`

	Status Status `json:"status" db:"status"`

	ReviewedBy string     `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`

	ReviewNote string `json:"review_note,omitempty" db:"review_note"`

	// ProofRef is an opaque reference to uploaded review evidence.
	ProofRef string `json:"proof_ref,omitempty" db:"proof_ref"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Kind string

const (
	KindGiftcard Kind = "giftcard"
	KindAsset    Kind = "asset"
)

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusTransferred       Status = "TRANSFERRED"
	StatusApproved          Status = "APPROVED"
	StatusPartiallyApproved Status = "PARTIALLYAPPROVED"
	StatusDeclined          Status = "DECLINED"
)

// Terminal reports whether no further decision is permitted.
// PARTIALLYAPPROVED is not terminal; see Approvable.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDeclined
}

// Approvable reports whether an approve decision may be issued.
func (s Status) Approvable() bool {
	return s == StatusPending || s == StatusTransferred || s == StatusPartiallyApproved
}

// Declinable reports whether a decline decision may be issued. A trade
// that already had money credited cannot be declined wholesale.
func (s Status) Declinable() bool {
	return s == StatusPending || s == StatusTransferred
}

// DisplayStatus is what listings show: parents of composite trades read
// "multiple" instead of their own status.
func (t Trade) DisplayStatus(childCount int) string {
	if childCount > 0 {
		return "multiple"
	}
	return string(t.Status)
}

var (
	ErrNotFound        = errors.New("review: trade not found")
	ErrForbidden       = errors.New("review: reviewer not authorized for this trade")
	ErrInvalidArgument = errors.New("review: invalid argument")

	// ErrChildTrade rejects decisions aimed at a child of a composite
	// trade. Children are line items of the group; decisions target the
	// parent and the parent's verdict settles them.
	ErrChildTrade = errors.New("review: decisions apply to the parent trade")
)

// InvalidStateError reports a decision attempted against a status that
// does not permit it.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("review: cannot %s trade with status %s", e.Op, e.Status)
}

/* ===================== STATE TRANSITIONS ===================== */

// MarkTransferred records the seller's confirmation that they sent the
// asset. Asset trades only; giftcard sales go straight to review.
func (t *Trade) MarkTransferred(now time.Time) error {
	if t.Kind != KindAsset {
		return ErrInvalidArgument
	}
	if t.Status != StatusPending {
		return &InvalidStateError{Op: "mark transferred", Status: t.Status}
	}
	t.Status = StatusTransferred
	t.UpdatedAt = now
	return nil
}

func (t *Trade) approve(reviewerID string, complete bool, credited money.Money, note, proofRef string, now time.Time) error {
	if !t.Status.Approvable() {
		return &InvalidStateError{Op: "approve", Status: t.Status}
	}
	if complete {
		t.Status = StatusApproved
	} else {
		t.Status = StatusPartiallyApproved
	}
	t.CreditedAmount = t.CreditedAmount.Add(credited)
	t.ReviewedBy = reviewerID
	t.ReviewedAt = &now
	if note != "" {
		t.ReviewNote = note
	}
	if proofRef != "" {
		t.ProofRef = proofRef
	}
	t.UpdatedAt = now
	return nil
}

func (t *Trade) decline(reviewerID, note, proofRef string, now time.Time) error {
	if !t.Status.Declinable() {
		return &InvalidStateError{Op: "decline", Status: t.Status}
	}
	t.Status = StatusDeclined
	t.ReviewedBy = reviewerID
	t.ReviewedAt = &now
	t.ReviewNote = note
	t.ProofRef = proofRef
	t.UpdatedAt = now
	return nil
}
