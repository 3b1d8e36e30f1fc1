package ledger

import (
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/money"
)

// Entry is a single wallet balance movement.
//
// Invariants:
// - Entries are immutable once they reach a terminal status. The only
//   permitted transitions start from StatusPending (see transitions below).
// - Amount is always non-negative; direction is carried by Type.
// - Every balance mutation has exactly one corresponding entry written in
//   the same transaction. A credit or debit without an entry is a bug.
type Entry struct {
	ID string `json:"id" db:"id"`

	// Owner is the wallet holder the entry applies to.
	Owner actor.Ref `json:"owner"`
	// Causer is who initiated the movement (the owner, a counterparty, or
	// an admin). Passed explicitly; never read from an ambient global.
	Causer actor.Ref `json:"causer"`

	Amount money.Money `json:"amount"`

	Service ServiceClass `json:"service" db:"service"`
	Type    EntryType   `json:"type" db:"type"`
	Status  EntryStatus `json:"status" db:"status"`

	// BankRef is the customer's payout destination for withdrawals.
	BankRef string `json:"bank_ref,omitempty" db:"bank_ref"`

	Comment   string `json:"comment,omitempty" db:"comment"`
	Summary   string `json:"summary,omitempty" db:"summary"`
	AdminNote string `json:"admin_note,omitempty" db:"admin_note"`

	// ReceiptRef is an opaque reference to an uploaded receipt, if any.
	ReceiptRef string `json:"receipt_ref,omitempty" db:"receipt_ref"`

	// CounterpartID links the two halves of a transfer to each other.
	CounterpartID string `json:"counterpart_id,omitempty" db:"counterpart_id"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

type EntryType string

const (
	TypeCredit EntryType = "CREDIT"
	TypeDebit  EntryType = "DEBIT"
)

type EntryStatus string

const (
	StatusPending   EntryStatus = "PENDING"
	StatusCompleted EntryStatus = "COMPLETED"
	StatusClosed    EntryStatus = "CLOSED"
	StatusCancelled EntryStatus = "CANCELLED"
	StatusDeclined  EntryStatus = "DECLINED"
)

// Terminal reports whether no further status change is permitted.
func (s EntryStatus) Terminal() bool { return s != StatusPending }

// ServiceClass classifies what business flow produced the entry.
type ServiceClass string

const (
	ServiceWalletFunding    ServiceClass = "wallet-funding"
	ServiceWithdrawal       ServiceClass = "withdrawal"
	ServiceTransfer         ServiceClass = "transfer"
	ServiceGiftcardProceeds ServiceClass = "giftcard-proceeds"
	ServiceAssetProceeds    ServiceClass = "asset-proceeds"
	ServiceReferralBonus    ServiceClass = "referral-bonus"
)

// CancelledSummary is stamped onto entries cancelled for lack of funds.
const CancelledSummary = "transaction can no longer be fulfilled due to insufficient balance"

/* ===================== STATE TRANSITIONS ===================== */

// The transition methods are the only way an entry changes status.
// Each fails loudly with *InvalidStateError when the entry is not PENDING;
// a repeat invocation on a terminal entry never silently no-ops.

func (e *Entry) Complete(now time.Time) error {
	if e.Status != StatusPending {
		return &InvalidStateError{Op: "complete", Status: e.Status}
	}
	e.Status = StatusCompleted
	e.UpdatedAt = now
	return nil
}

func (e *Entry) Close(now time.Time) error {
	if e.Status != StatusPending {
		return &InvalidStateError{Op: "close", Status: e.Status}
	}
	e.Status = StatusClosed
	e.UpdatedAt = now
	return nil
}

func (e *Entry) Cancel(now time.Time) error {
	if e.Status != StatusPending {
		return &InvalidStateError{Op: "cancel", Status: e.Status}
	}
	e.Status = StatusCancelled
	e.Summary = CancelledSummary
	e.UpdatedAt = now
	return nil
}

func (e *Entry) Decline(note string, now time.Time) error {
	if e.Status != StatusPending {
		return &InvalidStateError{Op: "decline", Status: e.Status}
	}
	e.Status = StatusDeclined
	e.AdminNote = note
	e.UpdatedAt = now
	return nil
}

// Wallet is the balance projection for one owner.
//
// Balance is mutated exclusively by Service inside a store transaction;
// handlers never write it directly.
type Wallet struct {
	Owner     actor.Ref   `json:"owner"`
	Balance   money.Money `json:"balance"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}
