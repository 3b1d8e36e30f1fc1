package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/money"
	"tradepay-platform/internal/notify"

	"github.com/google/uuid"
)

// Service is the balance mutator and entry lifecycle owner.
//
// Money invariants:
// - wallet_balance never goes negative; a debit that would overdraw fails
//   with ErrInsufficientFunds and persists nothing.
// - Every balance mutation writes exactly one entry in the same store
//   transaction (two for transfers, one per side).
// - Status transitions happen only here, under a row lock, so concurrent
//   decisions on the same pending entry cannot both pass the status check.
type Service struct {
	store    Store
	notifier notify.Notifier
	log      *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, notifier notify.Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, notifier: notifier, log: log, clock: time.Now}
}

// TransferResult describes the outcome of a wallet-to-wallet transfer.
type TransferResult struct {
	DebitEntry  Entry  `json:"debit_entry"`
	CreditEntry Entry  `json:"credit_entry"`
	FromWallet  Wallet `json:"from_wallet"`
	ToWallet    Wallet `json:"to_wallet"`
}

func (s *Service) GetBalance(ctx context.Context, owner actor.Ref) (Wallet, error) {
	if !owner.Valid() {
		return Wallet{}, ErrInvalidArgument
	}
	return s.store.Wallet(ctx, owner)
}

// GetEntry reads one entry. withTrashed includes soft-deleted rows; every
// caller states that choice explicitly.
func (s *Service) GetEntry(ctx context.Context, id string, withTrashed bool) (Entry, error) {
	if id == "" {
		return Entry{}, ErrInvalidArgument
	}
	return s.store.Entry(ctx, id, withTrashed)
}

// Entries lists an owner's entries within [from, to). Soft-deleted rows
// are excluded.
func (s *Service) Entries(ctx context.Context, owner actor.Ref, from, to time.Time) ([]Entry, error) {
	if !owner.Valid() {
		return nil, ErrInvalidArgument
	}
	return s.store.EntriesByOwner(ctx, owner, from, to)
}

/* ===================== CREDIT / DEBIT ===================== */

// Credit adds amount to the owner's balance and records a COMPLETED CREDIT
// entry in the same transaction.
func (s *Service) Credit(ctx context.Context, causer, owner actor.Ref, amount money.Money, svc ServiceClass, comment string) (Entry, Wallet, error) {
	return s.post(ctx, causer, owner, amount, svc, TypeCredit, comment)
}

// Debit subtracts amount from the owner's balance if and only if the
// balance covers it, recording a COMPLETED DEBIT entry. On insufficient
// funds nothing is persisted.
func (s *Service) Debit(ctx context.Context, causer, owner actor.Ref, amount money.Money, svc ServiceClass, comment string) (Entry, Wallet, error) {
	return s.post(ctx, causer, owner, amount, svc, TypeDebit, comment)
}

func (s *Service) post(ctx context.Context, causer, owner actor.Ref, amount money.Money, svc ServiceClass, typ EntryType, comment string) (Entry, Wallet, error) {
	if err := validatePosting(causer, owner, amount); err != nil {
		return Entry{}, Wallet{}, err
	}

	now := s.clock().UTC()
	entry := Entry{
		ID:        uuid.NewString(),
		Owner:     owner,
		Causer:    causer,
		Amount:    amount,
		Service:   svc,
		Type:      typ,
		Status:    StatusCompleted,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var outWallet Wallet
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		w, err := ApplyTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		outWallet = w
		return nil
	})
	if err != nil {
		return Entry{}, Wallet{}, err
	}
	return entry, outWallet, nil
}

/* ===================== TRANSFER ===================== */

// Transfer moves amount between two owners as one atomic operation: the
// sender is debited, the receiver credited, and two counterpart-linked
// COMPLETED entries are written. If any step fails the whole operation
// rolls back.
func (s *Service) Transfer(ctx context.Context, causer, from, to actor.Ref, amount money.Money, comment, receiptRef string) (TransferResult, error) {
	if err := validatePosting(causer, from, amount); err != nil {
		return TransferResult{}, err
	}
	if !to.Valid() || from.Key() == to.Key() {
		return TransferResult{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	debitID := uuid.NewString()
	creditID := uuid.NewString()

	debit := Entry{
		ID:            debitID,
		Owner:         from,
		Causer:        causer,
		Amount:        amount,
		Service:       ServiceTransfer,
		Type:          TypeDebit,
		Status:        StatusCompleted,
		Comment:       comment,
		ReceiptRef:    receiptRef,
		CounterpartID: creditID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	credit := Entry{
		ID:            creditID,
		Owner:         to,
		Causer:        causer,
		Amount:        amount,
		Service:       ServiceTransfer,
		Type:          TypeCredit,
		Status:        StatusCompleted,
		Comment:       comment,
		ReceiptRef:    receiptRef,
		CounterpartID: debitID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var out TransferResult
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		// Lock both wallets in deterministic order to avoid lock inversion
		// between two opposite concurrent transfers.
		first, second := from, to
		if second.Key() < first.Key() {
			first, second = second, first
		}
		wallets := map[string]Wallet{}
		for _, ref := range []actor.Ref{first, second} {
			w, err := tx.WalletForUpdate(ctx, ref)
			if err != nil {
				return err
			}
			wallets[ref.Key()] = w
		}

		fromBalance, err := wallets[from.Key()].Balance.Sub(amount)
		if err != nil {
			return err
		}
		toBalance := wallets[to.Key()].Balance.Add(amount)

		if err := tx.InsertEntry(ctx, debit); err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, credit); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, from, fromBalance, now); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, to, toBalance, now); err != nil {
			return err
		}

		out = TransferResult{
			DebitEntry:  debit,
			CreditEntry: credit,
			FromWallet:  Wallet{Owner: from, Balance: fromBalance, UpdatedAt: now},
			ToWallet:    Wallet{Owner: to, Balance: toBalance, UpdatedAt: now},
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	s.sendNotification(ctx, notify.Message{
		Kind:        notify.KindTransferReceived,
		Destination: to.ID,
		Body:        fmt.Sprintf("you received %s from %s", amount.StringScaled(money.ScaleNGN), from.ID),
	})
	return out, nil
}

/* ===================== WITHDRAWAL LIFECYCLE ===================== */

// RequestWithdrawal creates a PENDING DEBIT entry. The balance is not
// touched until an admin approves; funds are checked at approval time.
func (s *Service) RequestWithdrawal(ctx context.Context, owner actor.Ref, amount money.Money, bankRef, comment string) (Entry, error) {
	if err := validatePosting(owner, owner, amount); err != nil {
		return Entry{}, err
	}
	if bankRef == "" {
		return Entry{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	entry := Entry{
		ID:        uuid.NewString(),
		Owner:     owner,
		Causer:    owner,
		Amount:    amount,
		Service:   ServiceWithdrawal,
		Type:      TypeDebit,
		Status:    StatusPending,
		BankRef:   bankRef,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Approve finalizes a pending entry: a pending DEBIT (withdrawal) debits
// the balance, a pending CREDIT (funding awaiting confirmation) credits
// it. Insufficient balance fails the approval without mutating anything;
// the admin may then cancel the entry.
func (s *Service) Approve(ctx context.Context, reviewer actor.Ref, entryID string) (Entry, Wallet, error) {
	if reviewer.Kind != actor.KindAdmin || !reviewer.Valid() || entryID == "" {
		return Entry{}, Wallet{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	var outEntry Entry
	var outWallet Wallet

	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		entry, err := tx.EntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}

		w, err := tx.WalletForUpdate(ctx, entry.Owner)
		if err != nil {
			return err
		}

		balance := w.Balance
		if entry.Type == TypeDebit {
			balance, err = balance.Sub(entry.Amount)
			if err != nil {
				return err
			}
		} else {
			balance = balance.Add(entry.Amount)
		}

		if err := entry.Complete(now); err != nil {
			return err
		}
		entry.Causer = reviewer

		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, entry.Owner, balance, now); err != nil {
			return err
		}
		outEntry = entry
		outWallet = Wallet{Owner: entry.Owner, Balance: balance, UpdatedAt: now}
		return nil
	})
	if err != nil {
		return Entry{}, Wallet{}, err
	}

	s.sendNotification(ctx, notify.Message{
		Kind:        notify.KindWithdrawalReviewed,
		Destination: outEntry.Owner.ID,
		Body:        fmt.Sprintf("your %s of %s was approved", outEntry.Service, outEntry.Amount.StringScaled(money.ScaleNGN)),
	})
	return outEntry, outWallet, nil
}

// Close transitions a pending entry to CLOSED with no balance effect.
func (s *Service) Close(ctx context.Context, causer actor.Ref, entryID string) (Entry, error) {
	return s.transition(ctx, causer, entryID, func(e *Entry, now time.Time) error {
		return e.Close(now)
	})
}

// Cancel transitions a pending entry to CANCELLED, stamping the
// insufficient-balance summary. No balance effect.
func (s *Service) Cancel(ctx context.Context, causer actor.Ref, entryID string) (Entry, error) {
	return s.transition(ctx, causer, entryID, func(e *Entry, now time.Time) error {
		return e.Cancel(now)
	})
}

// Decline transitions a pending entry to DECLINED and stores the admin
// note. No balance effect.
func (s *Service) Decline(ctx context.Context, reviewer actor.Ref, entryID, note string) (Entry, error) {
	if reviewer.Kind != actor.KindAdmin {
		return Entry{}, ErrInvalidArgument
	}
	entry, err := s.transition(ctx, reviewer, entryID, func(e *Entry, now time.Time) error {
		return e.Decline(note, now)
	})
	if err != nil {
		return Entry{}, err
	}

	s.sendNotification(ctx, notify.Message{
		Kind:        notify.KindWithdrawalReviewed,
		Destination: entry.Owner.ID,
		Body:        fmt.Sprintf("your %s of %s was declined", entry.Service, entry.Amount.StringScaled(money.ScaleNGN)),
	})
	return entry, nil
}

func (s *Service) transition(ctx context.Context, causer actor.Ref, entryID string, apply func(e *Entry, now time.Time) error) (Entry, error) {
	if !causer.Valid() || entryID == "" {
		return Entry{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	var out Entry
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		entry, err := tx.EntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if err := apply(&entry, now); err != nil {
			return err
		}
		entry.Causer = causer
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return out, nil
}

/* ===================== SOFT DELETE ===================== */

// SoftDelete hides an entry from default reads; history is never erased.
func (s *Service) SoftDelete(ctx context.Context, causer actor.Ref, entryID string) (Entry, error) {
	if causer.Kind != actor.KindAdmin || entryID == "" {
		return Entry{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	var out Entry
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		entry, err := tx.EntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		entry.DeletedAt = &now
		entry.UpdatedAt = now
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return out, nil
}

// Restore clears a soft delete. The trashed row is read and rewritten
// under the same row lock.
func (s *Service) Restore(ctx context.Context, causer actor.Ref, entryID string) (Entry, error) {
	if causer.Kind != actor.KindAdmin || entryID == "" {
		return Entry{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	var out Entry
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		entry, err := tx.TrashedEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		entry.DeletedAt = nil
		entry.UpdatedAt = now
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return out, nil
}

func (s *Service) sendNotification(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Warn("notification send failed", "kind", msg.Kind, "destination", msg.Destination, "err", err)
	}
}

func validatePosting(causer, owner actor.Ref, amount money.Money) error {
	if !causer.Valid() || !owner.Valid() {
		return ErrInvalidArgument
	}
	if amount.IsZero() {
		return ErrInvalidArgument
	}
	return nil
}
