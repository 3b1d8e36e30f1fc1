package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/money"
	"tradepay-platform/internal/notify"
	"tradepay-platform/internal/rates"
	"tradepay-platform/internal/referral"

	"github.com/google/uuid"
)

// Authorizer decides whether an admin may review trades of a given kind
// and category. Regular admins are scoped to assigned categories; a
// superadmin bypasses scoping.
type Authorizer interface {
	CanReview(ctx context.Context, adminID string, kind Kind, category string) (bool, error)
}

// RateQuoter computes the NGN payable for a traded quantity.
type RateQuoter interface {
	ComputePayable(ctx context.Context, req rates.PayableRequest) (rates.Payable, error)
}

// Service is the review gate: the admin approve/decline workflow that
// governs whether a trade's proceeds are credited.
//
// Approval is the only path from a trade to a wallet credit, and the
// credit, the status transition and the referral accrual commit in one
// transaction. The trade row lock serializes concurrent decisions, so the
// second of two racing approvals sees a non-approvable status and fails
// with InvalidStateError instead of double-crediting.
type Service struct {
	store    Store
	quoter   RateQuoter
	authz    Authorizer
	notifier notify.Notifier
	log      *slog.Logger

	clock func() time.Time
}

func NewService(store Store, quoter RateQuoter, authz Authorizer, notifier notify.Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		quoter:   quoter,
		authz:    authz,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
	}
}

/* ===================== SUBMISSION ===================== */

// SubmitRequest describes a trade being put up for review. One amount
// submits a single trade; several amounts (a multi-card giftcard sale)
// submit a parent plus one child per amount, with the parent's payable
// aggregating the children's.
type SubmitRequest struct {
	Kind     Kind
	Category string
	Amounts  []money.Money
}

func (s *Service) Submit(ctx context.Context, ownerID string, req SubmitRequest) (Trade, error) {
	if ownerID == "" || len(req.Amounts) == 0 {
		return Trade{}, ErrInvalidArgument
	}
	if req.Kind != KindGiftcard && req.Kind != KindAsset {
		return Trade{}, ErrInvalidArgument
	}
	scale := storageScale(req.Kind)
	for _, a := range req.Amounts {
		if a.IsZero() {
			return Trade{}, ErrInvalidArgument
		}
		rounded, err := money.FromStringScaled(a.String(), scale)
		if err != nil {
			return Trade{}, err
		}
		if !rounded.Equal(a) {
			// More precision than the storage scale can hold. Reject
			// rather than silently round the seller's amount.
			return Trade{}, ErrInvalidArgument
		}
	}

	now := s.clock().UTC()

	quote := func(amount money.Money) (rates.Payable, error) {
		return s.quoter.ComputePayable(ctx, rates.PayableRequest{
			Kind:     string(req.Kind),
			Category: req.Category,
			Amount:   amount,
			At:       now,
		})
	}

	newTrade := func(amount money.Money, p rates.Payable, parentID string) Trade {
		return Trade{
			ID:            uuid.NewString(),
			Kind:          req.Kind,
			Category:      req.Category,
			OwnerID:       ownerID,
			ParentID:      parentID,
			Amount:        amount,
			Rate:          p.PerUnit,
			PayableAmount: p.Amount,
			Status:        StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	var parent Trade
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		if len(req.Amounts) == 1 {
			p, err := quote(req.Amounts[0])
			if err != nil {
				return err
			}
			parent = newTrade(req.Amounts[0], p, "")
			return tx.InsertTrade(ctx, parent)
		}

		total := money.Zero
		payable := money.Zero
		children := make([]Trade, 0, len(req.Amounts))
		parentID := uuid.NewString()
		for _, a := range req.Amounts {
			p, err := quote(a)
			if err != nil {
				return err
			}
			children = append(children, newTrade(a, p, parentID))
			total = total.Add(a)
			payable = payable.Add(p.Amount)
		}

		parent = Trade{
			ID:            parentID,
			Kind:          req.Kind,
			Category:      req.Category,
			OwnerID:       ownerID,
			Amount:        total,
			Rate:          children[0].Rate,
			PayableAmount: payable,
			Status:        StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertTrade(ctx, parent); err != nil {
			return err
		}
		for _, c := range children {
			if err := tx.InsertTrade(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Trade{}, err
	}
	return parent, nil
}

// MarkTransferred records that the seller sent the asset. Only the owner
// may call it, and only for asset trades still PENDING.
func (s *Service) MarkTransferred(ctx context.Context, ownerID, tradeID string) (Trade, error) {
	if ownerID == "" || tradeID == "" {
		return Trade{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	var out Trade
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TradeForUpdate(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.ParentID != "" {
			return ErrChildTrade
		}
		if t.OwnerID != ownerID {
			return ErrForbidden
		}
		if err := t.MarkTransferred(now); err != nil {
			return err
		}
		if err := tx.UpdateTrade(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return Trade{}, err
	}
	return out, nil
}

/* ===================== DECISIONS ===================== */

// Decision carries an admin's review verdict.
type Decision struct {
	// Complete approves the trade in full; the remaining payable (or
	// ReviewAmount when the admin adjusts it) is credited and the trade
	// goes terminal. When false only ReviewAmount is credited and the
	// trade stays open as PARTIALLYAPPROVED.
	Complete bool

	// ReviewAmount overrides the credited amount. Required for partial
	// approvals; optional for complete ones.
	ReviewAmount *money.Money

	Note     string
	ProofRef string
}

// Approve applies an approve decision. In one transaction it transitions
// the trade, credits the owner's wallet with a proceeds ledger entry and
// accrues the credited amount onto the owner's unpaid referral credit.
func (s *Service) Approve(ctx context.Context, reviewerID, tradeID string, d Decision) (Trade, error) {
	if reviewerID == "" || tradeID == "" {
		return Trade{}, ErrInvalidArgument
	}
	if !d.Complete && d.ReviewAmount == nil {
		return Trade{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	var out Trade
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TradeForUpdate(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.ParentID != "" {
			return ErrChildTrade
		}
		if err := s.authorize(ctx, reviewerID, t); err != nil {
			return err
		}

		remaining, err := t.PayableAmount.Sub(t.CreditedAmount)
		if err != nil {
			return err
		}
		credited := remaining
		if d.ReviewAmount != nil {
			credited = *d.ReviewAmount
			if remaining.LessThan(credited) {
				return ErrInvalidArgument
			}
		}
		if !d.Complete && credited.IsZero() {
			return ErrInvalidArgument
		}

		if err := t.approve(reviewerID, d.Complete, credited, d.Note, d.ProofRef, now); err != nil {
			return err
		}
		if err := tx.UpdateTrade(ctx, t); err != nil {
			return err
		}

		if !credited.IsZero() {
			entry := ledger.Entry{
				ID:         uuid.NewString(),
				Owner:      actor.User(t.OwnerID),
				Causer:     actor.Admin(reviewerID),
				Amount:     credited,
				Service:    proceedsClass(t.Kind),
				Type:       ledger.TypeCredit,
				Status:     ledger.StatusCompleted,
				Comment:    fmt.Sprintf("%s trade %s proceeds", t.Kind, t.ID),
				ReceiptRef: d.ProofRef,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if _, err := ledger.ApplyTx(ctx, tx.Ledger(), entry); err != nil {
				return err
			}
			if _, _, err := referral.AccumulateTx(ctx, tx.Referrals(), t.OwnerID, credited, now); err != nil {
				return err
			}
		}

		if err := settleChildren(ctx, tx, t, now); err != nil {
			return err
		}

		out = t
		return nil
	})
	if err != nil {
		return Trade{}, err
	}

	s.sendNotification(ctx, notify.Message{
		Kind:        notify.KindTradeReviewed,
		Destination: out.OwnerID,
		Body:        fmt.Sprintf("your %s trade was %s", out.Kind, statusWord(out.Status)),
	})
	return out, nil
}

// Decline applies a decline decision. No ledger effect.
func (s *Service) Decline(ctx context.Context, reviewerID, tradeID, note, proofRef string) (Trade, error) {
	if reviewerID == "" || tradeID == "" {
		return Trade{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	var out Trade
	err := s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TradeForUpdate(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.ParentID != "" {
			return ErrChildTrade
		}
		if err := s.authorize(ctx, reviewerID, t); err != nil {
			return err
		}
		if err := t.decline(reviewerID, note, proofRef, now); err != nil {
			return err
		}
		if err := tx.UpdateTrade(ctx, t); err != nil {
			return err
		}
		if err := settleChildren(ctx, tx, t, now); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return Trade{}, err
	}

	s.sendNotification(ctx, notify.Message{
		Kind:        notify.KindTradeReviewed,
		Destination: out.OwnerID,
		Body:        fmt.Sprintf("your %s trade was declined", out.Kind),
	})
	return out, nil
}

/* ===================== READS ===================== */

// TradeView is a trade plus the listing fields derived from its children.
type TradeView struct {
	Trade
	Children      []Trade `json:"children,omitempty"`
	DisplayStatus string  `json:"display_status"`
}

func (s *Service) GetTrade(ctx context.Context, id string) (TradeView, error) {
	if id == "" {
		return TradeView{}, ErrInvalidArgument
	}
	t, err := s.store.Trade(ctx, id)
	if err != nil {
		return TradeView{}, err
	}

	var children []Trade
	err = s.store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		children, err = tx.Children(ctx, id)
		return err
	})
	if err != nil {
		return TradeView{}, err
	}
	return TradeView{
		Trade:         t,
		Children:      children,
		DisplayStatus: t.DisplayStatus(len(children)),
	}, nil
}

func (s *Service) TradesByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]Trade, error) {
	if ownerID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.TradesByOwner(ctx, ownerID, from, to)
}

// ReviewQueue lists undecided trades for a category an admin works.
// Children of composite sales are excluded; the parent represents the
// group.
func (s *Service) ReviewQueue(ctx context.Context, reviewerID string, kind Kind, category string) ([]Trade, error) {
	if reviewerID == "" || category == "" {
		return nil, ErrInvalidArgument
	}
	ok, err := s.authz.CanReview(ctx, reviewerID, kind, category)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return s.store.PendingByCategory(ctx, kind, category)
}

/* ===================== HELPERS ===================== */

func (s *Service) authorize(ctx context.Context, reviewerID string, t Trade) error {
	ok, err := s.authz.CanReview(ctx, reviewerID, t.Kind, t.Category)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// settleChildren copies a terminal decision onto the parent's children,
// inside the decision transaction. A partial approval leaves the group
// open, so nothing is settled until the parent goes terminal.
func settleChildren(ctx context.Context, tx Tx, parent Trade, now time.Time) error {
	if !parent.Status.Terminal() {
		return nil
	}
	children, err := tx.Children(ctx, parent.ID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Status.Terminal() {
			continue
		}
		c.Status = parent.Status
		c.ReviewedBy = parent.ReviewedBy
		c.ReviewedAt = parent.ReviewedAt
		c.UpdatedAt = now
		if err := tx.UpdateTrade(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// storageScale is the finest scale a submitted amount may carry: card
// face values at NGN scale, coin quantities at crypto scale.
func storageScale(k Kind) int32 {
	if k == KindAsset {
		return money.ScaleCrypto
	}
	return money.ScaleNGN
}

func proceedsClass(k Kind) ledger.ServiceClass {
	if k == KindAsset {
		return ledger.ServiceAssetProceeds
	}
	return ledger.ServiceGiftcardProceeds
}

func statusWord(st Status) string {
	if st == StatusPartiallyApproved {
		return "partially approved"
	}
	return "approved"
}

func (s *Service) sendNotification(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Warn("notification send failed", "kind", msg.Kind, "destination", msg.Destination, "err", err)
	}
}
