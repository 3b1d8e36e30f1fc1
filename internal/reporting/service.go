package reporting

import (
	"context"
	"errors"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/money"
	"tradepay-platform/internal/review"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations should query immutable sources (the ledger, trade
// records); summaries are derived, never stored.

type Repository interface {
	ListEntries(ctx context.Context, ownerID string, from, to time.Time) ([]ledger.Entry, error)
	ListTrades(ctx context.Context, ownerID string, from, to time.Time) ([]review.Trade, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) StatementSummary(ctx context.Context, req StatementSummaryRequest) (StatementSummary, error) {
	if req.OwnerID == "" {
		return StatementSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return StatementSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return StatementSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListEntries(ctx, req.OwnerID, req.Range.From, req.Range.To)
	if err != nil {
		return StatementSummary{}, err
	}

	out := StatementSummary{
		OwnerID:     req.OwnerID,
		TotalCredit: money.Zero,
		TotalDebit:  money.Zero,
	}
	for _, e := range rows {
		out.TotalEntries++
		switch e.Status {
		case ledger.StatusCompleted:
			out.CompletedEntries++
			if e.Type == ledger.TypeCredit {
				out.TotalCredit = out.TotalCredit.Add(e.Amount)
			} else {
				out.TotalDebit = out.TotalDebit.Add(e.Amount)
			}
		case ledger.StatusPending:
			out.PendingEntries++
		case ledger.StatusClosed:
			out.ClosedEntries++
		case ledger.StatusCancelled:
			out.CancelledEntries++
		case ledger.StatusDeclined:
			out.DeclinedEntries++
		}
	}
	out.NetDelta = out.TotalCredit.Decimal().Sub(out.TotalDebit.Decimal())
	return out, nil
}

func (s *Service) TradeSummary(ctx context.Context, req TradeSummaryRequest) (TradeSummary, error) {
	if req.OwnerID == "" {
		return TradeSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return TradeSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return TradeSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListTrades(ctx, req.OwnerID, req.Range.From, req.Range.To)
	if err != nil {
		return TradeSummary{}, err
	}

	out := TradeSummary{
		OwnerID:       req.OwnerID,
		TotalPayable:  money.Zero,
		TotalCredited: money.Zero,
	}
	for _, t := range rows {
		// Children roll up into their parent; counting both would double
		// the figures.
		if t.ParentID != "" {
			continue
		}
		out.TotalTrades++
		out.TotalPayable = out.TotalPayable.Add(t.PayableAmount)
		out.TotalCredited = out.TotalCredited.Add(t.CreditedAmount)
		switch t.Status {
		case review.StatusPending:
			out.PendingTrades++
		case review.StatusTransferred:
			out.TransferredTrades++
		case review.StatusApproved:
			out.ApprovedTrades++
		case review.StatusPartiallyApproved:
			out.PartialTrades++
		case review.StatusDeclined:
			out.DeclinedTrades++
		}
	}
	return out, nil
}

// StoreRepo derives reports straight from the ledger and review stores.
type StoreRepo struct {
	Ledger  ledger.Store
	Reviews review.Store
}

func (r StoreRepo) ListEntries(ctx context.Context, ownerID string, from, to time.Time) ([]ledger.Entry, error) {
	return r.Ledger.EntriesByOwner(ctx, actor.User(ownerID), from, to)
}

func (r StoreRepo) ListTrades(ctx context.Context, ownerID string, from, to time.Time) ([]review.Trade, error) {
	return r.Reviews.TradesByOwner(ctx, ownerID, from, to)
}
