package rates

import (
	"context"
	"errors"
	"time"

	"tradepay-platform/internal/money"

	"github.com/shopspring/decimal"
)

// Service resolves the effective rate for a trade category and computes
// the NGN payable amount. Pure calculation plus repository lookups; the
// review gate consumes the result when a trade is submitted.
type Service struct {
	repo  RateRepository
	clock func() time.Time
}

func NewService(repo RateRepository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

type PayableRequest struct {
	Kind     string
	Category string

	// Amount is the traded quantity (card face value or coin quantity).
	Amount money.Money

	// At determines which effective rate to use. If zero, service clock.
	At time.Time
}

type Payable struct {
	Kind     string
	Category string

	PerUnit decimal.Decimal

	// Amount is the NGN proceeds, quantized to 2 decimal places.
	Amount money.Money
}

var (
	ErrRateNotFound = errors.New("rates: rate not found")
	ErrInvalidReq   = errors.New("rates: invalid request")
)

func (s *Service) ComputePayable(ctx context.Context, req PayableRequest) (Payable, error) {
	if req.Kind == "" || req.Category == "" {
		return Payable{}, ErrInvalidReq
	}
	if req.Amount.IsZero() {
		return Payable{}, ErrInvalidReq
	}

	at := req.At
	if at.IsZero() {
		at = s.clock().UTC()
	}

	r, ok, err := s.repo.FindRate(ctx, req.Kind, req.Category, at)
	if err != nil {
		return Payable{}, err
	}
	if !ok {
		return Payable{}, ErrRateNotFound
	}

	payable, err := req.Amount.Mul(r.PerUnit, money.ScaleNGN)
	if err != nil {
		return Payable{}, err
	}

	return Payable{
		Kind:     req.Kind,
		Category: req.Category,
		PerUnit:  r.PerUnit,
		Amount:   payable,
	}, nil
}

// RateRepository abstracts rate persistence. Implementations can be
// Postgres, cached, etc.
type RateRepository interface {
	FindRate(ctx context.Context, kind, category string, at time.Time) (Rate, bool, error)
}
