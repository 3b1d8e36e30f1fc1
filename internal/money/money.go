package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an immutable non-negative fixed-point amount.
//
// Invariants:
// - A Money value is never negative. Direction (credit vs debit) is carried
//   by the ledger entry type, not by the sign of the amount.
// - Comparison is by exact decimal value; no floating point is involved.
//
// Scale: NGN amounts are stored at 2 decimal places, crypto asset amounts
// at 8. Callers pick the scale at construction; arithmetic preserves it.
type Money struct {
	value decimal.Decimal
}

const (
	// ScaleNGN is the storage scale for naira amounts.
	ScaleNGN int32 = 2
	// ScaleCrypto is the storage scale for crypto asset quantities.
	ScaleCrypto int32 = 8
)

var (
	ErrNegativeAmount = errors.New("money: amount must not be negative")
	ErrInvalidAmount  = errors.New("money: invalid amount")

	// ErrInsufficientFunds is returned when a subtraction used as a balance
	// debit would take the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Zero is the zero NGN amount.
var Zero = Money{value: decimal.Zero}

// FromString parses a decimal string, rejecting negatives.
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	return Money{value: d}, nil
}

// FromStringScaled parses a decimal string and rounds it to the given scale.
func FromStringScaled(s string, scale int32) (Money, error) {
	m, err := FromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{value: m.value.Round(scale)}, nil
}

// MustFromString is FromString for constants in tests and fixtures.
func MustFromString(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal wraps an existing decimal, rejecting negatives.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	return Money{value: d}, nil
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{value: m.value.Add(other.value)}
}

// Sub returns m - other. The result would violate the non-negative
// invariant if other exceeds m, so that case is an error.
func (m Money) Sub(other Money) (Money, error) {
	if other.value.GreaterThan(m.value) {
		return Money{}, ErrInsufficientFunds
	}
	return Money{value: m.value.Sub(other.value)}, nil
}

// Mul returns m scaled by rate, rounded to the given scale.
// Used to derive NGN payable amounts from trade amount x rate.
func (m Money) Mul(rate decimal.Decimal, scale int32) (Money, error) {
	if rate.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	return Money{value: m.value.Mul(rate).Round(scale)}, nil
}

func (m Money) IsZero() bool { return m.value.IsZero() }

func (m Money) Equal(other Money) bool { return m.value.Equal(other.value) }

func (m Money) LessThan(other Money) bool { return m.value.LessThan(other.value) }

func (m Money) GreaterThan(other Money) bool { return m.value.GreaterThan(other.value) }

// Decimal exposes the underlying value for persistence (NUMERIC columns).
func (m Money) Decimal() decimal.Decimal { return m.value }

// String renders the exact decimal value.
func (m Money) String() string { return m.value.String() }

// StringScaled renders the value at a fixed scale (e.g. "5000.00" for NGN).
func (m Money) StringScaled(scale int32) string { return m.value.StringFixed(scale) }

// MarshalJSON renders Money as a JSON string to avoid float coercion.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.value.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
