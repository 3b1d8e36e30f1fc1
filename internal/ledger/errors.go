package ledger

import (
	"errors"
	"fmt"

	"tradepay-platform/internal/money"
)

var (
	ErrNotFound        = errors.New("ledger: entry not found")
	ErrInvalidArgument = errors.New("ledger: invalid argument")

	// ErrInsufficientFunds aliases the money package sentinel so callers can
	// match it regardless of which layer raised it.
	ErrInsufficientFunds = money.ErrInsufficientFunds
)

// InvalidStateError reports an attempted transition from a terminal status.
// The current status is part of the message so the boundary can surface it.
type InvalidStateError struct {
	Op     string
	Status EntryStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("ledger: cannot %s entry with status %s", e.Op, e.Status)
}
