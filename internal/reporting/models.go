package reporting

import (
	"time"

	"tradepay-platform/internal/money"

	"github.com/shopspring/decimal"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// StatementSummaryRequest requests aggregated wallet statement metrics
// for one owner.

type StatementSummaryRequest struct {
	OwnerID string    `json:"owner_id"`
	Range   TimeRange `json:"range"`
}

type StatementSummary struct {
	OwnerID string `json:"owner_id"`

	TotalEntries     int `json:"total_entries"`
	CompletedEntries int `json:"completed_entries"`
	PendingEntries   int `json:"pending_entries"`
	ClosedEntries    int `json:"closed_entries"`
	CancelledEntries int `json:"cancelled_entries"`
	DeclinedEntries  int `json:"declined_entries"`

	// Totals cover COMPLETED entries only; pending and terminal-without-
	// effect entries never moved money.
	TotalCredit money.Money `json:"total_credit"`
	TotalDebit  money.Money `json:"total_debit"`

	// NetDelta is credit minus debit and can go negative for heavy
	// withdrawers, so it is a plain decimal rather than a Money.
	NetDelta decimal.Decimal `json:"net_delta"`
}

// TradeSummaryRequest requests aggregated trade review metrics for one
// owner.

type TradeSummaryRequest struct {
	OwnerID string    `json:"owner_id"`
	Range   TimeRange `json:"range"`
}

type TradeSummary struct {
	OwnerID string `json:"owner_id"`

	TotalTrades       int `json:"total_trades"`
	PendingTrades     int `json:"pending_trades"`
	TransferredTrades int `json:"transferred_trades"`
	ApprovedTrades    int `json:"approved_trades"`
	PartialTrades     int `json:"partial_trades"`
	DeclinedTrades    int `json:"declined_trades"`

	TotalPayable  money.Money `json:"total_payable"`
	TotalCredited money.Money `json:"total_credited"`
}
