package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate is an effective-dated buy rate for a trade category: how many NGN
// the platform pays per unit (per card face-value unit for giftcards, per
// coin for crypto assets).
type Rate struct {
	ID string `json:"id" db:"id"`

	// Kind is the trade kind the rate applies to: "giftcard" or "asset".
	Kind string `json:"kind" db:"kind"`

	// Category identifies the giftcard brand or asset symbol
	// (e.g. "amazon-us", "BTC").
	Category string `json:"category" db:"category"`

	// PerUnit is the NGN amount paid per unit of the traded quantity.
	PerUnit decimal.Decimal `json:"per_unit" db:"per_unit"`

	// Effective window for the rate.
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	Status RateStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RateStatus string

const (
	RateStatusActive   RateStatus = "active"
	RateStatusInactive RateStatus = "inactive"
)
