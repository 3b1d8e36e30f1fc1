package rates

import (
	"context"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and early
// development. Exact kind/category matches only.
type MemoryRepo struct {
	Rates []Rate
}

func (r *MemoryRepo) FindRate(ctx context.Context, kind, category string, at time.Time) (Rate, bool, error) {
	_ = ctx

	// Prefer the most recent effective rate.
	var best Rate
	found := false

	for _, rate := range r.Rates {
		if rate.Kind != kind {
			continue
		}
		if rate.Category != category {
			continue
		}
		if rate.Status != RateStatusActive {
			continue
		}
		if at.Before(rate.EffectiveFrom) {
			continue
		}
		if rate.EffectiveTo != nil && !at.Before(*rate.EffectiveTo) {
			continue
		}

		if !found || rate.EffectiveFrom.After(best.EffectiveFrom) {
			best = rate
			found = true
		}
	}

	return best, found, nil
}
