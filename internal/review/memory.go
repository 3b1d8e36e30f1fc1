package review

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradepay-platform/internal/ledger"
	"tradepay-platform/internal/referral"
)

// MemoryStore is an in-memory Store for tests. It composes the ledger and
// referral memory stores so a decision transaction spans all three: the
// trade snapshot rolls back here, the sibling stores roll back inside
// their own Atomically frames.
//
// Lock order is always trades, then ledger, then referrals, so nesting the
// sibling stores cannot deadlock.
type MemoryStore struct {
	mu     sync.Mutex
	trades map[string]Trade

	ledger    *ledger.MemoryStore
	referrals *referral.MemoryStore
}

func NewMemoryStore(l *ledger.MemoryStore, r *referral.MemoryStore) *MemoryStore {
	return &MemoryStore{
		trades:    make(map[string]Trade),
		ledger:    l,
		referrals: r,
	}
}

func (s *MemoryStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := make(map[string]Trade, len(s.trades))
	for k, v := range s.trades {
		before[k] = v
	}

	err := s.ledger.Atomically(ctx, func(ctx context.Context, ltx ledger.Tx) error {
		return s.referrals.Atomically(ctx, func(ctx context.Context, rtx referral.Tx) error {
			return fn(ctx, &memTx{store: s, ledger: ltx, referrals: rtx})
		})
	})
	if err != nil {
		s.trades = before
		return err
	}
	return nil
}

func (s *MemoryStore) Trade(ctx context.Context, id string) (Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return Trade{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) TradesByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Trade
	for _, t := range s.trades {
		if t.OwnerID != ownerID {
			continue
		}
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) PendingByCategory(ctx context.Context, kind Kind, category string) ([]Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Trade
	for _, t := range s.trades {
		if t.ParentID != "" {
			// Children surface through their parent, never in the queue.
			continue
		}
		if t.Kind != kind || t.Category != category {
			continue
		}
		if t.Status != StatusPending && t.Status != StatusTransferred && t.Status != StatusPartiallyApproved {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// memTx is the in-transaction view; the store lock is already held.
type memTx struct {
	store     *MemoryStore
	ledger    ledger.Tx
	referrals referral.Tx
}

func (t *memTx) TradeForUpdate(ctx context.Context, id string) (Trade, error) {
	tr, ok := t.store.trades[id]
	if !ok {
		return Trade{}, ErrNotFound
	}
	return tr, nil
}

func (t *memTx) Children(ctx context.Context, parentID string) ([]Trade, error) {
	var out []Trade
	for _, tr := range t.store.trades {
		if tr.ParentID == parentID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) InsertTrade(ctx context.Context, tr Trade) error {
	if _, exists := t.store.trades[tr.ID]; exists {
		return ErrInvalidArgument
	}
	t.store.trades[tr.ID] = tr
	return nil
}

func (t *memTx) UpdateTrade(ctx context.Context, tr Trade) error {
	if _, exists := t.store.trades[tr.ID]; !exists {
		return ErrNotFound
	}
	t.store.trades[tr.ID] = tr
	return nil
}

func (t *memTx) Ledger() ledger.Tx { return t.ledger }

func (t *memTx) Referrals() referral.Tx { return t.referrals }
