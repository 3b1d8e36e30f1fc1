package referral

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests. Same atomicity model as
// the ledger memory store: store-wide mutex plus snapshot rollback.
type MemoryStore struct {
	mu sync.Mutex
	// keyed by referred user id, the unique side of the pair
	credits map[string]Credit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{credits: make(map[string]Credit)}
}

func (s *MemoryStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := make(map[string]Credit, len(s.credits))
	for k, v := range s.credits {
		before[k] = v
	}

	if err := fn(ctx, (*memTx)(s)); err != nil {
		s.credits = before
		return err
	}
	return nil
}

func (s *MemoryStore) ByReferred(ctx context.Context, referredID string) (Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credits[referredID]
	if !ok {
		return Credit{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) ByReferrer(ctx context.Context, referrerID string) ([]Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Credit
	for _, c := range s.credits {
		if c.ReferrerID == referrerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memTx MemoryStore

func (t *memTx) ByReferredForUpdate(ctx context.Context, referredID string) (Credit, bool, error) {
	c, ok := t.credits[referredID]
	return c, ok, nil
}

func (t *memTx) Insert(ctx context.Context, c Credit) error {
	if _, exists := t.credits[c.ReferredID]; exists {
		return ErrAlreadyLinked
	}
	t.credits[c.ReferredID] = c
	return nil
}

func (t *memTx) Update(ctx context.Context, c Credit) error {
	if _, exists := t.credits[c.ReferredID]; !exists {
		return ErrNotFound
	}
	t.credits[c.ReferredID] = c
	return nil
}
