package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradepay-platform/internal/actor"
	"tradepay-platform/internal/money"
)

// MemoryStore is an in-memory Store for tests and early development.
//
// Atomicity model: a store-wide mutex is held for the duration of
// Atomically, which serializes transactions the way row locks do in
// Postgres, and a snapshot taken at entry is restored when fn fails, which
// stands in for rollback.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]Wallet
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]Wallet),
		entries: make(map[string]Entry),
	}
}

func (s *MemoryStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	walletsBefore := copyWallets(s.wallets)
	entriesBefore := copyEntries(s.entries)

	if err := fn(ctx, (*memTx)(s)); err != nil {
		s.wallets = walletsBefore
		s.entries = entriesBefore
		return err
	}
	return nil
}

func (s *MemoryStore) Wallet(ctx context.Context, owner actor.Ref) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[owner.Key()]
	if !ok {
		// An unfunded owner reads as a zero balance rather than an error;
		// wallets are created lazily on first mutation.
		return Wallet{Owner: owner, Balance: money.Zero}, nil
	}
	return w, nil
}

func (s *MemoryStore) Entry(ctx context.Context, id string, withTrashed bool) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if e.DeletedAt != nil && !withTrashed {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) EntriesByOwner(ctx context.Context, owner actor.Ref, from, to time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.entries {
		if e.Owner.Key() != owner.Key() || e.DeletedAt != nil {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// memTx is the in-transaction view. It shares MemoryStore's storage; the
// store lock is already held.
type memTx MemoryStore

func (t *memTx) WalletForUpdate(ctx context.Context, owner actor.Ref) (Wallet, error) {
	w, ok := t.wallets[owner.Key()]
	if !ok {
		w = Wallet{Owner: owner, Balance: money.Zero}
		t.wallets[owner.Key()] = w
	}
	return w, nil
}

func (t *memTx) SetBalance(ctx context.Context, owner actor.Ref, balance money.Money, now time.Time) error {
	t.wallets[owner.Key()] = Wallet{Owner: owner, Balance: balance, UpdatedAt: now}
	return nil
}

func (t *memTx) EntryForUpdate(ctx context.Context, id string) (Entry, error) {
	e, ok := t.entries[id]
	if !ok || e.DeletedAt != nil {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (t *memTx) TrashedEntryForUpdate(ctx context.Context, id string) (Entry, error) {
	e, ok := t.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (t *memTx) InsertEntry(ctx context.Context, e Entry) error {
	if _, exists := t.entries[e.ID]; exists {
		return ErrInvalidArgument
	}
	t.entries[e.ID] = e
	return nil
}

func (t *memTx) UpdateEntry(ctx context.Context, e Entry) error {
	if _, exists := t.entries[e.ID]; !exists {
		return ErrNotFound
	}
	t.entries[e.ID] = e
	return nil
}

func copyWallets(in map[string]Wallet) map[string]Wallet {
	out := make(map[string]Wallet, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyEntries(in map[string]Entry) map[string]Entry {
	out := make(map[string]Entry, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
