// Package ledgertest provides an in-memory ledger for tests of packages that book stock.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-doclife/internal/ledger"
)

// Store is an in-memory ledger.RepositoryPort. Transactions work on a copy
// that replaces the committed state only on success.
type Store struct {
	mu        sync.Mutex
	balances  map[ledger.Key]decimal.Decimal
	movements []ledger.Movement
	nextID    int64

	// FailIncrement, when set, is consulted before every increment.
	FailIncrement func(ledger.Adjustment) error
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{balances: make(map[ledger.Key]decimal.Decimal)}
}

// Tx is a pending copy of the store.
type Tx struct {
	store     *Store
	balances  map[ledger.Key]decimal.Decimal
	movements []ledger.Movement
	nextID    int64
}

// Begin opens a transaction over a snapshot.
func (s *Store) Begin() *Tx {
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := make(map[ledger.Key]decimal.Decimal, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	return &Tx{store: s, balances: balances, movements: append([]ledger.Movement(nil), s.movements...), nextID: s.nextID}
}

// Commit publishes the transaction state.
func (t *Tx) Commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.balances = t.balances
	t.store.movements = t.movements
	t.store.nextID = t.nextID
}

// WithTx implements ledger.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	tx := s.Begin()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.Commit()
	return nil
}

// Seed sets an opening balance directly.
func (s *Store) Seed(itemID, locationID int64, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[ledger.Key{ItemID: itemID, LocationID: locationID}] = qty
}

// Qty reads a committed balance.
func (s *Store) Qty(itemID, locationID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[ledger.Key{ItemID: itemID, LocationID: locationID}]
}

// MovementCount reports committed movement rows.
func (s *Store) MovementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.movements)
}

// GetBalance implements ledger.RepositoryPort.
func (s *Store) GetBalance(ctx context.Context, key ledger.Key) (ledger.Balance, error) {
	return ledger.Balance{ItemID: key.ItemID, LocationID: key.LocationID, Qty: s.Qty(key.ItemID, key.LocationID)}, nil
}

// ListBalances implements ledger.RepositoryPort.
func (s *Store) ListBalances(ctx context.Context, filter ledger.BalanceFilter) ([]ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Balance
	for key, qty := range s.balances {
		if filter.ItemID != 0 && key.ItemID != filter.ItemID {
			continue
		}
		if filter.LocationID != 0 && key.LocationID != filter.LocationID {
			continue
		}
		out = append(out, ledger.Balance{ItemID: key.ItemID, LocationID: key.LocationID, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID == out[j].ItemID {
			return out[i].LocationID < out[j].LocationID
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, nil
}

// ListMovements implements ledger.RepositoryPort.
func (s *Store) ListMovements(ctx context.Context, documentID int64) ([]ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterMovements(s.movements, documentID), nil
}

// Increment implements ledger.TxRepository.
func (t *Tx) Increment(ctx context.Context, adj ledger.Adjustment) (ledger.Balance, error) {
	if t.store.FailIncrement != nil {
		if err := t.store.FailIncrement(adj); err != nil {
			return ledger.Balance{}, err
		}
	}
	key := adj.Key()
	t.balances[key] = t.balances[key].Add(adj.Delta)
	return ledger.Balance{ItemID: key.ItemID, LocationID: key.LocationID, Qty: t.balances[key], UpdatedAt: time.Now()}, nil
}

// InsertMovement implements ledger.TxRepository.
func (t *Tx) InsertMovement(ctx context.Context, m ledger.Movement) error {
	t.nextID++
	m.ID = t.nextID
	m.CreatedAt = time.Now()
	t.movements = append(t.movements, m)
	return nil
}

// MovementsForDocument implements ledger.TxRepository.
func (t *Tx) MovementsForDocument(ctx context.Context, documentID int64) ([]ledger.Movement, error) {
	return filterMovements(t.movements, documentID), nil
}

func filterMovements(all []ledger.Movement, documentID int64) []ledger.Movement {
	var out []ledger.Movement
	for _, m := range all {
		if m.DocumentID == documentID {
			out = append(out, m)
		}
	}
	return out
}
