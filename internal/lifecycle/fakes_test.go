package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-doclife/internal/documents"
	"github.com/odyssey-erp/odyssey-doclife/internal/documents/documentstest"
	"github.com/odyssey-erp/odyssey-doclife/internal/finance"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger/ledgertest"
)

type memoryRepo struct {
	docs       *documentstest.Store
	ledger     *ledgertest.Store
	failCommit error
}

type memoryTx struct {
	docs *documentstest.Tx
	ldg  *ledgertest.Tx
}

func (t memoryTx) Documents() documents.TxRepository { return t.docs }
func (t memoryTx) Ledger() ledger.TxRepository       { return t.ldg }

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	tx := memoryTx{docs: r.docs.Begin(), ldg: r.ledger.Begin()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if r.failCommit != nil {
		return r.failCommit
	}
	tx.docs.Commit()
	tx.ldg.Commit()
	return nil
}

func (r *memoryRepo) GetDocument(ctx context.Context, id int64) (documents.Document, error) {
	return r.docs.Get(ctx, id)
}

func (r *memoryRepo) ListMovements(ctx context.Context, documentID int64) ([]ledger.Movement, error) {
	return r.ledger.ListMovements(ctx, documentID)
}

type memoryAttempts struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]Attempt
}

func newMemoryAttempts() *memoryAttempts {
	return &memoryAttempts{attempts: make(map[uuid.UUID]Attempt)}
}

func (m *memoryAttempts) Start(ctx context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.attempts[a.ID] = a
	return nil
}

func (m *memoryAttempts) RecordIntent(ctx context.Context, e AttemptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[e.AttemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	a.Entries = append(a.Entries, e)
	m.attempts[e.AttemptID] = a
	return nil
}

func (m *memoryAttempts) RecordEntry(ctx context.Context, attemptID uuid.UUID, installment int, entryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	for i := range a.Entries {
		if a.Entries[i].Installment == installment {
			a.Entries[i].EntryID = entryID
		}
	}
	m.attempts[attemptID] = a
	return nil
}

func (m *memoryAttempts) SetStatus(ctx context.Context, attemptID uuid.UUID, status AttemptStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	a.Status = status
	a.Error = reason
	a.UpdatedAt = time.Now()
	m.attempts[attemptID] = a
	return nil
}

func (m *memoryAttempts) Get(ctx context.Context, attemptID uuid.UUID) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *memoryAttempts) List(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, a := range m.attempts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.DocumentID > 0 && a.DocumentID != filter.DocumentID {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !a.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// only returns the single attempt with status, or fails the lookup.
func (m *memoryAttempts) only(status AttemptStatus) (Attempt, bool) {
	list, _ := m.List(context.Background(), AttemptFilter{Status: status})
	if len(list) != 1 {
		return Attempt{}, false
	}
	return list[0], true
}

var errRemoteDown = errors.New("finance service unavailable")

type fakeFinance struct {
	mu      sync.Mutex
	entries map[string]finance.Entry
	nextID  int64

	createCalls int
	voidCalls   int

	failInstallment int
	failVoid        error
	createErr       error
	// hang makes Create wait for its context to end.
	hang bool
}

func newFakeFinance() *fakeFinance {
	return &fakeFinance{entries: make(map[string]finance.Entry)}
}

func (f *fakeFinance) Create(ctx context.Context, input finance.CreateInput) (finance.Entry, error) {
	if f.hang {
		<-ctx.Done()
		return finance.Entry{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return finance.Entry{}, f.createErr
	}
	if f.failInstallment != 0 && input.Installment == f.failInstallment {
		return finance.Entry{}, errRemoteDown
	}
	if existing, ok := f.entries[input.IdempotencyKey]; ok {
		return existing, nil
	}
	f.nextID++
	entry := finance.Entry{
		ID:               f.nextID,
		DocumentID:       input.DocumentID,
		DocumentType:     input.DocumentType,
		Installment:      input.Installment,
		InstallmentCount: input.InstallmentCount,
		Amount:           input.Amount,
		Kind:             input.Kind,
		Status:           finance.StatusPending,
		DueDate:          input.DueDate,
		CategoryID:       input.CategoryID,
		IdempotencyKey:   input.IdempotencyKey,
	}
	f.entries[input.IdempotencyKey] = entry
	return entry, nil
}

func (f *fakeFinance) VoidAllForDocument(ctx context.Context, documentID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voidCalls++
	if f.failVoid != nil {
		return 0, f.failVoid
	}
	voided := 0
	for key, entry := range f.entries {
		if entry.DocumentID == documentID && entry.Status != finance.StatusVoid {
			entry.Status = finance.StatusVoid
			f.entries[key] = entry
			voided++
		}
	}
	return voided, nil
}

func (f *fakeFinance) byStatus(documentID int64, status finance.Status) []finance.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []finance.Entry
	for _, entry := range f.entries {
		if entry.DocumentID == documentID && entry.Status == status {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Installment < out[j].Installment })
	return out
}

func (f *fakeFinance) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
