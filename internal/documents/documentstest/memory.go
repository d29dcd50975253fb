// Package documentstest provides an in-memory document store for tests.
package documentstest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-doclife/internal/documents"
)

// Store is an in-memory documents.RepositoryPort with snapshot transactions.
type Store struct {
	mu         sync.Mutex
	docs       map[int64]documents.Document
	items      map[int64][]documents.Item
	nextDocID  int64
	nextItemID int64
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[int64]documents.Document), items: make(map[int64][]documents.Item)}
}

// Tx is a pending copy of the store.
type Tx struct {
	store      *Store
	docs       map[int64]documents.Document
	items      map[int64][]documents.Item
	nextDocID  int64
	nextItemID int64
}

// Begin opens a transaction over a snapshot.
func (s *Store) Begin() *Tx {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make(map[int64]documents.Document, len(s.docs))
	for id, doc := range s.docs {
		docs[id] = doc
	}
	items := make(map[int64][]documents.Item, len(s.items))
	for id, lines := range s.items {
		items[id] = append([]documents.Item(nil), lines...)
	}
	return &Tx{store: s, docs: docs, items: items, nextDocID: s.nextDocID, nextItemID: s.nextItemID}
}

// Commit publishes the transaction state.
func (t *Tx) Commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.docs = t.docs
	t.store.items = t.items
	t.store.nextDocID = t.nextDocID
	t.store.nextItemID = t.nextItemID
}

// WithTx implements documents.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, documents.TxRepository) error) error {
	tx := s.Begin()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.Commit()
	return nil
}

// Put stores a document and its items directly, assigning ids when missing.
func (s *Store) Put(doc documents.Document) documents.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == 0 {
		s.nextDocID++
		doc.ID = s.nextDocID
	} else if doc.ID > s.nextDocID {
		s.nextDocID = doc.ID
	}
	if doc.Number == "" {
		doc.Number = documents.FormatNumber(doc.Type, doc.ID)
	}
	if doc.PaymentPlan == nil {
		doc.PaymentPlan = []documents.Installment{}
	}
	lines := make([]documents.Item, 0, len(doc.Items))
	for i, item := range doc.Items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.DocumentID = doc.ID
		item.Position = i + 1
		lines = append(lines, item)
	}
	s.items[doc.ID] = lines
	doc.Items = lines
	if doc.TotalValue.IsZero() {
		doc.TotalValue = documents.ItemsTotal(lines)
	}
	s.docs[doc.ID] = header(doc)
	return doc
}

// Status reads the committed status of a document.
func (s *Store) Status(id int64) documents.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id].Status
}

// ItemCount reports committed item rows of a document.
func (s *Store) ItemCount(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[id])
}

// Get implements documents.RepositoryPort.
func (s *Store) Get(ctx context.Context, id int64) (documents.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return documents.Document{}, documents.ErrNotFound
	}
	doc.Items = append([]documents.Item(nil), s.items[id]...)
	return doc, nil
}

// List implements documents.RepositoryPort.
func (s *Store) List(ctx context.Context, filter documents.ListFilter) ([]documents.Document, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []documents.Document
	for _, doc := range s.docs {
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.CounterpartyID > 0 && doc.CounterpartyID != filter.CounterpartyID {
			continue
		}
		if filter.Search != "" && !strings.Contains(doc.Number, filter.Search) && !strings.Contains(doc.Notes, filter.Search) {
			continue
		}
		matched = append(matched, doc)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	start := (filter.Page - 1) * filter.PerPage
	if filter.Page <= 0 || filter.PerPage <= 0 || start >= total {
		return nil, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Insert implements documents.TxRepository.
func (t *Tx) Insert(ctx context.Context, doc documents.Document) (documents.Document, error) {
	t.nextDocID++
	doc.ID = t.nextDocID
	doc.Number = documents.FormatNumber(doc.Type, doc.ID)
	doc.PaymentPlan = []documents.Installment{}
	doc.TotalValue = decimal.Zero
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	t.docs[doc.ID] = doc
	return doc, nil
}

// LockForTransition implements documents.TxRepository.
func (t *Tx) LockForTransition(ctx context.Context, id int64) (documents.Document, error) {
	doc, ok := t.docs[id]
	if !ok {
		return documents.Document{}, documents.ErrNotFound
	}
	return doc, nil
}

// ListItems implements documents.TxRepository.
func (t *Tx) ListItems(ctx context.Context, documentID int64) ([]documents.Item, error) {
	return append([]documents.Item(nil), t.items[documentID]...), nil
}

// UpdateHeader implements documents.TxRepository.
func (t *Tx) UpdateHeader(ctx context.Context, doc documents.Document) error {
	current, ok := t.docs[doc.ID]
	if !ok {
		return documents.ErrNotFound
	}
	current.CounterpartyID = doc.CounterpartyID
	current.SourceLocationID = doc.SourceLocationID
	current.DestinationLocationID = doc.DestinationLocationID
	current.FinancialCategoryID = doc.FinancialCategoryID
	current.Notes = doc.Notes
	current.IssuedAt = doc.IssuedAt
	current.UpdatedAt = time.Now()
	t.docs[doc.ID] = current
	return nil
}

// DeleteItems implements documents.TxRepository.
func (t *Tx) DeleteItems(ctx context.Context, documentID int64) error {
	delete(t.items, documentID)
	return nil
}

// InsertItem implements documents.TxRepository.
func (t *Tx) InsertItem(ctx context.Context, item documents.Item) (documents.Item, error) {
	t.nextItemID++
	item.ID = t.nextItemID
	t.items[item.DocumentID] = append(t.items[item.DocumentID], item)
	return item, nil
}

// UpdateTotal implements documents.TxRepository.
func (t *Tx) UpdateTotal(ctx context.Context, documentID int64, total decimal.Decimal) error {
	doc, ok := t.docs[documentID]
	if !ok {
		return documents.ErrNotFound
	}
	doc.TotalValue = total
	t.docs[documentID] = doc
	return nil
}

// UpdatePaymentPlan implements documents.TxRepository.
func (t *Tx) UpdatePaymentPlan(ctx context.Context, documentID int64, plan []documents.Installment) error {
	doc, ok := t.docs[documentID]
	if !ok {
		return documents.ErrNotFound
	}
	doc.PaymentPlan = append([]documents.Installment{}, plan...)
	t.docs[documentID] = doc
	return nil
}

// UpdateStatus implements documents.TxRepository.
func (t *Tx) UpdateStatus(ctx context.Context, documentID int64, from, to documents.Status) error {
	doc, ok := t.docs[documentID]
	if !ok {
		return documents.ErrNotFound
	}
	if doc.Status != from {
		return documents.ErrStatusConflict
	}
	doc.Status = to
	t.docs[documentID] = doc
	return nil
}

func header(doc documents.Document) documents.Document {
	doc.Items = nil
	return doc
}
