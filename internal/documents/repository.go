package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

var (
	// ErrNotFound is returned when the document does not exist.
	ErrNotFound = fmt.Errorf("document %w", shared.ErrNotFound)
	// ErrStatusConflict is returned when a guarded status update finds another status.
	ErrStatusConflict = errors.New("documents: status changed concurrently")
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
}

// TxRepository exposes transactional operations. The lifecycle orchestrator binds
// the same interface to its own transition transaction.
type TxRepository interface {
	Insert(ctx context.Context, doc Document) (Document, error)
	LockForTransition(ctx context.Context, id int64) (Document, error)
	ListItems(ctx context.Context, documentID int64) ([]Item, error)
	UpdateHeader(ctx context.Context, doc Document) error
	DeleteItems(ctx context.Context, documentID int64) error
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateTotal(ctx context.Context, documentID int64, total decimal.Decimal) error
	UpdatePaymentPlan(ctx context.Context, documentID int64, plan []Installment) error
	UpdateStatus(ctx context.Context, documentID int64, from, to Status) error
}
