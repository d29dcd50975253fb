package finance

import "context"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Entry, error)
	GetByKey(ctx context.Context, key string) (Entry, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
	GetForUpdate(ctx context.Context, id int64) (Entry, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	VoidByDocument(ctx context.Context, documentID int64) ([]int64, error)
}

// IdempotencyPort reserves request keys.
type IdempotencyPort interface {
	Reserve(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}
