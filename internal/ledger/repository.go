package ledger

import (
	"context"
	"fmt"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, key Key) (Balance, error)
	ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error)
	ListMovements(ctx context.Context, documentID int64) ([]Movement, error)
}

// TxRepository exposes the writes that must share the caller's transaction.
type TxRepository interface {
	Increment(ctx context.Context, adj Adjustment) (Balance, error)
	InsertMovement(ctx context.Context, movement Movement) error
	MovementsForDocument(ctx context.Context, documentID int64) ([]Movement, error)
}

// ApplyDocument books adjustments for ref and logs one movement per merged key.
func ApplyDocument(ctx context.Context, tx TxRepository, ref DocumentRef, adjustments []Adjustment) ([]Adjustment, error) {
	merged := Merge(adjustments)
	for _, adj := range merged {
		if err := book(ctx, tx, ref, adj, ReasonFinalize); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// ReverseDocument negates whatever net quantity ref still holds in the ledger.
// Movements from other documents on the same rows are left untouched.
func ReverseDocument(ctx context.Context, tx TxRepository, ref DocumentRef) ([]Adjustment, error) {
	movements, err := tx.MovementsForDocument(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load movements for document %d: %w", ref.ID, err)
	}
	reversal := Reversal(movements)
	for _, adj := range reversal {
		if err := book(ctx, tx, ref, adj, ReasonReversal); err != nil {
			return nil, err
		}
	}
	return reversal, nil
}

func book(ctx context.Context, tx TxRepository, ref DocumentRef, adj Adjustment, reason Reason) error {
	if adj.ItemID == 0 || adj.LocationID == 0 {
		return ErrInvalidKey
	}
	if adj.Delta.IsZero() {
		return ErrInvalidDelta
	}
	if _, err := tx.Increment(ctx, adj); err != nil {
		return fmt.Errorf("ledger: adjust item %d location %d: %w", adj.ItemID, adj.LocationID, err)
	}
	return tx.InsertMovement(ctx, Movement{
		DocumentID:   ref.ID,
		DocumentType: ref.Type,
		ItemID:       adj.ItemID,
		LocationID:   adj.LocationID,
		Delta:        adj.Delta,
		Reason:       reason,
	})
}
