package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Service exposes ledger reads and standalone adjustments.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// AdjustInput is a manual stock adjustment issued outside the document lifecycle.
type AdjustInput struct {
	ItemID     int64           `json:"item_id" validate:"required,gt=0"`
	LocationID int64           `json:"location_id" validate:"required,gt=0"`
	Delta      decimal.Decimal `json:"delta"`
}

// StockAdjust applies delta to (item, location) in its own transaction.
func (s *Service) StockAdjust(ctx context.Context, input AdjustInput) (Balance, error) {
	if input.ItemID == 0 || input.LocationID == 0 {
		return Balance{}, ErrInvalidKey
	}
	if input.Delta.IsZero() {
		return Balance{}, ErrInvalidDelta
	}
	adj := Adjustment{ItemID: input.ItemID, LocationID: input.LocationID, Delta: input.Delta}
	var bal Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		bal, err = tx.Increment(ctx, adj)
		if err != nil {
			return err
		}
		return tx.InsertMovement(ctx, Movement{ItemID: adj.ItemID, LocationID: adj.LocationID, Delta: adj.Delta, Reason: ReasonManual})
	})
	if err != nil {
		return Balance{}, fmt.Errorf("ledger: stock adjust: %w", err)
	}
	s.logger.Info("stock adjusted",
		slog.Int64("item_id", adj.ItemID),
		slog.Int64("location_id", adj.LocationID),
		slog.String("delta", adj.Delta.String()),
		slog.String("qty", bal.Qty.String()))
	return bal, nil
}

// Balance returns the current balance of one key.
func (s *Service) Balance(ctx context.Context, key Key) (Balance, error) {
	if key.ItemID == 0 || key.LocationID == 0 {
		return Balance{}, ErrInvalidKey
	}
	return s.repo.GetBalance(ctx, key)
}

// ListBalances lists balances.
func (s *Service) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	return s.repo.ListBalances(ctx, filter)
}

// DocumentMovements returns the movement log written for a document.
func (s *Service) DocumentMovements(ctx context.Context, documentID int64) ([]Movement, error) {
	return s.repo.ListMovements(ctx, documentID)
}
