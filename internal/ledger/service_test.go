package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-doclife/internal/ledger"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger/ledgertest"
)

func qty(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestMergeCollapsesKeysAndDropsZeroNets(t *testing.T) {
	merged := ledger.Merge([]ledger.Adjustment{
		{ItemID: 1, LocationID: 10, Delta: qty("5")},
		{ItemID: 2, LocationID: 10, Delta: qty("3")},
		{ItemID: 1, LocationID: 10, Delta: qty("2.5")},
		{ItemID: 2, LocationID: 10, Delta: qty("-3")},
	})
	require.Len(t, merged, 1)
	require.Equal(t, int64(1), merged[0].ItemID)
	require.True(t, merged[0].Delta.Equal(qty("7.5")))
}

func TestReverseDocumentLeavesOtherDocumentsUntouched(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.NewStore()
	store.Seed(1, 10, qty("4"))
	docA := ledger.DocumentRef{ID: 100, Type: "PURCHASE"}
	docB := ledger.DocumentRef{ID: 200, Type: "TRANSFER"}

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := ledger.ApplyDocument(ctx, tx, docA, []ledger.Adjustment{{ItemID: 1, LocationID: 10, Delta: qty("10")}})
		return err
	}))
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := ledger.ApplyDocument(ctx, tx, docB, []ledger.Adjustment{
			{ItemID: 1, LocationID: 10, Delta: qty("-6")},
			{ItemID: 1, LocationID: 20, Delta: qty("6")},
		})
		return err
	}))
	require.True(t, store.Qty(1, 10).Equal(qty("8")))

	var reversed []ledger.Adjustment
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		var err error
		reversed, err = ledger.ReverseDocument(ctx, tx, docA)
		return err
	}))
	require.Len(t, reversed, 1)
	require.True(t, reversed[0].Delta.Equal(qty("-10")))
	require.True(t, store.Qty(1, 10).Equal(qty("-2")))
	require.True(t, store.Qty(1, 20).Equal(qty("6")))

	// A second reversal finds nothing outstanding.
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		var err error
		reversed, err = ledger.ReverseDocument(ctx, tx, docA)
		return err
	}))
	require.Empty(t, reversed)
}

func TestReversalAfterRefinalizeUsesLatestNet(t *testing.T) {
	movements := []ledger.Movement{
		{DocumentID: 1, ItemID: 1, LocationID: 10, Delta: qty("10"), Reason: ledger.ReasonFinalize},
		{DocumentID: 1, ItemID: 1, LocationID: 10, Delta: qty("-10"), Reason: ledger.ReasonReversal},
		{DocumentID: 1, ItemID: 1, LocationID: 10, Delta: qty("7"), Reason: ledger.ReasonFinalize},
	}
	reversal := ledger.Reversal(movements)
	require.Len(t, reversal, 1)
	require.True(t, reversal[0].Delta.Equal(qty("-7")))
}

func TestStockAdjustValidatesAndBooksManualMovement(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil)

	_, err := svc.StockAdjust(ctx, ledger.AdjustInput{ItemID: 1, LocationID: 10})
	require.ErrorIs(t, err, ledger.ErrInvalidDelta)
	_, err = svc.StockAdjust(ctx, ledger.AdjustInput{ItemID: 1, Delta: qty("1")})
	require.ErrorIs(t, err, ledger.ErrInvalidKey)

	bal, err := svc.StockAdjust(ctx, ledger.AdjustInput{ItemID: 1, LocationID: 10, Delta: qty("2")})
	require.NoError(t, err)
	require.True(t, bal.Qty.Equal(qty("2")))
	bal, err = svc.StockAdjust(ctx, ledger.AdjustInput{ItemID: 1, LocationID: 10, Delta: qty("-0.5")})
	require.NoError(t, err)
	require.True(t, bal.Qty.Equal(qty("1.5")))
	require.Equal(t, 2, store.MovementCount())

	got, err := svc.Balance(ctx, ledger.Key{ItemID: 1, LocationID: 10})
	require.NoError(t, err)
	require.True(t, got.Qty.Equal(qty("1.5")))
}
