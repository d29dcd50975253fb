package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Reason tags why a movement was written.
type Reason string

const (
	ReasonFinalize Reason = "FINALIZE"
	ReasonReversal Reason = "REVERSAL"
	ReasonManual   Reason = "MANUAL"
)

var (
	// ErrInvalidDelta is returned for zero adjustments.
	ErrInvalidDelta = errors.New("ledger: delta must be non-zero")
	// ErrInvalidKey is returned when item or location is missing.
	ErrInvalidKey = errors.New("ledger: item and location are required")
)

// Key identifies one balance row.
type Key struct {
	ItemID     int64 `json:"item_id"`
	LocationID int64 `json:"location_id"`
}

// Adjustment is a relative change to one balance.
type Adjustment struct {
	ItemID     int64           `json:"item_id"`
	LocationID int64           `json:"location_id"`
	Delta      decimal.Decimal `json:"delta"`
}

// Key returns the balance key of the adjustment.
func (a Adjustment) Key() Key {
	return Key{ItemID: a.ItemID, LocationID: a.LocationID}
}

// DocumentRef links movements back to the document that caused them.
type DocumentRef struct {
	ID   int64
	Type string
}

// Movement is one immutable row of the stock movement log.
type Movement struct {
	ID           int64           `json:"id"`
	DocumentID   int64           `json:"document_id,omitempty"`
	DocumentType string          `json:"document_type,omitempty"`
	ItemID       int64           `json:"item_id"`
	LocationID   int64           `json:"location_id"`
	Delta        decimal.Decimal `json:"delta"`
	Reason       Reason          `json:"reason"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Balance is the current quantity for an item at a location.
type Balance struct {
	ItemID     int64           `json:"item_id"`
	LocationID int64           `json:"location_id"`
	Qty        decimal.Decimal `json:"qty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BalanceFilter narrows ListBalances.
type BalanceFilter struct {
	ItemID     int64
	LocationID int64
	Limit      int
	Offset     int
}

// Merge collapses adjustments sharing a key and drops keys netting to zero.
// Output order follows the first appearance of each key.
func Merge(adjustments []Adjustment) []Adjustment {
	totals := make(map[Key]decimal.Decimal, len(adjustments))
	order := make([]Key, 0, len(adjustments))
	for _, adj := range adjustments {
		key := adj.Key()
		current, seen := totals[key]
		if !seen {
			order = append(order, key)
			current = decimal.Zero
		}
		totals[key] = current.Add(adj.Delta)
	}
	out := make([]Adjustment, 0, len(order))
	for _, key := range order {
		if totals[key].IsZero() {
			continue
		}
		out = append(out, Adjustment{ItemID: key.ItemID, LocationID: key.LocationID, Delta: totals[key]})
	}
	return out
}

// Reversal returns the adjustments that bring the net effect of movements back to zero.
func Reversal(movements []Movement) []Adjustment {
	adjs := make([]Adjustment, 0, len(movements))
	for _, m := range movements {
		adjs = append(adjs, Adjustment{ItemID: m.ItemID, LocationID: m.LocationID, Delta: m.Delta.Neg()})
	}
	return Merge(adjs)
}
