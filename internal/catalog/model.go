package catalog

import "github.com/shopspring/decimal"

// Product is the read-only catalog view used to validate document lines.
type Product struct {
	ID       int64           `json:"id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Unit     string          `json:"unit"`
	Price    decimal.Decimal `json:"price"`
	Cost     decimal.Decimal `json:"cost"`
	IsActive bool            `json:"is_active"`
}
