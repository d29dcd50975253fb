package cashsession

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// Status of the register.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Difference classes on close, by absolute deviation from the expected amount.
const (
	ClassNormal   = "normal"
	ClassWarning  = "warning"
	ClassCritical = "critical"
)

var (
	// ErrAlreadyOpen is returned when opening while another session is open.
	ErrAlreadyOpen = fmt.Errorf("%w: cash session already open", shared.ErrInvalidTransition)
	// ErrNoOpenSession is returned when closing without an open session.
	ErrNoOpenSession = fmt.Errorf("%w: no open cash session", shared.ErrInvalidTransition)
)

// Session is one opening-to-closing period of the register.
type Session struct {
	ID              int64            `json:"id"`
	Status          Status           `json:"status"`
	OpeningAmount   decimal.Decimal  `json:"opening_amount"`
	CountedAmount   *decimal.Decimal `json:"counted_amount,omitempty"`
	Difference      *decimal.Decimal `json:"difference,omitempty"`
	DifferenceClass string           `json:"difference_class,omitempty"`
	OpenedBy        string           `json:"opened_by"`
	ClosedBy        string           `json:"closed_by,omitempty"`
	OpenedAt        time.Time        `json:"opened_at"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
}

// StatusView is what Status reports: the open session, if any.
type StatusView struct {
	Status  Status   `json:"status"`
	Session *Session `json:"session,omitempty"`
}

// OpenInput opens the register.
type OpenInput struct {
	Amount decimal.Decimal `json:"amount"`
}

// CloseInput closes the register with the counted amount.
type CloseInput struct {
	Counted decimal.Decimal `json:"counted"`
}

// classify buckets the deviation: up to 1% normal, up to 5% warning, above critical.
func classify(expected, counted decimal.Decimal) (decimal.Decimal, string) {
	diff := counted.Sub(expected)
	if expected.IsZero() {
		if diff.IsZero() {
			return diff, ClassNormal
		}
		return diff, ClassCritical
	}
	pct := diff.Div(expected).Mul(decimal.NewFromInt(100)).Abs()
	switch {
	case pct.LessThanOrEqual(decimal.NewFromInt(1)):
		return diff, ClassNormal
	case pct.LessThanOrEqual(decimal.NewFromInt(5)):
		return diff, ClassWarning
	default:
		return diff, ClassCritical
	}
}
