package lifecycle

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-doclife/internal/documents"
	"github.com/odyssey-erp/odyssey-doclife/internal/finance"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
)

// Action names a lifecycle transition.
type Action string

const (
	ActionFinalize Action = "finalize"
	ActionCancel   Action = "cancel"
	ActionReopen   Action = "reopen"
	ActionSend     Action = "send"
	ActionConfirm  Action = "confirm"
	ActionApprove  Action = "approve"
	ActionConclude Action = "conclude"
)

// ParseAction maps a route segment to an Action.
func ParseAction(v string) (Action, bool) {
	switch a := Action(v); a {
	case ActionFinalize, ActionCancel, ActionReopen, ActionSend, ActionConfirm, ActionApprove, ActionConclude:
		return a, true
	}
	return "", false
}

// StockEffect selects how items move stock on finalize.
type StockEffect int

const (
	StockNone StockEffect = iota
	StockInbound
	StockMove
)

// Policy parameterizes the single lifecycle state machine per document type.
type Policy struct {
	Type        documents.Type
	Transitions map[Action]map[documents.Status]documents.Status
	Stock       StockEffect
	// FinanceKind is empty when the type books no financial entries.
	FinanceKind finance.Kind
	// PlanRequired makes a complete payment plan mandatory before leaving OPEN.
	PlanRequired bool
}

var policies = map[documents.Type]Policy{
	documents.TypePurchase: {
		Type: documents.TypePurchase,
		Transitions: map[Action]map[documents.Status]documents.Status{
			ActionFinalize: {documents.StatusOpen: documents.StatusFinalized},
			ActionReopen:   {documents.StatusFinalized: documents.StatusOpen},
			ActionCancel: {
				documents.StatusOpen:      documents.StatusCancelled,
				documents.StatusFinalized: documents.StatusCancelled,
			},
		},
		Stock:        StockInbound,
		FinanceKind:  finance.KindExpense,
		PlanRequired: true,
	},
	documents.TypeTransfer: {
		Type: documents.TypeTransfer,
		Transitions: map[Action]map[documents.Status]documents.Status{
			ActionFinalize: {documents.StatusOpen: documents.StatusFinalized},
			ActionReopen:   {documents.StatusFinalized: documents.StatusOpen},
			ActionCancel: {
				documents.StatusOpen:      documents.StatusCancelled,
				documents.StatusFinalized: documents.StatusCancelled,
			},
		},
		Stock:       StockMove,
		FinanceKind: finance.KindExpense,
	},
	documents.TypeOrder: {
		Type: documents.TypeOrder,
		Transitions: map[Action]map[documents.Status]documents.Status{
			ActionSend:     {documents.StatusOpen: documents.StatusSent},
			ActionConfirm:  {documents.StatusSent: documents.StatusConfirmed},
			ActionFinalize: {documents.StatusConfirmed: documents.StatusFinalized},
			ActionReopen:   {documents.StatusFinalized: documents.StatusOpen},
			ActionCancel: {
				documents.StatusOpen:      documents.StatusCancelled,
				documents.StatusSent:      documents.StatusCancelled,
				documents.StatusConfirmed: documents.StatusCancelled,
				documents.StatusFinalized: documents.StatusCancelled,
			},
		},
		Stock:        StockInbound,
		FinanceKind:  finance.KindExpense,
		PlanRequired: true,
	},
	documents.TypeRequisition: {
		Type: documents.TypeRequisition,
		Transitions: map[Action]map[documents.Status]documents.Status{
			ActionApprove:  {documents.StatusOpen: documents.StatusApproved},
			ActionConclude: {documents.StatusApproved: documents.StatusConcluded},
			ActionCancel: {
				documents.StatusOpen:     documents.StatusCancelled,
				documents.StatusApproved: documents.StatusCancelled,
			},
		},
	},
}

// PolicyFor returns the effects policy of a document type.
func PolicyFor(t documents.Type) (Policy, error) {
	p, ok := policies[t]
	if !ok {
		return Policy{}, shared.NewValidationError("type", fmt.Sprintf("no lifecycle for %q", t))
	}
	return p, nil
}

// Target returns the status action leads to from the given status.
func (p Policy) Target(action Action, from documents.Status) (documents.Status, error) {
	if to, ok := p.Transitions[action][from]; ok {
		return to, nil
	}
	return "", &shared.InvalidTransitionError{From: string(from), Action: string(action)}
}

// Allowed lists the actions available from status, in a stable order.
func (p Policy) Allowed(from documents.Status) []Action {
	var out []Action
	for _, action := range []Action{ActionSend, ActionConfirm, ActionApprove, ActionFinalize, ActionConclude, ActionReopen, ActionCancel} {
		if _, ok := p.Transitions[action][from]; ok {
			out = append(out, action)
		}
	}
	return out
}

// HasEffects reports whether a document in status holds ledger or financial effects.
func (p Policy) HasEffects(status documents.Status) bool {
	return status == documents.StatusFinalized && (p.Stock != StockNone || p.FinanceKind != "")
}

// Books reports whether the type creates financial entries.
func (p Policy) Books() bool {
	return p.FinanceKind != ""
}

// StockAdjustments derives signed ledger deltas for the document items.
func (p Policy) StockAdjustments(doc documents.Document, items []documents.Item) []ledger.Adjustment {
	var adjs []ledger.Adjustment
	for _, item := range items {
		switch p.Stock {
		case StockInbound:
			adjs = append(adjs, ledger.Adjustment{ItemID: item.ItemID, LocationID: doc.DestinationLocationID, Delta: item.Quantity})
		case StockMove:
			adjs = append(adjs,
				ledger.Adjustment{ItemID: item.ItemID, LocationID: doc.SourceLocationID, Delta: item.Quantity.Neg()},
				ledger.Adjustment{ItemID: item.ItemID, LocationID: doc.DestinationLocationID, Delta: item.Quantity},
			)
		}
	}
	return adjs
}

// CheckLeaveOpen validates what must hold before a document leaves OPEN: at least
// one item and, when the type books entries, a plan that sums to the total.
func (p Policy) CheckLeaveOpen(doc documents.Document, items []documents.Item) error {
	var errs shared.ValidationErrors
	if len(items) == 0 {
		errs = append(errs, shared.NewValidationError("items", "at least one item required"))
	}
	if p.Books() && (p.PlanRequired || len(doc.PaymentPlan) > 0) {
		if len(doc.PaymentPlan) == 0 {
			errs = append(errs, shared.NewValidationError("payment_plan", "required"))
		} else if total := documents.PlanTotal(doc.PaymentPlan); !total.Equal(doc.TotalValue) {
			errs = append(errs, shared.NewValidationError("payment_plan",
				fmt.Sprintf("installments sum %s, document total %s", total.StringFixed(2), doc.TotalValue.StringFixed(2))))
		}
		if doc.FinancialCategoryID <= 0 {
			errs = append(errs, shared.NewValidationError("financial_category_id", "required"))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
