package documents

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidSplit is returned for a split that cannot be produced.
var ErrInvalidSplit = errors.New("documents: invalid installment split")

// SplitInstallments divides total into count installments rounded to cents.
// The last installment absorbs the rounding remainder so the plan sums to total,
// and each due date is one calendar month after the previous one. Every
// installment is at least one cent.
func SplitInstallments(total decimal.Decimal, count int, firstDue time.Time, method string) ([]Installment, error) {
	if count < 1 || !total.IsPositive() || firstDue.IsZero() {
		return nil, ErrInvalidSplit
	}
	total = total.Round(2)
	n := decimal.NewFromInt(int64(count))
	if total.Shift(2).LessThan(n) {
		return nil, ErrInvalidSplit
	}
	share := total.DivRound(n, 2)
	rest := n.Sub(decimal.NewFromInt(1))
	if !total.Sub(share.Mul(rest)).IsPositive() {
		// Rounding up would overdraw the last installment.
		share = total.Div(n).RoundDown(2)
	}
	last := total.Sub(share.Mul(rest))
	plan := make([]Installment, 0, count)
	for i := 0; i < count; i++ {
		amount := share
		if i == count-1 {
			amount = last
		}
		plan = append(plan, Installment{
			Index:   i + 1,
			Amount:  amount,
			DueDate: AddMonths(firstDue, i),
			Method:  method,
		})
	}
	return plan, nil
}

// PlanTotal sums installment amounts.
func PlanTotal(plan []Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range plan {
		total = total.Add(inst.Amount)
	}
	return total
}

// ItemsTotal sums line totals rounded to cents.
func ItemsTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(2)
}

// AddMonths moves t forward n calendar months, clamping to the last day of the
// target month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
