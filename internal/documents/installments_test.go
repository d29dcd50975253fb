package documents

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSplitInstallmentsEven(t *testing.T) {
	first := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	plan, err := SplitInstallments(decimal.RequireFromString("300.00"), 3, first, "boleto")
	require.NoError(t, err)
	require.Len(t, plan, 3)
	for i, inst := range plan {
		require.Equal(t, i+1, inst.Index)
		require.Equal(t, "100.00", inst.Amount.StringFixed(2))
		require.Equal(t, "boleto", inst.Method)
	}
	require.Equal(t, first, plan[0].DueDate)
	require.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), plan[1].DueDate)
	require.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), plan[2].DueDate)
}

func TestSplitInstallmentsLastAbsorbsRemainder(t *testing.T) {
	total := decimal.RequireFromString("100.00")
	plan, err := SplitInstallments(total, 3, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	require.Equal(t, "33.33", plan[0].Amount.StringFixed(2))
	require.Equal(t, "33.33", plan[1].Amount.StringFixed(2))
	require.Equal(t, "33.34", plan[2].Amount.StringFixed(2))
	require.True(t, PlanTotal(plan).Equal(total))
}

func TestSplitInstallmentsSumsExactly(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		total string
		count int
	}{
		{"200.00", 3},
		{"0.05", 3},
		{"1234.57", 7},
		{"99.99", 12},
	} {
		total := decimal.RequireFromString(tc.total)
		plan, err := SplitInstallments(total, tc.count, first, "")
		require.NoError(t, err)
		require.Len(t, plan, tc.count)
		require.True(t, PlanTotal(plan).Equal(total), "total %s count %d", tc.total, tc.count)
	}
}

func TestSplitInstallmentsRejectsBadInput(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := SplitInstallments(decimal.NewFromInt(10), 0, first, "")
	require.ErrorIs(t, err, ErrInvalidSplit)
	_, err = SplitInstallments(decimal.Zero, 2, first, "")
	require.ErrorIs(t, err, ErrInvalidSplit)
	_, err = SplitInstallments(decimal.NewFromInt(10), 2, time.Time{}, "")
	require.ErrorIs(t, err, ErrInvalidSplit)
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), AddMonths(jan31, 1))
	require.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), AddMonths(jan31, 2))
	require.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), AddMonths(jan31, 12))
}

func TestSplitInstallmentsNeverGoesNegative(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		total string
		count int
		last  string
	}{
		{"1.00", 60, "0.41"},
		{"1.19", 120, ""},
		{"1.20", 120, "0.01"},
		{"10.00", 120, "0.48"},
	} {
		total := decimal.RequireFromString(tc.total)
		plan, err := SplitInstallments(total, tc.count, first, "")
		if tc.last == "" {
			require.ErrorIs(t, err, ErrInvalidSplit, "total %s count %d", tc.total, tc.count)
			continue
		}
		require.NoError(t, err)
		require.Len(t, plan, tc.count)
		require.True(t, PlanTotal(plan).Equal(total), "total %s count %d", tc.total, tc.count)
		for _, inst := range plan {
			require.True(t, inst.Amount.IsPositive(), "total %s installment %d", tc.total, inst.Index)
		}
		require.Equal(t, tc.last, plan[tc.count-1].Amount.StringFixed(2))
	}
}
