package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMonth(t *testing.T) {
	assert.NoError(t, ValidateMonth("2026-03"))
	assert.ErrorIs(t, ValidateMonth("2026-3"), ErrInvalidMonth)
	assert.ErrorIs(t, ValidateMonth("2026-13"), ErrInvalidMonth)
	assert.ErrorIs(t, ValidateMonth("March 2026"), ErrInvalidMonth)
	assert.ErrorIs(t, ValidateMonth(""), ErrInvalidMonth)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func expenseOn(day int, category, amount string) Expense {
	return Expense{
		Date:     time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
		Category: category,
		Amount:   money(amount),
	}
}

func TestSummarizeExpenses(t *testing.T) {
	budgets := []Budget{
		{Month: "2026-03", Category: "groceries", Amount: money("400.00")},
		{Month: "2026-03", Category: "transport", Amount: money("120.00")},
	}
	expenses := []Expense{
		expenseOn(3, "groceries", "52.30"),
		expenseOn(9, "groceries", "67.80"),
		expenseOn(5, "dining", "34.50"),
	}

	summary := SummarizeExpenses("2026-03", budgets, expenses)
	assert.Equal(t, "2026-03", summary.Month)
	require.Len(t, summary.Categories, 3)

	// Budgeted categories come first in budget order; expense-only
	// categories follow with a zero budget.
	groceries := summary.Categories[0]
	assert.Equal(t, "groceries", groceries.Category)
	assert.True(t, groceries.Budgeted.Equal(money("400.00")))
	assert.True(t, groceries.Spent.Equal(money("120.10")))
	assert.True(t, groceries.Remaining.Equal(money("279.90")))

	transport := summary.Categories[1]
	assert.Equal(t, "transport", transport.Category)
	assert.True(t, transport.Spent.IsZero())
	assert.True(t, transport.Remaining.Equal(money("120.00")))

	dining := summary.Categories[2]
	assert.Equal(t, "dining", dining.Category)
	assert.True(t, dining.Budgeted.IsZero())
	assert.True(t, dining.Spent.Equal(money("34.50")))
	assert.True(t, dining.Remaining.Equal(money("-34.50")))

	assert.True(t, summary.TotalSpent.Equal(money("154.60")))
	assert.True(t, summary.TotalLimit.Equal(money("520.00")))

	// No capital purchases this month.
	assert.True(t, summary.CapitalSpent.IsZero())
	assert.True(t, summary.RegularSpent.Equal(money("154.60")))
}

func TestSummarizeExpensesCapitalSplit(t *testing.T) {
	budgets := []Budget{
		{Month: "2026-03", Category: "household", Amount: money("1000.00")},
	}
	washer := expenseOn(12, "household", "649.99")
	washer.IsCapital = true
	expenses := []Expense{
		washer,
		expenseOn(4, "household", "25.50"),
		expenseOn(18, "groceries", "80.00"),
	}

	summary := SummarizeExpenses("2026-03", budgets, expenses)

	// Capital purchases count toward category spend but are reported
	// separately from regular spending.
	assert.True(t, summary.TotalSpent.Equal(money("755.49")))
	assert.True(t, summary.CapitalSpent.Equal(money("649.99")))
	assert.True(t, summary.RegularSpent.Equal(money("105.50")))

	require.Len(t, summary.Categories, 2)
	household := summary.Categories[0]
	assert.Equal(t, "household", household.Category)
	assert.True(t, household.Spent.Equal(money("675.49")))
	assert.True(t, household.Remaining.Equal(money("324.51")))
}

func TestSummarizeExpensesOverspend(t *testing.T) {
	budgets := []Budget{
		{Month: "2026-03", Category: "dining", Amount: money("100.00")},
	}
	expenses := []Expense{
		expenseOn(2, "dining", "80.00"),
		expenseOn(20, "dining", "45.00"),
	}

	summary := SummarizeExpenses("2026-03", budgets, expenses)
	require.Len(t, summary.Categories, 1)
	assert.True(t, summary.Categories[0].Remaining.Equal(money("-25.00")))
}

func TestSummarizeExpensesEmptyMonth(t *testing.T) {
	summary := SummarizeExpenses("2026-04", nil, nil)
	assert.Equal(t, "2026-04", summary.Month)
	assert.Empty(t, summary.Categories)
	assert.True(t, summary.TotalSpent.IsZero())
	assert.True(t, summary.TotalLimit.IsZero())
}
