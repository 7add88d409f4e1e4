package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthtrack/backend/internal/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Budget is a monthly spending plan for one category
type Budget struct {
	ID        uuid.UUID
	Month     string // YYYY-MM
	Category  string
	Amount    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expense is one recorded purchase. Capital expenses are large one-off
// purchases reported separately from regular spending in the summary.
type Expense struct {
	ID          uuid.UUID
	Date        time.Time
	Category    string
	Description *string
	Amount      decimal.Decimal
	IsCapital   bool
	CreatedAt   time.Time
}

// CategorySummary compares budgeted and spent amounts for one category
type CategorySummary struct {
	Category  string          `json:"category"`
	Budgeted  decimal.Decimal `json:"budgeted"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
}

// BudgetSummary is the month-level rollup of budgets against expenses
type BudgetSummary struct {
	Month        string            `json:"month"`
	Categories   []CategorySummary `json:"categories"`
	TotalSpent   decimal.Decimal   `json:"total_spent"`
	TotalLimit   decimal.Decimal   `json:"total_budgeted"`
	CapitalSpent decimal.Decimal   `json:"capital_expenses"`
	RegularSpent decimal.Decimal   `json:"regular_expenses"`
}

// BudgetRepository handles database operations for budgets and expenses
type BudgetRepository struct {
	db db.DBTX
}

// NewBudgetRepository creates a new budget repository
func NewBudgetRepository(dbtx db.DBTX) *BudgetRepository {
	return &BudgetRepository{db: dbtx}
}

// SetBudget creates or replaces the budget for a category in a month
func (r *BudgetRepository) SetBudget(ctx context.Context, month, category string, amount decimal.Decimal) (*Budget, error) {
	query := `
		INSERT INTO budgets (month, category, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (month, category) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = NOW()
		RETURNING id, month, category, amount, created_at, updated_at
	`

	var b Budget
	err := r.db.QueryRow(ctx, query, month, category, amount).Scan(
		&b.ID, &b.Month, &b.Category, &b.Amount, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set budget: %w", err)
	}
	return &b, nil
}

// ListBudgets retrieves all budgets for a month
func (r *BudgetRepository) ListBudgets(ctx context.Context, month string) ([]Budget, error) {
	query := `
		SELECT id, month, category, amount, created_at, updated_at
		FROM budgets
		WHERE month = $1
		ORDER BY category
	`

	rows, err := r.db.Query(ctx, query, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	budgets := make([]Budget, 0)
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.Month, &b.Category, &b.Amount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate budgets: %w", err)
	}
	return budgets, nil
}

// CreateExpense records a purchase
func (r *BudgetRepository) CreateExpense(ctx context.Context, date time.Time, category string, description *string, amount decimal.Decimal, isCapital bool) (*Expense, error) {
	query := `
		INSERT INTO expenses (date, category, description, amount, is_capital)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, date, category, description, amount, is_capital, created_at
	`

	var e Expense
	err := r.db.QueryRow(ctx, query, timeToPgDate(date), category, stringToPgText(description), amount, isCapital).Scan(
		&e.ID, &e.Date, &e.Category, &e.Description, &e.Amount, &e.IsCapital, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}
	return &e, nil
}

// ListExpensesByMonth retrieves all expenses whose date falls in a YYYY-MM month
func (r *BudgetRepository) ListExpensesByMonth(ctx context.Context, month string) ([]Expense, error) {
	query := `
		SELECT id, date, category, description, amount, is_capital, created_at
		FROM expenses
		WHERE to_char(date, 'YYYY-MM') = $1
		ORDER BY date DESC, created_at DESC
	`

	rows, err := r.db.Query(ctx, query, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]Expense, 0)
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.Date, &e.Category, &e.Description, &e.Amount, &e.IsCapital, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes a recorded purchase
func (r *BudgetRepository) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, uuidToPgUUID(id))
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// ErrInvalidMonth is returned for month strings not shaped like YYYY-MM
var ErrInvalidMonth = errors.New("month must be formatted as YYYY-MM")

// ValidateMonth checks a YYYY-MM month string
func ValidateMonth(month string) error {
	if _, err := time.Parse("2006-01", month); err != nil {
		return ErrInvalidMonth
	}
	return nil
}

// SummarizeExpenses rolls budgets and expenses for one month up into
// per-category budgeted/spent/remaining lines plus a capital/regular split.
// Categories that have expenses but no budget appear with a zero budgeted
// amount.
func SummarizeExpenses(month string, budgets []Budget, expenses []Expense) BudgetSummary {
	spent := make(map[string]decimal.Decimal)
	order := make([]string, 0)
	seen := make(map[string]bool)
	var capital decimal.Decimal

	for _, b := range budgets {
		if !seen[b.Category] {
			seen[b.Category] = true
			order = append(order, b.Category)
		}
	}
	for _, e := range expenses {
		spent[e.Category] = spent[e.Category].Add(e.Amount)
		if e.IsCapital {
			capital = capital.Add(e.Amount)
		}
		if !seen[e.Category] {
			seen[e.Category] = true
			order = append(order, e.Category)
		}
	}

	budgeted := make(map[string]decimal.Decimal)
	for _, b := range budgets {
		budgeted[b.Category] = budgeted[b.Category].Add(b.Amount)
	}

	summary := BudgetSummary{
		Month:      month,
		Categories: make([]CategorySummary, 0, len(order)),
	}
	for _, cat := range order {
		line := CategorySummary{
			Category:  cat,
			Budgeted:  budgeted[cat],
			Spent:     spent[cat],
			Remaining: budgeted[cat].Sub(spent[cat]),
		}
		summary.Categories = append(summary.Categories, line)
		summary.TotalSpent = summary.TotalSpent.Add(line.Spent)
		summary.TotalLimit = summary.TotalLimit.Add(line.Budgeted)
	}
	summary.CapitalSpent = capital
	summary.RegularSpent = summary.TotalSpent.Sub(capital)
	return summary
}
