package handlers

import (
	"errors"
	"net/http"
	"time"

	"healthtrack/backend/internal/api"
	"healthtrack/backend/internal/db"
	"healthtrack/backend/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetHandler handles budget and expense requests
type BudgetHandler struct {
	budgets *repository.BudgetRepository
}

// NewBudgetHandler creates a new budget handler
func NewBudgetHandler(budgets *repository.BudgetRepository) *BudgetHandler {
	return &BudgetHandler{budgets: budgets}
}

// SetBudgetRequest creates or replaces one category's monthly budget
type SetBudgetRequest struct {
	Category string          `json:"category" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
}

// BudgetResponse is the wire representation of a budget row
type BudgetResponse struct {
	ID       string          `json:"id"`
	Month    string          `json:"month"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

func toBudgetResponse(b *repository.Budget) BudgetResponse {
	return BudgetResponse{
		ID:       b.ID.String(),
		Month:    b.Month,
		Category: b.Category,
		Amount:   b.Amount,
	}
}

// SetBudget creates or replaces a category budget for a month
func (h *BudgetHandler) SetBudget(c *gin.Context) {
	month := c.Param("month")
	if err := repository.ValidateMonth(month); err != nil {
		api.SendBadRequest(c, err.Error())
		return
	}

	var req SetBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.SendValidationError(c, "invalid request body", err.Error())
		return
	}
	if req.Amount.IsNegative() {
		api.SendBadRequest(c, "amount must not be negative")
		return
	}

	budget, err := h.budgets.SetBudget(c.Request.Context(), month, req.Category, req.Amount)
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}
	api.SendSuccess(c, http.StatusOK, toBudgetResponse(budget), nil)
}

// ListBudgets returns all budgets for a month
func (h *BudgetHandler) ListBudgets(c *gin.Context) {
	month := c.Param("month")
	if err := repository.ValidateMonth(month); err != nil {
		api.SendBadRequest(c, err.Error())
		return
	}

	budgets, err := h.budgets.ListBudgets(c.Request.Context(), month)
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}

	responses := make([]BudgetResponse, 0, len(budgets))
	for i := range budgets {
		responses = append(responses, toBudgetResponse(&budgets[i]))
	}
	api.SendSuccess(c, http.StatusOK, responses, nil)
}

// Summary returns the month's budgets rolled up against its expenses
func (h *BudgetHandler) Summary(c *gin.Context) {
	month := c.Param("month")
	if err := repository.ValidateMonth(month); err != nil {
		api.SendBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	budgets, err := h.budgets.ListBudgets(ctx, month)
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}
	expenses, err := h.budgets.ListExpensesByMonth(ctx, month)
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}

	api.SendSuccess(c, http.StatusOK, repository.SummarizeExpenses(month, budgets, expenses), nil)
}

// CreateExpenseRequest records one purchase
type CreateExpenseRequest struct {
	Date        string          `json:"date" binding:"required"`
	Category    string          `json:"category" binding:"required"`
	Description *string         `json:"description"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	IsCapital   bool            `json:"is_capital"`
}

// ExpenseResponse is the wire representation of an expense row
type ExpenseResponse struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Description *string         `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	IsCapital   bool            `json:"is_capital"`
}

func toExpenseResponse(e *repository.Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:          e.ID.String(),
		Date:        e.Date.Format("2006-01-02"),
		Category:    e.Category,
		Description: e.Description,
		Amount:      e.Amount,
		IsCapital:   e.IsCapital,
	}
}

// CreateExpense records a purchase
func (h *BudgetHandler) CreateExpense(c *gin.Context) {
	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.SendValidationError(c, "invalid request body", err.Error())
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		api.SendBadRequest(c, "invalid date, expected YYYY-MM-DD")
		return
	}
	if req.Amount.IsNegative() {
		api.SendBadRequest(c, "amount must not be negative")
		return
	}

	expense, err := h.budgets.CreateExpense(c.Request.Context(), date, req.Category, req.Description, req.Amount, req.IsCapital)
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}
	api.SendSuccess(c, http.StatusCreated, toExpenseResponse(expense), nil)
}

// ListExpenses returns all expenses for a month
func (h *BudgetHandler) ListExpenses(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		month = time.Now().Format("2006-01")
	}
	if err := repository.ValidateMonth(month); err != nil {
		api.SendBadRequest(c, err.Error())
		return
	}

	expenses, err := h.budgets.ListExpensesByMonth(c.Request.Context(), month)
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}

	responses := make([]ExpenseResponse, 0, len(expenses))
	for i := range expenses {
		responses = append(responses, toExpenseResponse(&expenses[i]))
	}
	api.SendSuccess(c, http.StatusOK, responses, nil)
}

// DeleteExpense removes a recorded purchase
func (h *BudgetHandler) DeleteExpense(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		api.SendBadRequest(c, "invalid expense id")
		return
	}

	if err := h.budgets.DeleteExpense(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.SendNotFound(c, "expense")
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}
	api.SendSuccess(c, http.StatusOK, gin.H{"deleted": true}, nil)
}
