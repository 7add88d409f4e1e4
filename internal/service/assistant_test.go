package service

import (
	"context"
	"testing"
	"time"

	"healthtrack/backend/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecordReader struct {
	records []repository.HealthRecord
}

func (f *fakeRecordReader) List(_ context.Context, limit int32) ([]repository.HealthRecord, error) {
	if int32(len(f.records)) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type fakeExpenseReader struct {
	budgets  []repository.Budget
	expenses []repository.Expense
}

func (f *fakeExpenseReader) ListBudgets(context.Context, string) ([]repository.Budget, error) {
	return f.budgets, nil
}

func (f *fakeExpenseReader) ListExpensesByMonth(context.Context, string) ([]repository.Expense, error) {
	return f.expenses, nil
}

type fakeCommentReader struct {
	comments []repository.Comment
}

func (f *fakeCommentReader) ListRecent(_ context.Context, limit int32) ([]repository.Comment, error) {
	if int32(len(f.comments)) > limit {
		return f.comments[:limit], nil
	}
	return f.comments, nil
}

func TestAssistantDisabledWithoutAPIKey(t *testing.T) {
	svc := NewAssistantService("", &fakeRecordReader{}, &fakeExpenseReader{}, &fakeCommentReader{})

	_, err := svc.Query(context.Background(), "how did I sleep this week?")
	assert.ErrorIs(t, err, ErrAssistantDisabled)

	_, err = svc.GenerateReport(context.Background(), 7)
	assert.ErrorIs(t, err, ErrAssistantDisabled)
}

func TestAssistantBuildContext(t *testing.T) {
	weight := 70.5
	sleep := 7.5
	notes := "Fitbit: 5000 steps"
	records := &fakeRecordReader{records: []repository.HealthRecord{
		{
			Date:       time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
			Weight:     &weight,
			SleepHours: &sleep,
			Notes:      &notes,
		},
	}}
	expenses := &fakeExpenseReader{
		budgets: []repository.Budget{
			{Month: "2026-03", Category: "groceries", Amount: decimal.RequireFromString("400")},
		},
		expenses: []repository.Expense{
			{Category: "groceries", Amount: decimal.RequireFromString("120.10")},
		},
	}

	comments := &fakeCommentReader{comments: []repository.Comment{
		{
			Date:    time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
			Content: "felt tired after the long run",
		},
	}}

	svc := NewAssistantService("test-key", records, expenses, comments)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	out, err := svc.buildContext(context.Background(), 30)
	require.NoError(t, err)

	assert.Contains(t, out, "2026-03-09")
	assert.Contains(t, out, "weight=70.5kg")
	assert.Contains(t, out, "sleep=7.5h")
	assert.Contains(t, out, `notes="Fitbit: 5000 steps"`)
	assert.Contains(t, out, "Recent comments:\n2026-03-08: felt tired after the long run")
	assert.Contains(t, out, "Budget summary for 2026-03")
	assert.Contains(t, out, "groceries: budgeted 400.00, spent 120.10, remaining 279.90")
}

func TestAssistantBuildContextEmpty(t *testing.T) {
	svc := NewAssistantService("test-key", &fakeRecordReader{}, &fakeExpenseReader{}, &fakeCommentReader{})

	out, err := svc.buildContext(context.Background(), 30)
	require.NoError(t, err)
	assert.Contains(t, out, "Health records (most recent first):\nnone")
	assert.Contains(t, out, "Recent comments:\nnone")
}
