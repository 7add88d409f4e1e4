package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthtrack/backend/internal/logger"
	"healthtrack/backend/internal/repository"

	openai "github.com/sashabaranov/go-openai"
)

// ErrAssistantDisabled is returned when no OpenAI API key is configured
var ErrAssistantDisabled = errors.New("ai assistant is not configured")

// RecordReader is the health record surface the assistant reads
type RecordReader interface {
	List(ctx context.Context, limit int32) ([]repository.HealthRecord, error)
}

// ExpenseReader is the finance surface the assistant reads
type ExpenseReader interface {
	ListBudgets(ctx context.Context, month string) ([]repository.Budget, error)
	ListExpensesByMonth(ctx context.Context, month string) ([]repository.Expense, error)
}

// CommentReader is the comment surface the assistant reads
type CommentReader interface {
	ListRecent(ctx context.Context, limit int32) ([]repository.Comment, error)
}

// assistantCommentLimit caps how many recent comments enter the prompt
const assistantCommentLimit = 50

// AssistantService answers natural-language questions over the tracked
// health and finance data and generates periodic reports
type AssistantService struct {
	client   *openai.Client
	records  RecordReader
	expenses ExpenseReader
	comments CommentReader
	model    string
	now      func() time.Time
}

// NewAssistantService creates the assistant. A nil client (no API key)
// yields a service whose operations fail with ErrAssistantDisabled.
func NewAssistantService(apiKey string, records RecordReader, expenses ExpenseReader, comments CommentReader) *AssistantService {
	s := &AssistantService{
		records:  records,
		expenses: expenses,
		comments: comments,
		model:    openai.GPT4oMini,
		now:      time.Now,
	}
	if apiKey != "" {
		s.client = openai.NewClient(apiKey)
	}
	return s
}

const assistantSystemPrompt = `You are a personal health and finance assistant. ` +
	`Answer questions using only the tracked data provided in the context. ` +
	`Be concise and note when the data is insufficient to answer.`

// Query answers a free-form question grounded in recent records
func (s *AssistantService) Query(ctx context.Context, question string) (string, error) {
	if s.client == nil {
		return "", ErrAssistantDisabled
	}

	dataContext, err := s.buildContext(ctx, 30)
	if err != nil {
		return "", err
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: assistantSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: dataContext + "\n\nQuestion: " + question},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("assistant query failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("assistant returned no choices")
	}

	logger.Debug().Int("prompt_tokens", resp.Usage.PromptTokens).Msg("assistant query answered")
	return resp.Choices[0].Message.Content, nil
}

// GenerateReport produces a narrative summary of the trailing window
func (s *AssistantService) GenerateReport(ctx context.Context, days int) (string, error) {
	if s.client == nil {
		return "", ErrAssistantDisabled
	}
	if days <= 0 {
		days = 7
	}

	dataContext, err := s.buildContext(ctx, int32(days))
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(
		"Write a short progress report covering the last %d days. "+
			"Summarize trends in weight, sleep, exercise, and blood pressure, "+
			"and spending against budget. Use plain language.\n\n%s",
		days, dataContext)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: assistantSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   800,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("assistant returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// buildContext renders recent records, recent comments, and the current
// month's finances into the prompt context block
func (s *AssistantService) buildContext(ctx context.Context, limit int32) (string, error) {
	records, err := s.records.List(ctx, limit)
	if err != nil {
		return "", fmt.Errorf("load health records: %w", err)
	}

	var b strings.Builder
	b.WriteString("Health records (most recent first):\n")
	if len(records) == 0 {
		b.WriteString("none\n")
	}
	for _, rec := range records {
		b.WriteString(rec.Date.Format("2006-01-02"))
		if rec.Weight != nil {
			fmt.Fprintf(&b, " weight=%.1fkg", *rec.Weight)
		}
		if rec.BloodPressure != nil {
			fmt.Fprintf(&b, " bp=%s", *rec.BloodPressure)
		}
		if rec.BloodSugar != nil {
			fmt.Fprintf(&b, " blood_sugar=%s", *rec.BloodSugar)
		}
		if rec.SleepHours != nil {
			fmt.Fprintf(&b, " sleep=%.1fh", *rec.SleepHours)
		}
		if rec.ExerciseMinutes != nil {
			fmt.Fprintf(&b, " exercise=%dmin", *rec.ExerciseMinutes)
		}
		if rec.Notes != nil {
			fmt.Fprintf(&b, " notes=%q", *rec.Notes)
		}
		b.WriteString("\n")
	}

	comments, err := s.comments.ListRecent(ctx, assistantCommentLimit)
	if err != nil {
		return "", fmt.Errorf("load comments: %w", err)
	}
	b.WriteString("\nRecent comments:\n")
	if len(comments) == 0 {
		b.WriteString("none\n")
	}
	for _, comment := range comments {
		fmt.Fprintf(&b, "%s: %s\n", comment.Date.Format("2006-01-02"), comment.Content)
	}

	month := s.now().Format("2006-01")
	budgets, err := s.expenses.ListBudgets(ctx, month)
	if err != nil {
		return "", fmt.Errorf("load budgets: %w", err)
	}
	expenses, err := s.expenses.ListExpensesByMonth(ctx, month)
	if err != nil {
		return "", fmt.Errorf("load expenses: %w", err)
	}

	summary := repository.SummarizeExpenses(month, budgets, expenses)
	fmt.Fprintf(&b, "\nBudget summary for %s:\n", month)
	if len(summary.Categories) == 0 {
		b.WriteString("none\n")
	}
	for _, cat := range summary.Categories {
		fmt.Fprintf(&b, "%s: budgeted %s, spent %s, remaining %s\n",
			cat.Category, cat.Budgeted.StringFixed(2), cat.Spent.StringFixed(2), cat.Remaining.StringFixed(2))
	}

	return b.String(), nil
}
