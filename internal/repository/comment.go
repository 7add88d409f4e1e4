package repository

import (
	"context"
	"fmt"
	"time"

	"healthtrack/backend/internal/db"

	"github.com/google/uuid"
)

// Comment is a free-form note attached to a calendar day
type Comment struct {
	ID        uuid.UUID
	Date      time.Time
	Content   string
	CreatedAt time.Time
}

// CommentRepository handles database operations for day comments
type CommentRepository struct {
	db db.DBTX
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(dbtx db.DBTX) *CommentRepository {
	return &CommentRepository{db: dbtx}
}

// Create attaches a comment to a day
func (r *CommentRepository) Create(ctx context.Context, date time.Time, content string) (*Comment, error) {
	query := `
		INSERT INTO comments (date, content)
		VALUES ($1, $2)
		RETURNING id, date, content, created_at
	`

	var c Comment
	err := r.db.QueryRow(ctx, query, timeToPgDate(date), content).Scan(
		&c.ID, &c.Date, &c.Content, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return &c, nil
}

// ListByDate retrieves all comments for a day, oldest first
func (r *CommentRepository) ListByDate(ctx context.Context, date time.Time) ([]Comment, error) {
	query := `
		SELECT id, date, content, created_at
		FROM comments
		WHERE date = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, timeToPgDate(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Date, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// ListRecent retrieves the most recently created comments across all days
func (r *CommentRepository) ListRecent(ctx context.Context, limit int32) ([]Comment, error) {
	query := `
		SELECT id, date, content, created_at
		FROM comments
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Date, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// Delete removes a comment
func (r *CommentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, uuidToPgUUID(id))
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
