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
)

// CommentHandler handles day comment requests
type CommentHandler struct {
	comments *repository.CommentRepository
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(comments *repository.CommentRepository) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// CreateCommentRequest attaches a note to a day
type CreateCommentRequest struct {
	Date    string `json:"date" binding:"required"`
	Content string `json:"content" binding:"required,max=2000"`
}

// CommentResponse is the wire representation of a comment
type CommentResponse struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func toCommentResponse(cm *repository.Comment) CommentResponse {
	return CommentResponse{
		ID:        cm.ID.String(),
		Date:      cm.Date.Format("2006-01-02"),
		Content:   cm.Content,
		CreatedAt: cm.CreatedAt.Format(time.RFC3339),
	}
}

// Create attaches a comment to a day
func (h *CommentHandler) Create(c *gin.Context) {
	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.SendValidationError(c, "invalid request body", err.Error())
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		api.SendBadRequest(c, "invalid date, expected YYYY-MM-DD")
		return
	}

	comment, err := h.comments.Create(c.Request.Context(), date, req.Content)
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}
	api.SendSuccess(c, http.StatusCreated, toCommentResponse(comment), nil)
}

// List returns all comments for a day
func (h *CommentHandler) List(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		api.SendBadRequest(c, "invalid date, expected YYYY-MM-DD")
		return
	}

	comments, err := h.comments.ListByDate(c.Request.Context(), date)
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}

	responses := make([]CommentResponse, 0, len(comments))
	for i := range comments {
		responses = append(responses, toCommentResponse(&comments[i]))
	}
	api.SendSuccess(c, http.StatusOK, responses, nil)
}

// Delete removes a comment
func (h *CommentHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		api.SendBadRequest(c, "invalid comment id")
		return
	}

	if err := h.comments.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.SendNotFound(c, "comment")
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}
	api.SendSuccess(c, http.StatusOK, gin.H{"deleted": true}, nil)
}
