package handlers

import (
	"errors"
	"net/http"

	"healthtrack/backend/internal/api"
	"healthtrack/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// AssistantHandler handles AI query and report requests
type AssistantHandler struct {
	assistant *service.AssistantService
}

// NewAssistantHandler creates a new assistant handler
func NewAssistantHandler(assistant *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

// QueryRequest carries a natural-language question
type QueryRequest struct {
	Question string `json:"question" binding:"required,max=1000"`
}

// Query answers a question over the tracked data
func (h *AssistantHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.SendValidationError(c, "invalid request body", err.Error())
		return
	}

	answer, err := h.assistant.Query(c.Request.Context(), req.Question)
	if err != nil {
		if errors.Is(err, service.ErrAssistantDisabled) {
			api.SendUnavailable(c, "ai assistant is not configured")
			return
		}
		api.SendError(c, http.StatusBadGateway, api.ErrCodeInternal, "Assistant query failed", err.Error())
		return
	}

	api.SendSuccess(c, http.StatusOK, gin.H{"answer": answer}, nil)
}

// ReportRequest selects the report window
type ReportRequest struct {
	Days int `json:"days" binding:"omitempty,min=1,max=90"`
}

// GenerateReport produces a narrative summary of recent data
func (h *AssistantHandler) GenerateReport(c *gin.Context) {
	var req ReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			api.SendValidationError(c, "invalid request body", err.Error())
			return
		}
	}

	report, err := h.assistant.GenerateReport(c.Request.Context(), req.Days)
	if err != nil {
		if errors.Is(err, service.ErrAssistantDisabled) {
			api.SendUnavailable(c, "ai assistant is not configured")
			return
		}
		api.SendError(c, http.StatusBadGateway, api.ErrCodeInternal, "Report generation failed", err.Error())
		return
	}

	api.SendSuccess(c, http.StatusOK, gin.H{"report": report}, nil)
}
