package handlers

import (
	"errors"
	"net/http"
	"time"

	"healthtrack/backend/internal/api"
	"healthtrack/backend/internal/auth"
	"healthtrack/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles login and logout requests
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest carries credentials for a login attempt
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the created session
type LoginResponse struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// Login verifies credentials and opens a session. The session id is
// returned in the body and also set as a cookie for browser clients.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.SendValidationError(c, "invalid request body", err.Error())
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			api.SendUnauthorized(c, "invalid username or password")
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetCookie(auth.SessionCookie, session.ID, maxAge, "/", "", false, true)

	api.SendSuccess(c, http.StatusOK, LoginResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	}, nil)
}

// Logout ends the current session
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := c.GetHeader("X-Session-ID")
	if sessionID == "" {
		if cookie, err := c.Cookie(auth.SessionCookie); err == nil {
			sessionID = cookie
		}
	}

	if err := h.authService.Logout(c.Request.Context(), sessionID); err != nil {
		api.SendInternalError(c, err.Error())
		return
	}

	c.SetCookie(auth.SessionCookie, "", -1, "/", "", false, true)
	api.SendSuccess(c, http.StatusOK, gin.H{"logged_out": true}, nil)
}

// Check reports whether the caller holds a valid session
func (h *AuthHandler) Check(c *gin.Context) {
	sessionID := c.GetHeader("X-Session-ID")
	if sessionID == "" {
		if cookie, err := c.Cookie(auth.SessionCookie); err == nil {
			sessionID = cookie
		}
	}

	session, err := h.authService.Verify(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionInvalid) {
			api.SendSuccess(c, http.StatusOK, gin.H{"authenticated": false}, nil)
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}

	api.SendSuccess(c, http.StatusOK, gin.H{
		"authenticated": true,
		"expires_at":    session.ExpiresAt.Format(time.RFC3339),
	}, nil)
}
