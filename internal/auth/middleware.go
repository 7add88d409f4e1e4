// Package auth provides the session authentication middleware.
package auth

import (
	"healthtrack/backend/internal/api"
	"healthtrack/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionCookie is the cookie carrying the session id. The X-Session-ID
// header takes precedence when both are present.
const SessionCookie = "session_id"

// ContextUserID is the gin context key holding the authenticated user id
const ContextUserID = "user_id"

// SessionMiddleware rejects requests without a valid, unexpired session
func SessionMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("X-Session-ID")
		if sessionID == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				sessionID = cookie
			}
		}

		session, err := authService.Verify(c.Request.Context(), sessionID)
		if err != nil {
			api.SendUnauthorized(c, "authentication required")
			c.Abort()
			return
		}

		c.Set(ContextUserID, session.UserID.String())
		c.Next()
	}
}
