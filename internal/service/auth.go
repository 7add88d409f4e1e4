package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"healthtrack/backend/internal/db"
	"healthtrack/backend/internal/logger"
	"healthtrack/backend/internal/repository"

	"github.com/google/uuid"
)

const sessionTTL = 24 * time.Hour

// Auth errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionInvalid     = errors.New("session is invalid or expired")
)

// UserStore is the persistence surface for users and sessions
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*repository.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*repository.User, error)
	CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time) (*repository.Session, error)
	GetSession(ctx context.Context, id string) (*repository.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// AuthService handles login sessions
type AuthService struct {
	users UserStore
	now   func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore) *AuthService {
	return &AuthService{users: users, now: time.Now}
}

// HashPassword returns the hex SHA-256 digest used for stored passwords
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login verifies a username/password pair and creates a session
func (s *AuthService) Login(ctx context.Context, username, password string) (*repository.Session, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hash := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(user.PasswordHash)) != 1 {
		return nil, ErrInvalidCredentials
	}

	// Each login sweeps out sessions past their expiry.
	if removed, err := s.users.DeleteExpiredSessions(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to delete expired sessions")
	} else if removed > 0 {
		logger.Debug().Int64("removed", removed).Msg("expired sessions deleted")
	}

	sessionID, err := newSessionID()
	if err != nil {
		return nil, err
	}

	session, err := s.users.CreateSession(ctx, sessionID, user.ID, s.now().Add(sessionTTL))
	if err != nil {
		return nil, err
	}

	logger.Info().Str("username", username).Msg("user logged in")
	return session, nil
}

// Verify checks that a session exists and has not expired. Expired sessions
// are deleted on the spot.
func (s *AuthService) Verify(ctx context.Context, sessionID string) (*repository.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionInvalid
	}

	session, err := s.users.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	if s.now().After(session.ExpiresAt) {
		if err := s.users.DeleteSession(ctx, sessionID); err != nil {
			logger.Warn().Err(err).Msg("failed to delete expired session")
		}
		return nil, ErrSessionInvalid
	}
	return session, nil
}

// Logout deletes a session. Unknown sessions are ignored.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.users.DeleteSession(ctx, sessionID)
}

// EnsureUser creates a user if the username is not yet taken. Used to seed
// the initial account from configuration.
func (s *AuthService) EnsureUser(ctx context.Context, username, password string) error {
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}
	if _, err := s.users.CreateUser(ctx, username, HashPassword(password)); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	logger.Info().Str("username", username).Msg("seeded initial user")
	return nil
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
