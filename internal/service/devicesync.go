// Package service contains the application services that sit between the
// HTTP handlers and the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthtrack/backend/internal/crypto"
	"healthtrack/backend/internal/db"
	"healthtrack/backend/internal/device"
	"healthtrack/backend/internal/logger"
	"healthtrack/backend/internal/repository"

	"github.com/google/uuid"
)

// Orchestrator errors. Both are terminal for the invocation: the caller
// resolves them by reconnecting or re-enabling, not by retrying.
var (
	ErrSyncDisabled = errors.New("sync is disabled for this connection")
	ErrSyncFailed   = errors.New("sync failed")
)

// AdapterFactory resolves device type strings to provider adapters
type AdapterFactory interface {
	Adapter(deviceType string) (device.Adapter, error)
}

// ConnectionStore is the device registry surface the orchestrator drives
type ConnectionStore interface {
	Create(ctx context.Context, req repository.CreateDeviceConnectionRequest) (*repository.DeviceConnection, error)
	Get(ctx context.Context, id uuid.UUID) (*repository.DeviceConnection, error)
	GetByType(ctx context.Context, deviceType string) (*repository.DeviceConnection, error)
	List(ctx context.Context) ([]repository.DeviceConnection, error)
	UpdateSyncStatus(ctx context.Context, id uuid.UUID, status repository.SyncStatus, syncError *string) error
	UpdateTokens(ctx context.Context, id uuid.UUID, req repository.UpdateTokensRequest) error
	SetSyncEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SyncLogStore is the sync history surface the orchestrator reads and,
// on failure, appends to
type SyncLogStore interface {
	Append(ctx context.Context, req repository.AppendSyncLogRequest) error
	ListByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int32) ([]repository.SyncLogEntry, error)
	CountByConnection(ctx context.Context, connectionID uuid.UUID) (int64, error)
}

// DeviceSyncService orchestrates device connections and their syncs
type DeviceSyncService struct {
	factory     AdapterFactory
	connections ConnectionStore
	syncLog     SyncLogStore
	encryptor   *crypto.TokenEncryptor
	defaultDays int
	now         func() time.Time
}

// NewDeviceSyncService creates a new device sync service
func NewDeviceSyncService(factory AdapterFactory, connections ConnectionStore, syncLog SyncLogStore, encryptor *crypto.TokenEncryptor, defaultDays int) *DeviceSyncService {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &DeviceSyncService{
		factory:     factory,
		connections: connections,
		syncLog:     syncLog,
		encryptor:   encryptor,
		defaultDays: defaultDays,
		now:         time.Now,
	}
}

// AuthorizationURL builds the provider consent URL for a device type
func (s *DeviceSyncService) AuthorizationURL(ctx context.Context, deviceType, state string) (string, error) {
	adapter, err := s.factory.Adapter(deviceType)
	if err != nil {
		return "", err
	}
	return adapter.AuthorizationURL(ctx, state)
}

// CompleteConnection exchanges the OAuth callback grant for tokens and
// registers the device connection. Reconnecting a provider that is already
// linked refreshes the stored tokens on the existing connection instead of
// creating a duplicate.
func (s *DeviceSyncService) CompleteConnection(ctx context.Context, deviceType, code, verifier string) (*repository.DeviceConnection, error) {
	adapter, err := s.factory.Adapter(deviceType)
	if err != nil {
		return nil, err
	}

	token, err := adapter.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	req, err := s.encryptTokens(token)
	if err != nil {
		return nil, err
	}
	req.DeviceType = string(adapter.Type())
	req.DeviceName = adapter.DisplayName()

	existing, err := s.connections.GetByType(ctx, req.DeviceType)
	if err == nil {
		update := repository.UpdateTokensRequest{
			AccessTokenEncrypted:  req.AccessTokenEncrypted,
			RefreshTokenEncrypted: req.RefreshTokenEncrypted,
			TokenSecretEncrypted:  req.TokenSecretEncrypted,
			EncryptionNonce:       req.EncryptionNonce,
			TokenExpiresAt:        req.TokenExpiresAt,
		}
		if err := s.connections.UpdateTokens(ctx, existing.ID, update); err != nil {
			return nil, err
		}

		logger.Info().
			Str("device_type", req.DeviceType).
			Str("connection_id", existing.ID.String()).
			Msg("device reconnected, tokens refreshed")
		return s.connections.Get(ctx, existing.ID)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	conn, err := s.connections.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("device_type", req.DeviceType).
		Str("connection_id", conn.ID.String()).
		Msg("device connected")
	return conn, nil
}

func (s *DeviceSyncService) encryptTokens(token *device.TokenResult) (repository.CreateDeviceConnectionRequest, error) {
	var req repository.CreateDeviceConnectionRequest

	accessCipher, nonce, err := s.encryptor.Encrypt(token.AccessToken)
	if err != nil {
		return req, fmt.Errorf("encrypt access token: %w", err)
	}
	req.AccessTokenEncrypted = accessCipher
	req.EncryptionNonce = nonce

	if token.RefreshToken != "" {
		cipher, err := s.encryptor.EncryptWithNonce(token.RefreshToken, nonce)
		if err != nil {
			return req, fmt.Errorf("encrypt refresh token: %w", err)
		}
		req.RefreshTokenEncrypted = cipher
	}
	if token.TokenSecret != "" {
		cipher, err := s.encryptor.EncryptWithNonce(token.TokenSecret, nonce)
		if err != nil {
			return req, fmt.Errorf("encrypt token secret: %w", err)
		}
		req.TokenSecretEncrypted = cipher
	}

	req.TokenExpiresAt = token.ExpiresAt
	if token.UserID != "" {
		req.Metadata = map[string]any{"userid": token.UserID}
	}
	return req, nil
}

func (s *DeviceSyncService) decryptCredentials(conn *repository.DeviceConnection) (device.Credentials, error) {
	var creds device.Credentials

	accessToken, err := s.encryptor.Decrypt(conn.AccessTokenEncrypted, conn.EncryptionNonce)
	if err != nil {
		return creds, fmt.Errorf("decrypt access token: %w", err)
	}
	creds.AccessToken = accessToken

	if len(conn.RefreshTokenEncrypted) > 0 {
		refreshToken, err := s.encryptor.Decrypt(conn.RefreshTokenEncrypted, conn.EncryptionNonce)
		if err != nil {
			return creds, fmt.Errorf("decrypt refresh token: %w", err)
		}
		creds.RefreshToken = refreshToken
	}
	if len(conn.TokenSecretEncrypted) > 0 {
		secret, err := s.encryptor.Decrypt(conn.TokenSecretEncrypted, conn.EncryptionNonce)
		if err != nil {
			return creds, fmt.Errorf("decrypt token secret: %w", err)
		}
		creds.TokenSecret = secret
	}

	creds.ExpiresAt = conn.TokenExpiresAt
	if userID, ok := conn.Metadata["userid"].(string); ok {
		creds.UserID = userID
	}
	return creds, nil
}

// RunSync drives one adapter sync for a connection. The connection is left
// in a terminal state in every outcome: completed by the adapter on
// success, error with a message here on failure, never stuck in syncing.
// No retries; a failed sync is re-triggered manually.
func (s *DeviceSyncService) RunSync(ctx context.Context, connectionID uuid.UUID, days int) (int, error) {
	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return 0, err
	}
	if !conn.SyncEnabled {
		return 0, ErrSyncDisabled
	}

	adapter, err := s.factory.Adapter(conn.DeviceType)
	if err != nil {
		return 0, err
	}

	creds, err := s.decryptCredentials(conn)
	if err != nil {
		return 0, err
	}

	if days <= 0 {
		days = s.defaultDays
	}

	if err := s.connections.UpdateSyncStatus(ctx, conn.ID, repository.SyncStatusSyncing, nil); err != nil {
		return 0, err
	}

	startedAt := s.now().AddDate(0, 0, -days)
	count, syncErr := s.runAdapter(ctx, adapter, conn.ID, creds, days)
	if syncErr != nil {
		s.recordFailure(ctx, conn.ID, adapter.SyncType(), startedAt, syncErr)
		return 0, fmt.Errorf("%w: %s", ErrSyncFailed, syncErr.Error())
	}

	logger.Info().
		Str("connection_id", conn.ID.String()).
		Str("device_type", conn.DeviceType).
		Int("records_synced", count).
		Msg("device sync completed")
	return count, nil
}

// runAdapter invokes the adapter and converts a panic into an error so the
// orchestrator can still move the connection to a terminal state
func (s *DeviceSyncService) runAdapter(ctx context.Context, adapter device.Adapter, connectionID uuid.UUID, creds device.Credentials, days int) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panicked: %v", r)
		}
	}()
	return adapter.Sync(ctx, connectionID, creds, days)
}

func (s *DeviceSyncService) recordFailure(ctx context.Context, connectionID uuid.UUID, syncType string, startedAt time.Time, syncErr error) {
	msg := syncErr.Error()
	if err := s.connections.UpdateSyncStatus(ctx, connectionID, repository.SyncStatusError, &msg); err != nil {
		logger.Error().Err(err).
			Str("connection_id", connectionID.String()).
			Msg("failed to record sync error status")
	}

	completedAt := s.now()
	logErr := s.syncLog.Append(ctx, repository.AppendSyncLogRequest{
		DeviceConnectionID: connectionID,
		SyncType:           syncType,
		RecordsSynced:      0,
		SyncStartedAt:      startedAt,
		SyncCompletedAt:    &completedAt,
		Status:             repository.SyncLogStatusError,
		ErrorMessage:       &msg,
	})
	if logErr != nil {
		logger.Error().Err(logErr).
			Str("connection_id", connectionID.String()).
			Msg("failed to append sync log entry")
	}
}

// GetConnection retrieves a device connection
func (s *DeviceSyncService) GetConnection(ctx context.Context, id uuid.UUID) (*repository.DeviceConnection, error) {
	return s.connections.Get(ctx, id)
}

// ListConnections retrieves all device connections
func (s *DeviceSyncService) ListConnections(ctx context.Context) ([]repository.DeviceConnection, error) {
	return s.connections.List(ctx)
}

// SetSyncEnabled toggles automatic syncing for a connection
func (s *DeviceSyncService) SetSyncEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.connections.SetSyncEnabled(ctx, id, enabled)
}

// Disconnect removes a connection and its sync history
func (s *DeviceSyncService) Disconnect(ctx context.Context, id uuid.UUID) error {
	if err := s.connections.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info().Str("connection_id", id.String()).Msg("device disconnected")
	return nil
}

// SyncLogs retrieves the sync history for a connection along with the total
// row count for pagination
func (s *DeviceSyncService) SyncLogs(ctx context.Context, connectionID uuid.UUID, limit, offset int32) ([]repository.SyncLogEntry, int64, error) {
	if _, err := s.connections.Get(ctx, connectionID); err != nil {
		return nil, 0, err
	}
	entries, err := s.syncLog.ListByConnection(ctx, connectionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.syncLog.CountByConnection(ctx, connectionID)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// IsNotFound reports whether err is the registry's missing-row error
func IsNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
