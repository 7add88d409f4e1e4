package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"healthtrack/backend/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SyncStatus is the lifecycle state of a device connection's sync
type SyncStatus string

const (
	SyncStatusIdle      SyncStatus = "idle"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusError     SyncStatus = "error"
)

// DeviceConnection is a linked wearable account with its encrypted tokens
type DeviceConnection struct {
	ID                    uuid.UUID
	DeviceType            string
	DeviceName            string
	AccessTokenEncrypted  []byte
	RefreshTokenEncrypted []byte
	TokenSecretEncrypted  []byte
	EncryptionNonce       []byte
	TokenExpiresAt        *time.Time
	SyncEnabled           bool
	SyncStatus            SyncStatus
	SyncError             *string
	LastSyncAt            *time.Time
	Metadata              map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// CreateDeviceConnectionRequest carries the fields for registering a connection
type CreateDeviceConnectionRequest struct {
	DeviceType            string
	DeviceName            string
	AccessTokenEncrypted  []byte
	RefreshTokenEncrypted []byte
	TokenSecretEncrypted  []byte
	EncryptionNonce       []byte
	TokenExpiresAt        *time.Time
	Metadata              map[string]any
}

// UpdateTokensRequest carries refreshed credentials for an existing connection
type UpdateTokensRequest struct {
	AccessTokenEncrypted  []byte
	RefreshTokenEncrypted []byte
	TokenSecretEncrypted  []byte
	EncryptionNonce       []byte
	TokenExpiresAt        *time.Time
}

// DeviceRepository handles database operations for device connections
type DeviceRepository struct {
	db db.DBTX
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(dbtx db.DBTX) *DeviceRepository {
	return &DeviceRepository{db: dbtx}
}

const deviceColumns = `id, device_type, device_name, access_token_encrypted, refresh_token_encrypted,
	token_secret_encrypted, encryption_nonce, token_expires_at, sync_enabled, sync_status,
	sync_error, last_sync_at, metadata, created_at, updated_at`

func scanDeviceConnection(row pgx.Row) (*DeviceConnection, error) {
	var conn DeviceConnection
	var metadata []byte
	err := row.Scan(
		&conn.ID,
		&conn.DeviceType,
		&conn.DeviceName,
		&conn.AccessTokenEncrypted,
		&conn.RefreshTokenEncrypted,
		&conn.TokenSecretEncrypted,
		&conn.EncryptionNonce,
		&conn.TokenExpiresAt,
		&conn.SyncEnabled,
		&conn.SyncStatus,
		&conn.SyncError,
		&conn.LastSyncAt,
		&metadata,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan device connection: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conn.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connection metadata: %w", err)
		}
	}
	return &conn, nil
}

// Create registers a new device connection in idle state with sync enabled
func (r *DeviceRepository) Create(ctx context.Context, req CreateDeviceConnectionRequest) (*DeviceConnection, error) {
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal connection metadata: %w", err)
	}

	query := `
		INSERT INTO device_connections (
			device_type, device_name, access_token_encrypted, refresh_token_encrypted,
			token_secret_encrypted, encryption_nonce, token_expires_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + deviceColumns

	row := r.db.QueryRow(ctx, query,
		req.DeviceType,
		req.DeviceName,
		req.AccessTokenEncrypted,
		req.RefreshTokenEncrypted,
		req.TokenSecretEncrypted,
		req.EncryptionNonce,
		timeToPgTimestamptz(req.TokenExpiresAt),
		metadata,
	)
	return scanDeviceConnection(row)
}

// Get retrieves a device connection by ID
func (r *DeviceRepository) Get(ctx context.Context, id uuid.UUID) (*DeviceConnection, error) {
	query := `SELECT ` + deviceColumns + ` FROM device_connections WHERE id = $1`
	return scanDeviceConnection(r.db.QueryRow(ctx, query, uuidToPgUUID(id)))
}

// GetByType retrieves the connection for a device type, if one exists
func (r *DeviceRepository) GetByType(ctx context.Context, deviceType string) (*DeviceConnection, error) {
	query := `SELECT ` + deviceColumns + ` FROM device_connections WHERE device_type = $1 ORDER BY created_at DESC LIMIT 1`
	return scanDeviceConnection(r.db.QueryRow(ctx, query, deviceType))
}

// List retrieves all device connections, newest first
func (r *DeviceRepository) List(ctx context.Context) ([]DeviceConnection, error) {
	query := `SELECT ` + deviceColumns + ` FROM device_connections ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list device connections: %w", err)
	}
	defer rows.Close()

	conns := make([]DeviceConnection, 0)
	for rows.Next() {
		conn, err := scanDeviceConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device connections: %w", err)
	}
	return conns, nil
}

// UpdateSyncStatus transitions a connection's sync status. The error message
// is stored for error status and cleared otherwise.
func (r *DeviceRepository) UpdateSyncStatus(ctx context.Context, id uuid.UUID, status SyncStatus, syncError *string) error {
	query := `
		UPDATE device_connections
		SET sync_status = $2, sync_error = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, uuidToPgUUID(id), status, stringToPgText(syncError))
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// MarkSyncCompleted records a successful sync: status completed, error
// cleared, last_sync_at set to the completion time.
func (r *DeviceRepository) MarkSyncCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	query := `
		UPDATE device_connections
		SET sync_status = $2, sync_error = NULL, last_sync_at = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, uuidToPgUUID(id), SyncStatusCompleted, timeToPgTimestamptz(&completedAt))
	if err != nil {
		return fmt.Errorf("failed to mark sync completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// UpdateTokens stores refreshed credentials for a connection
func (r *DeviceRepository) UpdateTokens(ctx context.Context, id uuid.UUID, req UpdateTokensRequest) error {
	query := `
		UPDATE device_connections
		SET access_token_encrypted = $2, refresh_token_encrypted = $3,
			token_secret_encrypted = $4, encryption_nonce = $5,
			token_expires_at = $6, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		uuidToPgUUID(id),
		req.AccessTokenEncrypted,
		req.RefreshTokenEncrypted,
		req.TokenSecretEncrypted,
		req.EncryptionNonce,
		timeToPgTimestamptz(req.TokenExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// SetSyncEnabled toggles automatic syncing for a connection
func (r *DeviceRepository) SetSyncEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `UPDATE device_connections SET sync_enabled = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, uuidToPgUUID(id), enabled)
	if err != nil {
		return fmt.Errorf("failed to set sync enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// Delete removes a device connection and, via cascade, its sync log
func (r *DeviceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM device_connections WHERE id = $1`, uuidToPgUUID(id))
	if err != nil {
		return fmt.Errorf("failed to delete device connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
