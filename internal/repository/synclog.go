package repository

import (
	"context"
	"fmt"
	"time"

	"healthtrack/backend/internal/db"

	"github.com/google/uuid"
)

// SyncLogStatus is the outcome recorded for one sync run
type SyncLogStatus string

const (
	SyncLogStatusCompleted SyncLogStatus = "completed"
	SyncLogStatusError     SyncLogStatus = "error"
)

// SyncLogEntry is one row of the append-only per-connection sync history
type SyncLogEntry struct {
	ID                 uuid.UUID
	DeviceConnectionID uuid.UUID
	SyncType           string
	RecordsSynced      int32
	SyncStartedAt      time.Time
	SyncCompletedAt    *time.Time
	Status             SyncLogStatus
	ErrorMessage       *string
	CreatedAt          time.Time
}

// AppendSyncLogRequest carries the fields for one sync log row
type AppendSyncLogRequest struct {
	DeviceConnectionID uuid.UUID
	SyncType           string
	RecordsSynced      int32
	SyncStartedAt      time.Time
	SyncCompletedAt    *time.Time
	Status             SyncLogStatus
	ErrorMessage       *string
}

// SyncLogRepository handles database operations for the device sync log
type SyncLogRepository struct {
	db db.DBTX
}

// NewSyncLogRepository creates a new sync log repository
func NewSyncLogRepository(dbtx db.DBTX) *SyncLogRepository {
	return &SyncLogRepository{db: dbtx}
}

// Append writes one sync log row. The log is append-only: rows are never
// updated or deleted except by connection cascade.
func (r *SyncLogRepository) Append(ctx context.Context, req AppendSyncLogRequest) error {
	query := `
		INSERT INTO device_sync_log (
			device_connection_id, sync_type, records_synced,
			sync_started_at, sync_completed_at, status, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		uuidToPgUUID(req.DeviceConnectionID),
		req.SyncType,
		req.RecordsSynced,
		timeToPgTimestamptz(&req.SyncStartedAt),
		timeToPgTimestamptz(req.SyncCompletedAt),
		req.Status,
		stringToPgText(req.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	return nil
}

// ListByConnection retrieves sync log rows for a connection, newest first
func (r *SyncLogRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int32) ([]SyncLogEntry, error) {
	query := `
		SELECT id, device_connection_id, sync_type, records_synced,
			sync_started_at, sync_completed_at, status, error_message, created_at
		FROM device_sync_log
		WHERE device_connection_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, uuidToPgUUID(connectionID), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log: %w", err)
	}
	defer rows.Close()

	entries := make([]SyncLogEntry, 0)
	for rows.Next() {
		var e SyncLogEntry
		err := rows.Scan(
			&e.ID,
			&e.DeviceConnectionID,
			&e.SyncType,
			&e.RecordsSynced,
			&e.SyncStartedAt,
			&e.SyncCompletedAt,
			&e.Status,
			&e.ErrorMessage,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync log: %w", err)
	}
	return entries, nil
}

// CountByConnection returns the total number of sync log rows for a connection
func (r *SyncLogRepository) CountByConnection(ctx context.Context, connectionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM device_sync_log WHERE device_connection_id = $1`,
		uuidToPgUUID(connectionID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sync log: %w", err)
	}
	return count, nil
}
