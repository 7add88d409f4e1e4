package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthtrack/backend/internal/db"

	"github.com/jackc/pgx/v5"
)

// HealthRecord is one day of tracked health data. The date is the natural
// key: there is at most one record per calendar day.
type HealthRecord struct {
	Date            time.Time
	Weight          *float64
	BloodPressure   *string
	BloodSugar      *string
	SleepHours      *float64
	ExerciseMinutes *int32
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HealthRecordPatch carries a partial update for a single day. Nil fields
// are left untouched on an existing record.
type HealthRecordPatch struct {
	Weight          *float64
	BloodPressure   *string
	BloodSugar      *string
	SleepHours      *float64
	ExerciseMinutes *int32
	Notes           *string
}

// IsEmpty reports whether the patch carries no values at all.
func (p HealthRecordPatch) IsEmpty() bool {
	return p.Weight == nil && p.BloodPressure == nil && p.BloodSugar == nil &&
		p.SleepHours == nil && p.ExerciseMinutes == nil && p.Notes == nil
}

// HealthRecordRepository handles database operations for health records
type HealthRecordRepository struct {
	db db.DBTX
}

// NewHealthRecordRepository creates a new health record repository
func NewHealthRecordRepository(dbtx db.DBTX) *HealthRecordRepository {
	return &HealthRecordRepository{db: dbtx}
}

const healthRecordColumns = `date, weight, blood_pressure, blood_sugar, sleep_hours, exercise_minutes, notes, created_at, updated_at`

func scanHealthRecord(row pgx.Row) (*HealthRecord, error) {
	var rec HealthRecord
	err := row.Scan(
		&rec.Date,
		&rec.Weight,
		&rec.BloodPressure,
		&rec.BloodSugar,
		&rec.SleepHours,
		&rec.ExerciseMinutes,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan health record: %w", err)
	}
	return &rec, nil
}

// UpsertDay merges a patch into the record for the given date, creating the
// record if it does not exist. Fields the patch leaves nil keep their stored
// value, so adapters writing different metrics for the same day do not
// clobber each other. Notes are last write wins.
func (r *HealthRecordRepository) UpsertDay(ctx context.Context, date time.Time, patch HealthRecordPatch) error {
	query := `
		INSERT INTO health_records (date, weight, blood_pressure, blood_sugar, sleep_hours, exercise_minutes, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date) DO UPDATE SET
			weight = COALESCE(EXCLUDED.weight, health_records.weight),
			blood_pressure = COALESCE(EXCLUDED.blood_pressure, health_records.blood_pressure),
			blood_sugar = COALESCE(EXCLUDED.blood_sugar, health_records.blood_sugar),
			sleep_hours = COALESCE(EXCLUDED.sleep_hours, health_records.sleep_hours),
			exercise_minutes = COALESCE(EXCLUDED.exercise_minutes, health_records.exercise_minutes),
			notes = COALESCE(EXCLUDED.notes, health_records.notes),
			updated_at = NOW()
	`

	_, err := r.db.Exec(ctx, query,
		timeToPgDate(date),
		float64ToPgFloat8(patch.Weight),
		stringToPgText(patch.BloodPressure),
		stringToPgText(patch.BloodSugar),
		float64ToPgFloat8(patch.SleepHours),
		int32ToPgInt4(patch.ExerciseMinutes),
		stringToPgText(patch.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert health record: %w", err)
	}
	return nil
}

// Put replaces the record for rec.Date wholesale, creating it if needed.
// Unlike UpsertDay, nil fields overwrite stored values with NULL.
func (r *HealthRecordRepository) Put(ctx context.Context, rec HealthRecord) (*HealthRecord, error) {
	query := `
		INSERT INTO health_records (date, weight, blood_pressure, blood_sugar, sleep_hours, exercise_minutes, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date) DO UPDATE SET
			weight = EXCLUDED.weight,
			blood_pressure = EXCLUDED.blood_pressure,
			blood_sugar = EXCLUDED.blood_sugar,
			sleep_hours = EXCLUDED.sleep_hours,
			exercise_minutes = EXCLUDED.exercise_minutes,
			notes = EXCLUDED.notes,
			updated_at = NOW()
		RETURNING ` + healthRecordColumns

	row := r.db.QueryRow(ctx, query,
		timeToPgDate(rec.Date),
		float64ToPgFloat8(rec.Weight),
		stringToPgText(rec.BloodPressure),
		stringToPgText(rec.BloodSugar),
		float64ToPgFloat8(rec.SleepHours),
		int32ToPgInt4(rec.ExerciseMinutes),
		stringToPgText(rec.Notes),
	)
	return scanHealthRecord(row)
}

// GetByDate retrieves the record for a single day
func (r *HealthRecordRepository) GetByDate(ctx context.Context, date time.Time) (*HealthRecord, error) {
	query := `SELECT ` + healthRecordColumns + ` FROM health_records WHERE date = $1`
	return scanHealthRecord(r.db.QueryRow(ctx, query, timeToPgDate(date)))
}

// ListRange retrieves records with from <= date <= to, most recent first
func (r *HealthRecordRepository) ListRange(ctx context.Context, from, to time.Time) ([]HealthRecord, error) {
	query := `
		SELECT ` + healthRecordColumns + `
		FROM health_records
		WHERE date >= $1 AND date <= $2
		ORDER BY date DESC
	`

	rows, err := r.db.Query(ctx, query, timeToPgDate(from), timeToPgDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list health records: %w", err)
	}
	defer rows.Close()

	return collectHealthRecords(rows)
}

// List retrieves the most recent records up to limit
func (r *HealthRecordRepository) List(ctx context.Context, limit int32) ([]HealthRecord, error) {
	query := `SELECT ` + healthRecordColumns + ` FROM health_records ORDER BY date DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list health records: %w", err)
	}
	defer rows.Close()

	return collectHealthRecords(rows)
}

func collectHealthRecords(rows pgx.Rows) ([]HealthRecord, error) {
	records := make([]HealthRecord, 0)
	for rows.Next() {
		rec, err := scanHealthRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate health records: %w", err)
	}
	return records, nil
}

// Delete removes the record for a single day
func (r *HealthRecordRepository) Delete(ctx context.Context, date time.Time) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM health_records WHERE date = $1`, timeToPgDate(date))
	if err != nil {
		return fmt.Errorf("failed to delete health record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
