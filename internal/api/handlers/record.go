package handlers

import (
	"errors"
	"net/http"
	"time"

	"healthtrack/backend/internal/api"
	"healthtrack/backend/internal/db"
	"healthtrack/backend/internal/repository"

	"github.com/gin-gonic/gin"
)

// RecordHandler handles health record CRUD requests
type RecordHandler struct {
	records *repository.HealthRecordRepository
}

// NewRecordHandler creates a new health record handler
func NewRecordHandler(records *repository.HealthRecordRepository) *RecordHandler {
	return &RecordHandler{records: records}
}

// HealthRecordResponse is the wire representation of one day's record
type HealthRecordResponse struct {
	Date            string   `json:"date"`
	Weight          *float64 `json:"weight,omitempty"`
	BloodPressure   *string  `json:"blood_pressure,omitempty"`
	BloodSugar      *string  `json:"blood_sugar,omitempty"`
	SleepHours      *float64 `json:"sleep_hours,omitempty"`
	ExerciseMinutes *int32   `json:"exercise_minutes,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
	UpdatedAt       string   `json:"updated_at"`
}

func toHealthRecordResponse(rec *repository.HealthRecord) HealthRecordResponse {
	return HealthRecordResponse{
		Date:            rec.Date.Format("2006-01-02"),
		Weight:          rec.Weight,
		BloodPressure:   rec.BloodPressure,
		BloodSugar:      rec.BloodSugar,
		SleepHours:      rec.SleepHours,
		ExerciseMinutes: rec.ExerciseMinutes,
		Notes:           rec.Notes,
		UpdatedAt:       rec.UpdatedAt.Format(time.RFC3339),
	}
}

// HealthRecordRequest carries a full or partial day's values
type HealthRecordRequest struct {
	Weight          *float64 `json:"weight" binding:"omitempty,gt=0"`
	BloodPressure   *string  `json:"blood_pressure"`
	BloodSugar      *string  `json:"blood_sugar"`
	SleepHours      *float64 `json:"sleep_hours" binding:"omitempty,gte=0,lte=24"`
	ExerciseMinutes *int32   `json:"exercise_minutes" binding:"omitempty,gte=0"`
	Notes           *string  `json:"notes"`
}

// List returns records in a date range, or the most recent records when no
// range is given
func (h *RecordHandler) List(c *gin.Context) {
	fromRaw := c.Query("from")
	toRaw := c.Query("to")

	var records []repository.HealthRecord
	var err error
	if fromRaw != "" || toRaw != "" {
		from, ok := parseDateQuery(c, "from", fromRaw)
		if !ok {
			return
		}
		to, ok := parseDateQuery(c, "to", toRaw)
		if !ok {
			return
		}
		records, err = h.records.ListRange(c.Request.Context(), from, to)
	} else {
		limit := parseQueryInt32(c, "limit", 30, 1, 365)
		records, err = h.records.List(c.Request.Context(), limit)
	}
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}

	responses := make([]HealthRecordResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toHealthRecordResponse(&records[i]))
	}
	api.SendSuccess(c, http.StatusOK, responses, nil)
}

// Get returns the record for one day
func (h *RecordHandler) Get(c *gin.Context) {
	date, ok := parseDateParam(c)
	if !ok {
		return
	}

	rec, err := h.records.GetByDate(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.SendNotFound(c, "health record")
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}
	api.SendSuccess(c, http.StatusOK, toHealthRecordResponse(rec), nil)
}

// Put replaces the record for one day wholesale
func (h *RecordHandler) Put(c *gin.Context) {
	date, ok := parseDateParam(c)
	if !ok {
		return
	}

	var req HealthRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.SendValidationError(c, "invalid request body", err.Error())
		return
	}

	rec, err := h.records.Put(c.Request.Context(), repository.HealthRecord{
		Date:            date,
		Weight:          req.Weight,
		BloodPressure:   req.BloodPressure,
		BloodSugar:      req.BloodSugar,
		SleepHours:      req.SleepHours,
		ExerciseMinutes: req.ExerciseMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}
	api.SendSuccess(c, http.StatusOK, toHealthRecordResponse(rec), nil)
}

// Patch merges the supplied fields into the record for one day, leaving
// omitted fields untouched
func (h *RecordHandler) Patch(c *gin.Context) {
	date, ok := parseDateParam(c)
	if !ok {
		return
	}

	var req HealthRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.SendValidationError(c, "invalid request body", err.Error())
		return
	}

	patch := repository.HealthRecordPatch{
		Weight:          req.Weight,
		BloodPressure:   req.BloodPressure,
		BloodSugar:      req.BloodSugar,
		SleepHours:      req.SleepHours,
		ExerciseMinutes: req.ExerciseMinutes,
		Notes:           req.Notes,
	}
	if patch.IsEmpty() {
		api.SendBadRequest(c, "no fields to update")
		return
	}

	if err := h.records.UpsertDay(c.Request.Context(), date, patch); err != nil {
		api.SendInternalError(c, err.Error())
		return
	}

	rec, err := h.records.GetByDate(c.Request.Context(), date)
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}
	api.SendSuccess(c, http.StatusOK, toHealthRecordResponse(rec), nil)
}

// Delete removes the record for one day
func (h *RecordHandler) Delete(c *gin.Context) {
	date, ok := parseDateParam(c)
	if !ok {
		return
	}

	if err := h.records.Delete(c.Request.Context(), date); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.SendNotFound(c, "health record")
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}
	api.SendSuccess(c, http.StatusOK, gin.H{"deleted": true}, nil)
}

func parseDateParam(c *gin.Context) (time.Time, bool) {
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		api.SendBadRequest(c, "invalid date, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func parseDateQuery(c *gin.Context, name, raw string) (time.Time, bool) {
	if raw == "" {
		api.SendBadRequest(c, "both from and to are required for a range query")
		return time.Time{}, false
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		api.SendBadRequest(c, "invalid "+name+" date, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}
