// Package handlers contains the gin HTTP handlers.
package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"healthtrack/backend/internal/api"
	"healthtrack/backend/internal/db"
	"healthtrack/backend/internal/device"
	"healthtrack/backend/internal/repository"
	"healthtrack/backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeviceHandler handles device connection and sync HTTP requests
type DeviceHandler struct {
	syncService *service.DeviceSyncService
	// State store for CSRF protection (in-memory, expires after 10 minutes)
	stateStore   map[string]time.Time
	stateStoreMu sync.Mutex
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(syncService *service.DeviceSyncService) *DeviceHandler {
	return &DeviceHandler{
		syncService: syncService,
		stateStore:  make(map[string]time.Time),
	}
}

// storeState records a pending state and purges entries past their expiry,
// so abandoned flows do not accumulate.
func (h *DeviceHandler) storeState(state string) {
	h.stateStoreMu.Lock()
	defer h.stateStoreMu.Unlock()

	now := time.Now()
	for old, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, old)
		}
	}
	h.stateStore[state] = now.Add(10 * time.Minute)
}

func (h *DeviceHandler) validateState(state string) bool {
	h.stateStoreMu.Lock()
	defer h.stateStoreMu.Unlock()

	expiry, exists := h.stateStore[state]
	if !exists {
		return false
	}
	delete(h.stateStore, state)
	return !time.Now().After(expiry)
}

func generateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DeviceConnectionResponse is the wire representation of a connection.
// Token material never leaves the server.
type DeviceConnectionResponse struct {
	ID          string  `json:"id"`
	DeviceType  string  `json:"device_type"`
	DeviceName  string  `json:"device_name"`
	SyncEnabled bool    `json:"sync_enabled"`
	SyncStatus  string  `json:"sync_status"`
	SyncError   *string `json:"sync_error,omitempty"`
	LastSyncAt  *string `json:"last_sync_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func toDeviceConnectionResponse(conn *repository.DeviceConnection) DeviceConnectionResponse {
	resp := DeviceConnectionResponse{
		ID:          conn.ID.String(),
		DeviceType:  conn.DeviceType,
		DeviceName:  conn.DeviceName,
		SyncEnabled: conn.SyncEnabled,
		SyncStatus:  string(conn.SyncStatus),
		SyncError:   conn.SyncError,
		CreatedAt:   conn.CreatedAt.Format(time.RFC3339),
	}
	if conn.LastSyncAt != nil {
		lastSync := conn.LastSyncAt.Format(time.RFC3339)
		resp.LastSyncAt = &lastSync
	}
	return resp
}

// ListDevices returns all device connections
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	conns, err := h.syncService.ListConnections(c.Request.Context())
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}

	responses := make([]DeviceConnectionResponse, 0, len(conns))
	for i := range conns {
		responses = append(responses, toDeviceConnectionResponse(&conns[i]))
	}
	api.SendSuccess(c, http.StatusOK, responses, nil)
}

// ConnectResponse carries the provider consent URL
type ConnectResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// Connect returns the provider authorization URL for a device type
func (h *DeviceHandler) Connect(c *gin.Context) {
	deviceType := c.Param("type")

	state, err := generateState()
	if err != nil {
		api.SendInternalError(c, err.Error())
		return
	}

	authURL, err := h.syncService.AuthorizationURL(c.Request.Context(), deviceType, state)
	if err != nil {
		if errors.Is(err, device.ErrUnsupportedProvider) {
			api.SendBadRequest(c, err.Error())
			return
		}
		api.SendError(c, http.StatusBadGateway, api.ErrCodeInternal, "Authorization unavailable", err.Error())
		return
	}

	h.storeState(state)

	api.SendSuccess(c, http.StatusOK, ConnectResponse{
		AuthorizationURL: authURL,
		State:            state,
	}, nil)
}

// Callback completes the OAuth flow and registers the connection. OAuth2
// providers send code and state; Garmin sends oauth_token and
// oauth_verifier and carries no state to validate.
func (h *DeviceHandler) Callback(c *gin.Context) {
	deviceType := c.Param("type")

	code := c.Query("code")
	verifier := c.Query("oauth_verifier")
	if code == "" {
		code = c.Query("oauth_token")
	}
	if code == "" {
		api.SendBadRequest(c, "missing authorization code")
		return
	}

	if state := c.Query("state"); state != "" && !h.validateState(state) {
		api.SendBadRequest(c, "invalid or expired state")
		return
	}

	conn, err := h.syncService.CompleteConnection(c.Request.Context(), deviceType, code, verifier)
	if err != nil {
		if errors.Is(err, device.ErrUnsupportedProvider) {
			api.SendBadRequest(c, err.Error())
			return
		}
		api.SendError(c, http.StatusBadGateway, api.ErrCodeInternal, "Token exchange failed", err.Error())
		return
	}

	api.SendSuccess(c, http.StatusCreated, toDeviceConnectionResponse(conn), nil)
}

// TriggerSyncRequest selects the lookback window for a manual sync
type TriggerSyncRequest struct {
	Days int `json:"days" binding:"omitempty,min=1,max=90"`
}

// TriggerSyncResponse reports the outcome of a manual sync
type TriggerSyncResponse struct {
	RecordsSynced int `json:"records_synced"`
}

// TriggerSync runs a sync for a connection
func (h *DeviceHandler) TriggerSync(c *gin.Context) {
	id, ok := parseConnectionID(c)
	if !ok {
		return
	}

	var req TriggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			api.SendValidationError(c, "invalid request body", err.Error())
			return
		}
	}

	count, err := h.syncService.RunSync(c.Request.Context(), id, req.Days)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			api.SendNotFound(c, "device connection")
		case errors.Is(err, service.ErrSyncDisabled):
			api.SendError(c, http.StatusConflict, api.ErrCodeBadRequest, "Sync is disabled for this connection", "")
		case errors.Is(err, device.ErrUnsupportedProvider):
			api.SendBadRequest(c, err.Error())
		default:
			api.SendError(c, http.StatusBadGateway, api.ErrCodeInternal, "Sync failed", err.Error())
		}
		return
	}

	api.SendSuccess(c, http.StatusOK, TriggerSyncResponse{RecordsSynced: count}, nil)
}

// SetSyncEnabledRequest toggles automatic syncing
type SetSyncEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetSyncEnabled enables or disables syncing for a connection
func (h *DeviceHandler) SetSyncEnabled(c *gin.Context) {
	id, ok := parseConnectionID(c)
	if !ok {
		return
	}

	var req SetSyncEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.SendValidationError(c, "invalid request body", err.Error())
		return
	}

	if err := h.syncService.SetSyncEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.SendNotFound(c, "device connection")
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}

	api.SendSuccess(c, http.StatusOK, gin.H{"enabled": *req.Enabled}, nil)
}

// Disconnect removes a device connection
func (h *DeviceHandler) Disconnect(c *gin.Context) {
	id, ok := parseConnectionID(c)
	if !ok {
		return
	}

	if err := h.syncService.Disconnect(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.SendNotFound(c, "device connection")
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}

	api.SendSuccess(c, http.StatusOK, gin.H{"deleted": true}, nil)
}

// SyncLogEntryResponse is one row of sync history
type SyncLogEntryResponse struct {
	ID              string  `json:"id"`
	SyncType        string  `json:"sync_type"`
	RecordsSynced   int32   `json:"records_synced"`
	SyncStartedAt   string  `json:"sync_started_at"`
	SyncCompletedAt *string `json:"sync_completed_at,omitempty"`
	Status          string  `json:"status"`
	ErrorMessage    *string `json:"error_message,omitempty"`
}

// SyncLogs returns the sync history for a connection
func (h *DeviceHandler) SyncLogs(c *gin.Context) {
	id, ok := parseConnectionID(c)
	if !ok {
		return
	}

	limit := parseQueryInt32(c, "limit", 20, 1, 100)
	offset := parseQueryInt32(c, "offset", 0, 0, 1<<30)

	entries, total, err := h.syncService.SyncLogs(c.Request.Context(), id, limit, offset)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.SendNotFound(c, "device connection")
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}

	responses := make([]SyncLogEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := SyncLogEntryResponse{
			ID:            e.ID.String(),
			SyncType:      e.SyncType,
			RecordsSynced: e.RecordsSynced,
			SyncStartedAt: e.SyncStartedAt.Format(time.RFC3339),
			Status:        string(e.Status),
			ErrorMessage:  e.ErrorMessage,
		}
		if e.SyncCompletedAt != nil {
			completed := e.SyncCompletedAt.Format(time.RFC3339)
			resp.SyncCompletedAt = &completed
		}
		responses = append(responses, resp)
	}

	meta := &api.Meta{Pagination: &api.PaginationMeta{Limit: limit, Offset: offset, Total: total}}
	api.SendSuccess(c, http.StatusOK, responses, meta)
}

func parseConnectionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		api.SendBadRequest(c, "invalid connection id")
		return uuid.Nil, false
	}
	return id, true
}

func parseQueryInt32(c *gin.Context, name string, def, min, max int32) int32 {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return def
	}
	n := int32(v)
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
