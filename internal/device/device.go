// Package device implements the wearable provider adapters: OAuth
// authorization, token exchange, per-metric data fetch, and synchronization
// into the day-keyed health record store.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"healthtrack/backend/internal/repository"

	"github.com/google/uuid"
)

// Type identifies a supported wearable provider
type Type string

const (
	TypeAppleWatch Type = "apple_watch"
	TypeGarmin     Type = "garmin"
	TypeFitbit     Type = "fitbit"
	TypeWithings   Type = "withings"
)

// Metric is one category of health data an adapter can fetch
type Metric string

const (
	MetricActivity      Metric = "activity"
	MetricHeartRate     Metric = "heart_rate"
	MetricSleep         Metric = "sleep"
	MetricWeight        Metric = "weight"
	MetricBloodPressure Metric = "blood_pressure"
)

// Credentials are the decrypted tokens an adapter authenticates with.
// OAuth2 providers use AccessToken and RefreshToken; Garmin's OAuth 1.0a
// flow uses AccessToken plus TokenSecret. UserID carries the provider-side
// account id where the vendor API requires it (Withings).
type Credentials struct {
	AccessToken  string
	RefreshToken string
	TokenSecret  string
	UserID       string
	ExpiresAt    *time.Time
}

// TokenResult is the outcome of a successful code/token exchange
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	TokenSecret  string
	UserID       string
	ExpiresAt    *time.Time
}

// FetchResult holds one sync window's vendor data keyed by metric. A metric
// whose fetch failed appears in Failures instead of Metrics; translation
// reads only Metrics, so a broken vendor endpoint never blocks the others.
type FetchResult struct {
	Metrics  map[Metric]json.RawMessage
	Failures map[Metric]error
}

func newFetchResult() *FetchResult {
	return &FetchResult{
		Metrics:  make(map[Metric]json.RawMessage),
		Failures: make(map[Metric]error),
	}
}

// RecordStore is the slice of the health record repository adapters write to
type RecordStore interface {
	UpsertDay(ctx context.Context, date time.Time, patch repository.HealthRecordPatch) error
}

// ConnectionStore is the slice of the device repository adapters update
type ConnectionStore interface {
	MarkSyncCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error
}

// SyncLogStore appends to the per-connection sync history
type SyncLogStore interface {
	Append(ctx context.Context, req repository.AppendSyncLogRequest) error
}

// Stores bundles the persistence collaborators an adapter needs
type Stores struct {
	Records     RecordStore
	Connections ConnectionStore
	SyncLog     SyncLogStore
}

// Adapter is the provider contract: authorize, exchange, fetch, sync.
// For OAuth2 providers the verifier argument to ExchangeCode is ignored;
// for Garmin the code is the request token and the verifier is required.
type Adapter interface {
	Type() Type
	DisplayName() string
	SyncType() string
	AuthorizationURL(ctx context.Context, state string) (string, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*TokenResult, error)
	FetchHealthData(ctx context.Context, creds Credentials, start, end time.Time) (*FetchResult, error)
	Sync(ctx context.Context, connectionID uuid.UUID, creds Credentials, days int) (int, error)
}

// baseAdapter carries the collaborators shared by every provider
type baseAdapter struct {
	stores Stores
	client *http.Client
	now    func() time.Time
}

func newBaseAdapter(stores Stores, client *http.Client) baseAdapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return baseAdapter{
		stores: stores,
		client: client,
		now:    time.Now,
	}
}

// syncWindow returns the trailing window of `days` calendar days ending now
func (b *baseAdapter) syncWindow(days int) (start, end time.Time) {
	end = b.now()
	start = end.AddDate(0, 0, -days)
	return start, end
}

// syncWriter counts upsert calls; records_synced is the number of upserts
// performed, not the number of logical metric values written.
type syncWriter struct {
	records RecordStore
	count   int
}

func (w *syncWriter) write(ctx context.Context, day time.Time, patch repository.HealthRecordPatch) error {
	if err := w.records.UpsertDay(ctx, day, patch); err != nil {
		return err
	}
	w.count++
	return nil
}

// finishSync records a successful sync: connection marked completed and one
// success row appended to the sync log. The log's started-at is the start of
// the requested window.
func (b *baseAdapter) finishSync(ctx context.Context, connectionID uuid.UUID, syncType string, windowStart time.Time, recordsSynced int) error {
	completedAt := b.now()
	if err := b.stores.Connections.MarkSyncCompleted(ctx, connectionID, completedAt); err != nil {
		return fmt.Errorf("update connection after sync: %w", err)
	}
	err := b.stores.SyncLog.Append(ctx, repository.AppendSyncLogRequest{
		DeviceConnectionID: connectionID,
		SyncType:           syncType,
		RecordsSynced:      int32(recordsSynced),
		SyncStartedAt:      windowStart,
		SyncCompletedAt:    &completedAt,
		Status:             repository.SyncLogStatusCompleted,
	})
	if err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	return nil
}

// getJSON issues a GET and decodes a 2xx JSON body into v
func (b *baseAdapter) getJSON(ctx context.Context, url string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	return b.doJSON(req, v)
}

func (b *baseAdapter) doJSON(req *http.Request, v any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// dayKey normalizes a timestamp to its calendar date in UTC
func dayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func floatPtr(f float64) *float64 { return &f }
func int32Ptr(i int32) *int32     { return &i }
func stringPtr(s string) *string  { return &s }

// stepsToExerciseMinutes derives exercise minutes from a raw step count.
// The divisor is a rough pace heuristic carried over from the first version
// of the tracker.
func stepsToExerciseMinutes(steps int64) int32 {
	return int32(steps / 20)
}
