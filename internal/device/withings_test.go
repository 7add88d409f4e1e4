package device

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"healthtrack/backend/internal/config"
	"healthtrack/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withingsFake scripts the measure/activity/sleep envelope responses
type withingsFake struct {
	measureWeight  string
	measureBP      string
	activityBody   string
	sleepBody      string
	failActivities bool
}

func (f *withingsFake) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond := func(body string) {
			if body == "" {
				body = `{}`
			}
			fmt.Fprintf(w, `{"status":0,"body":%s}`, body)
		}

		switch {
		case r.URL.Path == "/measure":
			if r.FormValue("category") == "1" {
				respond(f.measureWeight)
			} else {
				respond(f.measureBP)
			}
		case r.URL.Path == "/v2/measure":
			if f.failActivities {
				fmt.Fprint(w, `{"status":401,"error":"invalid token"}`)
				return
			}
			respond(f.activityBody)
		case r.URL.Path == "/v2/sleep":
			respond(f.sleepBody)
		default:
			http.NotFound(w, r)
		}
	}
}

func newWithingsTestAdapter(t *testing.T, fake *withingsFake) (*WithingsAdapter, *fakeRecordStore, *fakeSyncLogStore) {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	stores, records, _, syncLog := newTestStores()
	adapter := NewWithingsAdapter(config.TestConfig().Providers.Withings, stores, server.Client())
	adapter.apiBaseURL = server.URL
	adapter.now = fixedNow(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	return adapter, records, syncLog
}

func TestWithingsSyncWeightUnitScaling(t *testing.T) {
	// Measured mid-morning; the record must land on the 03-08 day key.
	measureDate := time.Date(2026, 3, 8, 9, 30, 0, 0, time.UTC).Unix()
	fake := &withingsFake{
		measureWeight: fmt.Sprintf(
			`{"measuregrps":[{"date":%d,"measures":[{"type":1,"value":700,"unit":-1}]}]}`, measureDate),
	}
	adapter, records, _ := newWithingsTestAdapter(t, fake)

	count, err := adapter.Sync(context.Background(), uuid.New(), Credentials{AccessToken: "token", UserID: "42"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, ok := records.get("2026-03-08")
	require.True(t, ok)
	require.NotNil(t, rec.Weight)
	assert.InDelta(t, 70.0, *rec.Weight, 0.0001)
}

func TestWithingsSyncBloodPressurePairing(t *testing.T) {
	measureDate := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC).Unix()
	fake := &withingsFake{
		measureBP: fmt.Sprintf(
			`{"measuregrps":[{"date":%d,"measures":[{"type":9,"value":120,"unit":0},{"type":10,"value":80,"unit":0}]}]}`,
			measureDate),
	}
	adapter, records, _ := newWithingsTestAdapter(t, fake)

	count, err := adapter.Sync(context.Background(), uuid.New(), Credentials{AccessToken: "token", UserID: "42"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, ok := records.get("2026-03-09")
	require.True(t, ok)
	require.NotNil(t, rec.BloodPressure)
	assert.Equal(t, "120/80", *rec.BloodPressure)
}

func TestWithingsSyncIncompleteBloodPressureSkipped(t *testing.T) {
	measureDate := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC).Unix()
	fake := &withingsFake{
		// Systolic only; no diastolic reading in the group.
		measureBP: fmt.Sprintf(
			`{"measuregrps":[{"date":%d,"measures":[{"type":9,"value":120,"unit":0}]}]}`, measureDate),
	}
	adapter, records, _ := newWithingsTestAdapter(t, fake)

	count, err := adapter.Sync(context.Background(), uuid.New(), Credentials{AccessToken: "token", UserID: "42"}, 7)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, records.upserts)
}

func TestWithingsSyncActivityAndSleep(t *testing.T) {
	fake := &withingsFake{
		activityBody: `{"activities":[{"date":"20260307","steps":8000,"distance":5600,"calories":320}]}`,
		sleepBody:    `{"series":[{"date":"20260307","total_sleep_time":27000}]}`,
	}
	adapter, records, syncLog := newWithingsTestAdapter(t, fake)

	count, err := adapter.Sync(context.Background(), uuid.New(), Credentials{AccessToken: "token", UserID: "42"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec, ok := records.get("2026-03-07")
	require.True(t, ok)
	require.NotNil(t, rec.ExerciseMinutes)
	assert.Equal(t, int32(400), *rec.ExerciseMinutes)
	require.NotNil(t, rec.Notes)
	assert.Contains(t, *rec.Notes, "8000 steps")
	require.NotNil(t, rec.SleepHours)
	assert.InDelta(t, 7.5, *rec.SleepHours, 0.001)

	require.Len(t, syncLog.entries, 1)
	assert.Equal(t, "withings", syncLog.entries[0].SyncType)
	assert.Equal(t, repository.SyncLogStatusCompleted, syncLog.entries[0].Status)
}

func TestWithingsSyncPartialFailure(t *testing.T) {
	fake := &withingsFake{
		sleepBody:      `{"series":[{"date":"20260307","total_sleep_time":27000}]}`,
		failActivities: true,
	}
	adapter, records, _ := newWithingsTestAdapter(t, fake)

	// The activity endpoint rejecting the token must not block sleep data.
	count, err := adapter.Sync(context.Background(), uuid.New(), Credentials{AccessToken: "token", UserID: "42"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, ok := records.get("2026-03-07")
	require.True(t, ok)
	assert.NotNil(t, rec.SleepHours)
	assert.Nil(t, rec.ExerciseMinutes)
}

func TestWithingsExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "requesttoken", r.FormValue("action"))
		require.Equal(t, "authorization_code", r.FormValue("grant_type"))
		fmt.Fprint(w, `{"status":0,"body":{"access_token":"wth-token","refresh_token":"wth-refresh","expires_in":10800,"userid":12345}}`)
	}))
	defer server.Close()

	stores, _, _, _ := newTestStores()
	adapter := NewWithingsAdapter(config.TestConfig().Providers.Withings, stores, server.Client())
	adapter.tokenURL = server.URL
	adapter.now = fixedNow(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	result, err := adapter.ExchangeCode(context.Background(), "auth-code", "")
	require.NoError(t, err)
	assert.Equal(t, "wth-token", result.AccessToken)
	assert.Equal(t, "wth-refresh", result.RefreshToken)
	assert.Equal(t, "12345", result.UserID)
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), *result.ExpiresAt)
}

func TestWithingsExchangeCodeEnvelopeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":503,"error":"invalid code"}`)
	}))
	defer server.Close()

	stores, _, _, _ := newTestStores()
	adapter := NewWithingsAdapter(config.TestConfig().Providers.Withings, stores, server.Client())
	adapter.tokenURL = server.URL

	_, err := adapter.ExchangeCode(context.Background(), "bad-code", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid code")
}

func TestWithingsAuthorizationURL(t *testing.T) {
	stores, _, _, _ := newTestStores()
	adapter := NewWithingsAdapter(config.TestConfig().Providers.Withings, stores, nil)

	url, err := adapter.AuthorizationURL(context.Background(), "csrf-state")
	require.NoError(t, err)
	assert.Contains(t, url, "response_type=code")
	assert.Contains(t, url, "state=csrf-state")
	assert.Contains(t, url, "withings-test")
}
