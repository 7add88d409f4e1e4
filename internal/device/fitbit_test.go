package device

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"healthtrack/backend/internal/config"
	"healthtrack/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fitbitFake scripts the per-day vendor responses
type fitbitFake struct {
	stepsByDate  map[string]int64
	weightByDate map[string]float64
	sleepMinutes map[string]int64
	failSleep    bool
	requests     int
}

func (f *fitbitFake) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests++
		path := r.URL.Path

		switch {
		case strings.Contains(path, "/activities/heart/"):
			fmt.Fprint(w, `{"activities-heart":[{"value":{"restingHeartRate":0}}]}`)
		case strings.Contains(path, "/activities/date/"):
			date := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ".json")
			fmt.Fprintf(w, `{"summary":{"steps":%d,"distances":[{"distance":3.50}],"caloriesOut":2100}}`,
				f.stepsByDate[date])
		case strings.Contains(path, "/sleep/date/"):
			if f.failSleep {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			date := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ".json")
			fmt.Fprintf(w, `{"summary":{"totalMinutesAsleep":%d}}`, f.sleepMinutes[date])
		case strings.Contains(path, "/body/log/weight/"):
			date := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ".json")
			if weight, ok := f.weightByDate[date]; ok {
				fmt.Fprintf(w, `{"weight":[{"weight":%.1f}]}`, weight)
			} else {
				fmt.Fprint(w, `{"weight":[]}`)
			}
		default:
			http.NotFound(w, r)
		}
	}
}

func newFitbitTestAdapter(t *testing.T, fake *fitbitFake) (*FitbitAdapter, Stores, *fakeRecordStore, *fakeConnectionStore, *fakeSyncLogStore) {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	stores, records, connections, syncLog := newTestStores()
	adapter := NewFitbitAdapter(config.TestConfig().Providers.Fitbit, stores, server.Client())
	adapter.apiBaseURL = server.URL
	adapter.now = fixedNow(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	return adapter, stores, records, connections, syncLog
}

func TestFitbitSyncStepsHeuristic(t *testing.T) {
	fake := &fitbitFake{
		stepsByDate: map[string]int64{"2026-03-07": 5000},
	}
	adapter, _, records, connections, syncLog := newFitbitTestAdapter(t, fake)

	count, err := adapter.Sync(context.Background(), uuid.New(), Credentials{AccessToken: "token"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, ok := records.get("2026-03-07")
	require.True(t, ok)
	require.NotNil(t, rec.ExerciseMinutes)
	assert.Equal(t, int32(250), *rec.ExerciseMinutes)
	require.NotNil(t, rec.Notes)
	assert.Contains(t, *rec.Notes, "5000 steps")

	// Days 2-3 reported zero steps and must produce no record.
	_, ok = records.get("2026-03-08")
	assert.False(t, ok)
	_, ok = records.get("2026-03-09")
	assert.False(t, ok)

	require.Len(t, connections.completed, 1)
	require.Len(t, syncLog.entries, 1)
	entry := syncLog.entries[0]
	assert.Equal(t, "fitbit", entry.SyncType)
	assert.Equal(t, int32(1), entry.RecordsSynced)
	assert.Equal(t, repository.SyncLogStatusCompleted, entry.Status)
	assert.Equal(t, time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC), entry.SyncStartedAt)
}

func TestFitbitSyncPartialFailure(t *testing.T) {
	fake := &fitbitFake{
		stepsByDate:  map[string]int64{"2026-03-07": 5000},
		weightByDate: map[string]float64{"2026-03-08": 70.5},
		failSleep:    true,
	}
	adapter, _, records, _, syncLog := newFitbitTestAdapter(t, fake)

	count, err := adapter.Sync(context.Background(), uuid.New(), Credentials{AccessToken: "token"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec, ok := records.get("2026-03-07")
	require.True(t, ok)
	assert.NotNil(t, rec.ExerciseMinutes)

	rec, ok = records.get("2026-03-08")
	require.True(t, ok)
	require.NotNil(t, rec.Weight)
	assert.Equal(t, 70.5, *rec.Weight)
	assert.Nil(t, rec.SleepHours)

	require.Len(t, syncLog.entries, 1)
	assert.Equal(t, repository.SyncLogStatusCompleted, syncLog.entries[0].Status)
}

func TestFitbitSyncZeroAsMissing(t *testing.T) {
	adapter, _, records, _, syncLog := newFitbitTestAdapter(t, &fitbitFake{})

	count, err := adapter.Sync(context.Background(), uuid.New(), Credentials{AccessToken: "token"}, 3)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, records.upserts)

	// A sync with nothing to write is still a successful sync.
	require.Len(t, syncLog.entries, 1)
	assert.Equal(t, int32(0), syncLog.entries[0].RecordsSynced)
	assert.Equal(t, repository.SyncLogStatusCompleted, syncLog.entries[0].Status)
}

func TestFitbitSyncIdempotent(t *testing.T) {
	fake := &fitbitFake{
		stepsByDate:  map[string]int64{"2026-03-07": 5000},
		sleepMinutes: map[string]int64{"2026-03-07": 450},
	}
	adapter, _, records, _, _ := newFitbitTestAdapter(t, fake)

	ctx := context.Background()
	connID := uuid.New()
	creds := Credentials{AccessToken: "token"}

	_, err := adapter.Sync(ctx, connID, creds, 3)
	require.NoError(t, err)
	first := records.snapshot()

	_, err = adapter.Sync(ctx, connID, creds, 3)
	require.NoError(t, err)
	second := records.snapshot()

	assert.Equal(t, first, second)

	rec := second["2026-03-07"]
	require.NotNil(t, rec.SleepHours)
	assert.InDelta(t, 7.5, *rec.SleepHours, 0.001)
	require.NotNil(t, rec.ExerciseMinutes)
	assert.Equal(t, int32(250), *rec.ExerciseMinutes)
}

func TestFitbitSyncPerDayFetches(t *testing.T) {
	fake := &fitbitFake{}
	adapter, _, _, _, _ := newFitbitTestAdapter(t, fake)

	_, err := adapter.Sync(context.Background(), uuid.New(), Credentials{AccessToken: "token"}, 3)
	require.NoError(t, err)

	// Four metric endpoints per day for three days.
	assert.Equal(t, 12, fake.requests)
}

func TestFitbitAuthorizationURL(t *testing.T) {
	stores, _, _, _ := newTestStores()
	adapter := NewFitbitAdapter(config.TestConfig().Providers.Fitbit, stores, nil)

	url, err := adapter.AuthorizationURL(context.Background(), "csrf-state")
	require.NoError(t, err)
	assert.Contains(t, url, "response_type=code")
	assert.Contains(t, url, "state=csrf-state")
	assert.Contains(t, url, config.TestConfig().Providers.Fitbit.ClientID)
}

func TestFitbitAuthorizationURLMissingCredentials(t *testing.T) {
	stores, _, _, _ := newTestStores()
	adapter := NewFitbitAdapter(config.ProviderCredentials{}, stores, nil)

	_, err := adapter.AuthorizationURL(context.Background(), "state")
	assert.Error(t, err)
}

func TestFitbitExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fit-token","refresh_token":"fit-refresh","token_type":"Bearer","expires_in":28800,"user_id":"ABC123"}`)
	}))
	defer server.Close()

	stores, _, _, _ := newTestStores()
	adapter := NewFitbitAdapter(config.TestConfig().Providers.Fitbit, stores, server.Client())
	adapter.tokenURL = server.URL

	result, err := adapter.ExchangeCode(context.Background(), "auth-code", "")
	require.NoError(t, err)
	assert.Equal(t, "fit-token", result.AccessToken)
	assert.Equal(t, "fit-refresh", result.RefreshToken)
	assert.Equal(t, "ABC123", result.UserID)
	require.NotNil(t, result.ExpiresAt)
}
