package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"healthtrack/backend/internal/config"
	"healthtrack/backend/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	appleAPIBaseURL   = "https://api.apple.com/health"
	appleAuthURL      = "https://appleid.apple.com/auth/authorize"
	appleTokenURL     = "https://appleid.apple.com/auth/token"
	appleOAuthScope   = "health.read"
	appleSyncTypeName = "apple_healthkit"
)

// AppleAdapter integrates Apple HealthKit data exported through the
// companion app's OAuth bridge.
type AppleAdapter struct {
	baseAdapter
	creds      config.ProviderCredentials
	apiBaseURL string
	authURL    string
	tokenURL   string
}

// NewAppleAdapter creates the Apple HealthKit adapter
func NewAppleAdapter(creds config.ProviderCredentials, stores Stores, client *http.Client) *AppleAdapter {
	return &AppleAdapter{
		baseAdapter: newBaseAdapter(stores, client),
		creds:       creds,
		apiBaseURL:  appleAPIBaseURL,
		authURL:     appleAuthURL,
		tokenURL:    appleTokenURL,
	}
}

func (a *AppleAdapter) Type() Type { return TypeAppleWatch }

func (a *AppleAdapter) DisplayName() string { return "Apple Watch" }

func (a *AppleAdapter) SyncType() string { return appleSyncTypeName }

func (a *AppleAdapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.creds.ClientID,
		ClientSecret: a.creds.ClientSecret,
		RedirectURL:  a.creds.RedirectURL,
		Scopes:       []string{appleOAuthScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.authURL,
			TokenURL: a.tokenURL,
		},
	}
}

// AuthorizationURL builds the Sign in with Apple redirect URL
func (a *AppleAdapter) AuthorizationURL(_ context.Context, state string) (string, error) {
	if a.creds.ClientID == "" {
		return "", fmt.Errorf("apple client credentials are not configured")
	}
	return a.oauthConfig().AuthCodeURL(state), nil
}

// ExchangeCode exchanges the authorization code for tokens
func (a *AppleAdapter) ExchangeCode(ctx context.Context, code, _ string) (*TokenResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	token, err := a.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("apple token exchange failed: %w", err)
	}

	result := &TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		result.ExpiresAt = &expiry
	}
	return result, nil
}

type appleDataPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
	Hours float64 `json:"hours"`
}

type appleMetricResponse struct {
	Data []appleDataPoint `json:"data"`
}

// FetchHealthData fetches steps, heart rate, and sleep for the window. Each
// metric is fetched independently; a failed fetch lands in Failures.
func (a *AppleAdapter) FetchHealthData(ctx context.Context, creds Credentials, start, end time.Time) (*FetchResult, error) {
	endpoints := map[Metric]string{
		MetricActivity:  a.apiBaseURL + "/v1/steps",
		MetricHeartRate: a.apiBaseURL + "/v1/heartrate",
		MetricSleep:     a.apiBaseURL + "/v1/sleep",
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+creds.AccessToken)
	header.Set("Content-Type", "application/json")

	result := newFetchResult()
	for metric, endpoint := range endpoints {
		url := fmt.Sprintf("%s?start_date=%s&end_date=%s",
			endpoint, start.Format("2006-01-02"), end.Format("2006-01-02"))

		var payload json.RawMessage
		if err := a.getJSON(ctx, url, header, &payload); err != nil {
			result.Failures[metric] = err
			continue
		}
		result.Metrics[metric] = payload
	}
	return result, nil
}

// Sync fetches the trailing window and upserts each day's data. Zero values
// are treated as missing and skipped.
func (a *AppleAdapter) Sync(ctx context.Context, connectionID uuid.UUID, creds Credentials, days int) (int, error) {
	start, end := a.syncWindow(days)

	fetched, err := a.FetchHealthData(ctx, creds, start, end)
	if err != nil {
		return 0, err
	}

	writer := &syncWriter{records: a.stores.Records}

	if raw, ok := fetched.Metrics[MetricActivity]; ok {
		var resp appleMetricResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return 0, fmt.Errorf("decode apple steps: %w", err)
		}
		for _, point := range resp.Data {
			day, ok := parseISODate(point.Date)
			if !ok {
				continue
			}
			steps := int64(point.Value)
			if steps <= 0 {
				continue
			}
			patch := repository.HealthRecordPatch{
				ExerciseMinutes: int32Ptr(stepsToExerciseMinutes(steps)),
				Notes:           stringPtr(fmt.Sprintf("Apple Watch: %d steps", steps)),
			}
			if err := writer.write(ctx, day, patch); err != nil {
				return writer.count, err
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricHeartRate]; ok {
		var resp appleMetricResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return writer.count, fmt.Errorf("decode apple heart rate: %w", err)
		}
		for _, point := range resp.Data {
			day, ok := parseISODate(point.Date)
			if !ok {
				continue
			}
			hr := int64(point.Value)
			if hr <= 0 {
				continue
			}
			patch := repository.HealthRecordPatch{
				Notes: stringPtr(fmt.Sprintf("Apple Watch: Heart Rate %d bpm", hr)),
			}
			if err := writer.write(ctx, day, patch); err != nil {
				return writer.count, err
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricSleep]; ok {
		var resp appleMetricResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return writer.count, fmt.Errorf("decode apple sleep: %w", err)
		}
		for _, point := range resp.Data {
			day, ok := parseISODate(point.Date)
			if !ok {
				continue
			}
			if point.Hours <= 0 {
				continue
			}
			patch := repository.HealthRecordPatch{
				SleepHours: floatPtr(point.Hours),
			}
			if err := writer.write(ctx, day, patch); err != nil {
				return writer.count, err
			}
		}
	}

	if err := a.finishSync(ctx, connectionID, a.SyncType(), start, writer.count); err != nil {
		return writer.count, err
	}
	return writer.count, nil
}

func parseISODate(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return dayKey(t), true
}
