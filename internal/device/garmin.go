package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"healthtrack/backend/internal/config"
	"healthtrack/backend/internal/repository"

	"github.com/google/uuid"
)

const (
	garminAPIBaseURL      = "https://connectapi.garmin.com"
	garminAuthURL         = "https://connect.garmin.com/oauth/authorize"
	garminRequestTokenURL = "https://connect.garmin.com/oauth/request_token"
	garminAccessTokenURL  = "https://connect.garmin.com/oauth/access_token"
	garminSyncTypeName    = "garmin_connect"
)

// GarminAdapter integrates Garmin Connect wellness data. Garmin uses
// OAuth 1.0a: building the authorization URL requires a request-token round
// trip, and the exchange takes a (request token, verifier) pair with HTTP
// Basic consumer credentials.
type GarminAdapter struct {
	baseAdapter
	creds           config.ProviderCredentials
	apiBaseURL      string
	authURL         string
	requestTokenURL string
	accessTokenURL  string
}

// NewGarminAdapter creates the Garmin Connect adapter
func NewGarminAdapter(creds config.ProviderCredentials, stores Stores, client *http.Client) *GarminAdapter {
	return &GarminAdapter{
		baseAdapter:     newBaseAdapter(stores, client),
		creds:           creds,
		apiBaseURL:      garminAPIBaseURL,
		authURL:         garminAuthURL,
		requestTokenURL: garminRequestTokenURL,
		accessTokenURL:  garminAccessTokenURL,
	}
}

func (a *GarminAdapter) Type() Type { return TypeGarmin }

func (a *GarminAdapter) DisplayName() string { return "Garmin Connect" }

func (a *GarminAdapter) SyncType() string { return garminSyncTypeName }

// postForm posts form values with HTTP Basic auth and parses the
// form-encoded OAuth 1.0a response body.
func (a *GarminAdapter) postForm(ctx context.Context, endpoint, user, secret string, form url.Values) (url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(user, secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	return values, nil
}

// AuthorizationURL obtains an OAuth 1.0a request token and builds the
// redirect URL from it. A failed request-token round trip surfaces as an
// error the caller should treat as retryable.
func (a *GarminAdapter) AuthorizationURL(ctx context.Context, _ string) (string, error) {
	if a.creds.ClientID == "" {
		return "", fmt.Errorf("garmin consumer credentials are not configured")
	}

	form := url.Values{"oauth_callback": {a.creds.RedirectURL}}
	values, err := a.postForm(ctx, a.requestTokenURL, a.creds.ClientID, a.creds.ClientSecret, form)
	if err != nil {
		return "", fmt.Errorf("garmin request token failed: %w", err)
	}

	token := values.Get("oauth_token")
	if token == "" {
		return "", fmt.Errorf("garmin request token response missing oauth_token")
	}
	return fmt.Sprintf("%s?oauth_token=%s", a.authURL, url.QueryEscape(token)), nil
}

// ExchangeCode exchanges the request token and verifier for an access token
// pair. The code argument carries the oauth_token from the callback.
func (a *GarminAdapter) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResult, error) {
	form := url.Values{
		"oauth_token":    {code},
		"oauth_verifier": {verifier},
	}
	values, err := a.postForm(ctx, a.accessTokenURL, a.creds.ClientID, a.creds.ClientSecret, form)
	if err != nil {
		return nil, fmt.Errorf("garmin token exchange failed: %w", err)
	}

	accessToken := values.Get("oauth_token")
	tokenSecret := values.Get("oauth_token_secret")
	if accessToken == "" || tokenSecret == "" {
		return nil, fmt.Errorf("garmin token response missing credentials")
	}
	return &TokenResult{
		AccessToken: accessToken,
		TokenSecret: tokenSecret,
	}, nil
}

type garminDailySummary struct {
	CalendarDate      string  `json:"calendarDate"`
	Steps             int64   `json:"steps"`
	DistanceInMeters  float64 `json:"distanceInMeters"`
	TotalKilocalories float64 `json:"totalKilocalories"`
}

type garminDailyHeartRate struct {
	CalendarDate     string `json:"calendarDate"`
	RestingHeartRate int64  `json:"restingHeartRate"`
	MaxHeartRate     int64  `json:"maxHeartRate"`
}

type garminDailySleep struct {
	CalendarDate     string `json:"calendarDate"`
	SleepTimeSeconds int64  `json:"sleepTimeSeconds"`
}

// FetchHealthData fetches daily wellness summaries for the window. Requests
// authenticate with the access token pair via HTTP Basic.
func (a *GarminAdapter) FetchHealthData(ctx context.Context, creds Credentials, start, end time.Time) (*FetchResult, error) {
	endpoints := map[Metric]string{
		MetricActivity:  a.apiBaseURL + "/wellness-service/wellness/dailySummary",
		MetricHeartRate: a.apiBaseURL + "/wellness-service/wellness/dailyHeartRate",
		MetricSleep:     a.apiBaseURL + "/wellness-service/wellness/dailySleep",
	}

	result := newFetchResult()
	for metric, endpoint := range endpoints {
		reqURL := fmt.Sprintf("%s?startDate=%s&endDate=%s",
			endpoint, start.Format("2006-01-02"), end.Format("2006-01-02"))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			result.Failures[metric] = fmt.Errorf("build request: %w", err)
			continue
		}
		req.SetBasicAuth(creds.AccessToken, creds.TokenSecret)

		var payload json.RawMessage
		if err := a.doJSON(req, &payload); err != nil {
			result.Failures[metric] = err
			continue
		}
		result.Metrics[metric] = payload
	}
	return result, nil
}

// Sync fetches the trailing window and upserts each day's summaries. Days
// with zero steps or zero sleep are skipped.
func (a *GarminAdapter) Sync(ctx context.Context, connectionID uuid.UUID, creds Credentials, days int) (int, error) {
	start, end := a.syncWindow(days)

	fetched, err := a.FetchHealthData(ctx, creds, start, end)
	if err != nil {
		return 0, err
	}

	writer := &syncWriter{records: a.stores.Records}

	if raw, ok := fetched.Metrics[MetricActivity]; ok {
		var summaries []garminDailySummary
		if err := json.Unmarshal(raw, &summaries); err != nil {
			return 0, fmt.Errorf("decode garmin daily summary: %w", err)
		}
		for _, s := range summaries {
			day, ok := parseISODate(s.CalendarDate)
			if !ok || s.Steps <= 0 {
				continue
			}
			patch := repository.HealthRecordPatch{
				ExerciseMinutes: int32Ptr(stepsToExerciseMinutes(s.Steps)),
				Notes: stringPtr(fmt.Sprintf("Garmin: %d steps, %.0fm, %.0f kcal",
					s.Steps, s.DistanceInMeters, s.TotalKilocalories)),
			}
			if err := writer.write(ctx, day, patch); err != nil {
				return writer.count, err
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricHeartRate]; ok {
		var rates []garminDailyHeartRate
		if err := json.Unmarshal(raw, &rates); err != nil {
			return writer.count, fmt.Errorf("decode garmin heart rate: %w", err)
		}
		for _, r := range rates {
			day, ok := parseISODate(r.CalendarDate)
			if !ok || r.RestingHeartRate <= 0 {
				continue
			}
			patch := repository.HealthRecordPatch{
				Notes: stringPtr(fmt.Sprintf("Garmin: HR avg %d, max %d bpm",
					r.RestingHeartRate, r.MaxHeartRate)),
			}
			if err := writer.write(ctx, day, patch); err != nil {
				return writer.count, err
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricSleep]; ok {
		var sleeps []garminDailySleep
		if err := json.Unmarshal(raw, &sleeps); err != nil {
			return writer.count, fmt.Errorf("decode garmin sleep: %w", err)
		}
		for _, s := range sleeps {
			day, ok := parseISODate(s.CalendarDate)
			if !ok || s.SleepTimeSeconds <= 0 {
				continue
			}
			patch := repository.HealthRecordPatch{
				SleepHours: floatPtr(float64(s.SleepTimeSeconds) / 3600),
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
