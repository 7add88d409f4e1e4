package device

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"healthtrack/backend/internal/config"
	"healthtrack/backend/internal/repository"

	"github.com/google/uuid"
)

const (
	withingsAPIBaseURL   = "https://wbsapi.withings.net"
	withingsAuthURL      = "https://account.withings.com/oauth2_user/authorize2"
	withingsTokenURL     = "https://wbsapi.withings.net/v2/oauth2"
	withingsOAuthScope   = "user.metrics user.activity user.sleepevents"
	withingsSyncTypeName = "withings"

	// Measure type codes from the Withings measure API.
	withingsMeasureWeight    = 1
	withingsMeasureSystolic  = 9
	withingsMeasureDiastolic = 10

	// Measure category codes.
	withingsCategoryWeight        = 1
	withingsCategoryBloodPressure = 2
)

// WithingsAdapter integrates Withings scale and blood pressure monitor
// data. Withings wraps every API response, including token exchange, in a
// {status, body} envelope with status 0 on success, so the standard OAuth2
// client cannot drive its token endpoint.
type WithingsAdapter struct {
	baseAdapter
	creds      config.ProviderCredentials
	apiBaseURL string
	authURL    string
	tokenURL   string
}

// NewWithingsAdapter creates the Withings adapter
func NewWithingsAdapter(creds config.ProviderCredentials, stores Stores, client *http.Client) *WithingsAdapter {
	return &WithingsAdapter{
		baseAdapter: newBaseAdapter(stores, client),
		creds:       creds,
		apiBaseURL:  withingsAPIBaseURL,
		authURL:     withingsAuthURL,
		tokenURL:    withingsTokenURL,
	}
}

func (a *WithingsAdapter) Type() Type { return TypeWithings }

func (a *WithingsAdapter) DisplayName() string { return "Withings" }

func (a *WithingsAdapter) SyncType() string { return withingsSyncTypeName }

// AuthorizationURL builds the Withings consent page URL
func (a *WithingsAdapter) AuthorizationURL(_ context.Context, state string) (string, error) {
	if a.creds.ClientID == "" {
		return "", fmt.Errorf("withings client credentials are not configured")
	}

	params := url.Values{
		"client_id":     {a.creds.ClientID},
		"redirect_uri":  {a.creds.RedirectURL},
		"response_type": {"code"},
		"scope":         {withingsOAuthScope},
		"state":         {state},
	}
	return a.authURL + "?" + params.Encode(), nil
}

type withingsEnvelope struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
	Error  string          `json:"error"`
}

type withingsTokenBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	UserID       any    `json:"userid"`
}

// ExchangeCode exchanges the authorization code through Withings'
// action=requesttoken form endpoint and unwraps the response envelope.
func (a *WithingsAdapter) ExchangeCode(ctx context.Context, code, _ string) (*TokenResult, error) {
	form := url.Values{
		"action":        {"requesttoken"},
		"grant_type":    {"authorization_code"},
		"client_id":     {a.creds.ClientID},
		"client_secret": {a.creds.ClientSecret},
		"code":          {code},
		"redirect_uri":  {a.creds.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var envelope withingsEnvelope
	if err := a.doJSON(req, &envelope); err != nil {
		return nil, fmt.Errorf("withings token exchange failed: %w", err)
	}
	if envelope.Status != 0 {
		return nil, fmt.Errorf("withings token exchange failed: status %d: %s", envelope.Status, envelope.Error)
	}

	var body withingsTokenBody
	if err := json.Unmarshal(envelope.Body, &body); err != nil {
		return nil, fmt.Errorf("decode withings token body: %w", err)
	}

	result := &TokenResult{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		UserID:       withingsUserID(body.UserID),
	}
	if body.ExpiresIn > 0 {
		expiry := a.now().Add(time.Duration(body.ExpiresIn) * time.Second)
		result.ExpiresAt = &expiry
	}
	return result, nil
}

// withingsUserID normalizes the userid field, which Withings returns as a
// number in some responses and a string in others.
func withingsUserID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}

// fetchEnvelope posts a form request and unwraps the {status, body} envelope
func (a *WithingsAdapter) fetchEnvelope(ctx context.Context, endpoint, accessToken string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var envelope withingsEnvelope
	if err := a.doJSON(req, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status != 0 {
		return nil, fmt.Errorf("withings status %d: %s", envelope.Status, envelope.Error)
	}
	return envelope.Body, nil
}

// FetchHealthData fetches weight and blood pressure measures plus activity
// and sleep summaries for the window
func (a *WithingsAdapter) FetchHealthData(ctx context.Context, creds Credentials, start, end time.Time) (*FetchResult, error) {
	startTS := strconv.FormatInt(start.Unix(), 10)
	endTS := strconv.FormatInt(end.Unix(), 10)
	startYMD := start.Format("20060102")
	endYMD := end.Format("20060102")

	requests := map[Metric]struct {
		endpoint string
		form     url.Values
	}{
		MetricWeight: {
			endpoint: a.apiBaseURL + "/measure",
			form: url.Values{
				"action":    {"getmeas"},
				"userid":    {creds.UserID},
				"startdate": {startTS},
				"enddate":   {endTS},
				"category":  {strconv.Itoa(withingsCategoryWeight)},
			},
		},
		MetricBloodPressure: {
			endpoint: a.apiBaseURL + "/measure",
			form: url.Values{
				"action":    {"getmeas"},
				"userid":    {creds.UserID},
				"startdate": {startTS},
				"enddate":   {endTS},
				"category":  {strconv.Itoa(withingsCategoryBloodPressure)},
			},
		},
		MetricActivity: {
			endpoint: a.apiBaseURL + "/v2/measure",
			form: url.Values{
				"action":       {"getactivity"},
				"userid":       {creds.UserID},
				"startdateymd": {startYMD},
				"enddateymd":   {endYMD},
			},
		},
		MetricSleep: {
			endpoint: a.apiBaseURL + "/v2/sleep",
			form: url.Values{
				"action":       {"getsummary"},
				"userid":       {creds.UserID},
				"startdateymd": {startYMD},
				"enddateymd":   {endYMD},
			},
		},
	}

	result := newFetchResult()
	for metric, r := range requests {
		body, err := a.fetchEnvelope(ctx, r.endpoint, creds.AccessToken, r.form)
		if err != nil {
			result.Failures[metric] = err
			continue
		}
		result.Metrics[metric] = body
	}
	return result, nil
}

// parseWithingsDate accepts both compact (20060102) and dashed dates, which
// Withings mixes across endpoints.
func parseWithingsDate(s string) (time.Time, bool) {
	if t, err := time.Parse("20060102", s); err == nil {
		return dayKey(t), true
	}
	return parseISODate(s)
}

type withingsMeasureBody struct {
	MeasureGroups []struct {
		Date     int64 `json:"date"`
		Measures []struct {
			Type  int   `json:"type"`
			Value int64 `json:"value"`
			Unit  int   `json:"unit"`
		} `json:"measures"`
	} `json:"measuregrps"`
}

type withingsActivityBody struct {
	Activities []struct {
		Date     string  `json:"date"`
		Steps    int64   `json:"steps"`
		Distance float64 `json:"distance"`
		Calories float64 `json:"calories"`
	} `json:"activities"`
}

type withingsSleepBody struct {
	Series []struct {
		Date           string `json:"date"`
		TotalSleepTime int64  `json:"total_sleep_time"`
	} `json:"series"`
}

// Sync fetches the trailing window and upserts weight, blood pressure,
// activity, and sleep per day. Weight values are unit-scaled as
// value * 10^unit; blood pressure pairs systolic and diastolic type codes
// from the same measure group.
func (a *WithingsAdapter) Sync(ctx context.Context, connectionID uuid.UUID, creds Credentials, days int) (int, error) {
	start, end := a.syncWindow(days)

	fetched, err := a.FetchHealthData(ctx, creds, start, end)
	if err != nil {
		return 0, err
	}

	writer := &syncWriter{records: a.stores.Records}

	if raw, ok := fetched.Metrics[MetricWeight]; ok {
		var body withingsMeasureBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return 0, fmt.Errorf("decode withings weight: %w", err)
		}
		for _, group := range body.MeasureGroups {
			day := dayKey(time.Unix(group.Date, 0).UTC())
			for _, m := range group.Measures {
				if m.Type != withingsMeasureWeight {
					continue
				}
				weightKg := float64(m.Value) * math.Pow(10, float64(m.Unit))
				if weightKg <= 0 {
					continue
				}
				patch := repository.HealthRecordPatch{Weight: floatPtr(weightKg)}
				if err := writer.write(ctx, day, patch); err != nil {
					return writer.count, err
				}
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricBloodPressure]; ok {
		var body withingsMeasureBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return writer.count, fmt.Errorf("decode withings blood pressure: %w", err)
		}
		for _, group := range body.MeasureGroups {
			day := dayKey(time.Unix(group.Date, 0).UTC())
			var systolic, diastolic int64
			for _, m := range group.Measures {
				switch m.Type {
				case withingsMeasureSystolic:
					systolic = m.Value
				case withingsMeasureDiastolic:
					diastolic = m.Value
				}
			}
			if systolic <= 0 || diastolic <= 0 {
				continue
			}
			patch := repository.HealthRecordPatch{
				BloodPressure: stringPtr(fmt.Sprintf("%d/%d", systolic, diastolic)),
			}
			if err := writer.write(ctx, day, patch); err != nil {
				return writer.count, err
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricActivity]; ok {
		var body withingsActivityBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return writer.count, fmt.Errorf("decode withings activity: %w", err)
		}
		for _, activity := range body.Activities {
			day, ok := parseWithingsDate(activity.Date)
			if !ok || activity.Steps <= 0 {
				continue
			}
			patch := repository.HealthRecordPatch{
				ExerciseMinutes: int32Ptr(stepsToExerciseMinutes(activity.Steps)),
				Notes: stringPtr(fmt.Sprintf("Withings: %d steps, %.0fm, %.0f kcal",
					activity.Steps, activity.Distance, activity.Calories)),
			}
			if err := writer.write(ctx, day, patch); err != nil {
				return writer.count, err
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricSleep]; ok {
		var body withingsSleepBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return writer.count, fmt.Errorf("decode withings sleep: %w", err)
		}
		for _, series := range body.Series {
			day, ok := parseWithingsDate(series.Date)
			if !ok || series.TotalSleepTime <= 0 {
				continue
			}
			patch := repository.HealthRecordPatch{
				SleepHours: floatPtr(float64(series.TotalSleepTime) / 3600),
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
