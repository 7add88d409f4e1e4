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
	fitbitAPIBaseURL   = "https://api.fitbit.com/1"
	fitbitAuthURL      = "https://www.fitbit.com/oauth2/authorize"
	fitbitTokenURL     = "https://api.fitbit.com/oauth2/token"
	fitbitOAuthScope   = "activity heartrate sleep weight"
	fitbitSyncTypeName = "fitbit"
)

// FitbitAdapter integrates Fitbit activity, heart rate, sleep, and weight
// data. Token exchange authenticates the client with HTTP Basic per Fitbit's
// OAuth2 requirements.
type FitbitAdapter struct {
	baseAdapter
	creds      config.ProviderCredentials
	apiBaseURL string
	authURL    string
	tokenURL   string
}

// NewFitbitAdapter creates the Fitbit adapter
func NewFitbitAdapter(creds config.ProviderCredentials, stores Stores, client *http.Client) *FitbitAdapter {
	return &FitbitAdapter{
		baseAdapter: newBaseAdapter(stores, client),
		creds:       creds,
		apiBaseURL:  fitbitAPIBaseURL,
		authURL:     fitbitAuthURL,
		tokenURL:    fitbitTokenURL,
	}
}

func (a *FitbitAdapter) Type() Type { return TypeFitbit }

func (a *FitbitAdapter) DisplayName() string { return "Fitbit" }

func (a *FitbitAdapter) SyncType() string { return fitbitSyncTypeName }

func (a *FitbitAdapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.creds.ClientID,
		ClientSecret: a.creds.ClientSecret,
		RedirectURL:  a.creds.RedirectURL,
		Scopes:       []string{fitbitOAuthScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.authURL,
			TokenURL:  a.tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthorizationURL builds the Fitbit consent page URL
func (a *FitbitAdapter) AuthorizationURL(_ context.Context, state string) (string, error) {
	if a.creds.ClientID == "" {
		return "", fmt.Errorf("fitbit client credentials are not configured")
	}
	return a.oauthConfig().AuthCodeURL(state), nil
}

// ExchangeCode exchanges the authorization code for tokens
func (a *FitbitAdapter) ExchangeCode(ctx context.Context, code, _ string) (*TokenResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	token, err := a.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("fitbit token exchange failed: %w", err)
	}

	result := &TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		result.ExpiresAt = &expiry
	}
	if userID, ok := token.Extra("user_id").(string); ok {
		result.UserID = userID
	}
	return result, nil
}

type fitbitActivitiesResponse struct {
	Summary struct {
		Steps     int64 `json:"steps"`
		Distances []struct {
			Distance float64 `json:"distance"`
		} `json:"distances"`
		CaloriesOut int64 `json:"caloriesOut"`
	} `json:"summary"`
}

type fitbitHeartResponse struct {
	ActivitiesHeart []struct {
		Value struct {
			RestingHeartRate int64 `json:"restingHeartRate"`
		} `json:"value"`
	} `json:"activities-heart"`
}

type fitbitSleepResponse struct {
	Summary struct {
		TotalMinutesAsleep int64 `json:"totalMinutesAsleep"`
	} `json:"summary"`
}

type fitbitWeightResponse struct {
	Weight []struct {
		Weight float64 `json:"weight"`
	} `json:"weight"`
}

// FetchHealthData fetches all metrics for a single day. Fitbit's daily
// endpoints are date-scoped, so the sync loop calls this once per calendar
// day in the window rather than issuing one ranged query.
func (a *FitbitAdapter) FetchHealthData(ctx context.Context, creds Credentials, start, _ time.Time) (*FetchResult, error) {
	date := start.Format("2006-01-02")
	endpoints := map[Metric]string{
		MetricActivity:  fmt.Sprintf("%s/user/-/activities/date/%s.json", a.apiBaseURL, date),
		MetricHeartRate: fmt.Sprintf("%s/user/-/activities/heart/date/%s/1d.json", a.apiBaseURL, date),
		MetricSleep:     fmt.Sprintf("%s/user/-/sleep/date/%s.json", a.apiBaseURL, date),
		MetricWeight:    fmt.Sprintf("%s/user/-/body/log/weight/date/%s.json", a.apiBaseURL, date),
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+creds.AccessToken)
	header.Set("Accept", "application/json")

	result := newFetchResult()
	for metric, endpoint := range endpoints {
		var payload json.RawMessage
		if err := a.getJSON(ctx, endpoint, header, &payload); err != nil {
			result.Failures[metric] = err
			continue
		}
		result.Metrics[metric] = payload
	}
	return result, nil
}

// Sync iterates one fetch per calendar day in the trailing window and
// upserts whatever metrics reported a nonzero value for that day.
func (a *FitbitAdapter) Sync(ctx context.Context, connectionID uuid.UUID, creds Credentials, days int) (int, error) {
	start, _ := a.syncWindow(days)

	writer := &syncWriter{records: a.stores.Records}

	for i := 0; i < days; i++ {
		day := dayKey(start.AddDate(0, 0, i))

		fetched, err := a.FetchHealthData(ctx, creds, day, day)
		if err != nil {
			continue
		}
		if err := a.syncDay(ctx, writer, day, fetched); err != nil {
			return writer.count, err
		}
	}

	if err := a.finishSync(ctx, connectionID, a.SyncType(), start, writer.count); err != nil {
		return writer.count, err
	}
	return writer.count, nil
}

func (a *FitbitAdapter) syncDay(ctx context.Context, writer *syncWriter, day time.Time, fetched *FetchResult) error {
	if raw, ok := fetched.Metrics[MetricActivity]; ok {
		var resp fitbitActivitiesResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("decode fitbit activities: %w", err)
		}
		if resp.Summary.Steps > 0 {
			var distance float64
			if len(resp.Summary.Distances) > 0 {
				distance = resp.Summary.Distances[0].Distance
			}
			patch := repository.HealthRecordPatch{
				ExerciseMinutes: int32Ptr(stepsToExerciseMinutes(resp.Summary.Steps)),
				Notes: stringPtr(fmt.Sprintf("Fitbit: %d steps, %.2f km, %d kcal",
					resp.Summary.Steps, distance, resp.Summary.CaloriesOut)),
			}
			if err := writer.write(ctx, day, patch); err != nil {
				return err
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricHeartRate]; ok {
		var resp fitbitHeartResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("decode fitbit heart rate: %w", err)
		}
		if len(resp.ActivitiesHeart) > 0 {
			restingHR := resp.ActivitiesHeart[0].Value.RestingHeartRate
			if restingHR > 0 {
				patch := repository.HealthRecordPatch{
					Notes: stringPtr(fmt.Sprintf("Fitbit: Resting HR %d bpm", restingHR)),
				}
				if err := writer.write(ctx, day, patch); err != nil {
					return err
				}
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricSleep]; ok {
		var resp fitbitSleepResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("decode fitbit sleep: %w", err)
		}
		sleepHours := float64(resp.Summary.TotalMinutesAsleep) / 60
		if sleepHours > 0 {
			patch := repository.HealthRecordPatch{
				SleepHours: floatPtr(sleepHours),
			}
			if err := writer.write(ctx, day, patch); err != nil {
				return err
			}
		}
	}

	if raw, ok := fetched.Metrics[MetricWeight]; ok {
		var resp fitbitWeightResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("decode fitbit weight: %w", err)
		}
		if len(resp.Weight) > 0 {
			// The last log of the day wins.
			latest := resp.Weight[len(resp.Weight)-1].Weight
			if latest > 0 {
				patch := repository.HealthRecordPatch{
					Weight: floatPtr(latest),
				}
				if err := writer.write(ctx, day, patch); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
