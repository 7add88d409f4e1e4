package device

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"healthtrack/backend/internal/config"
)

// ErrUnsupportedProvider is returned when a device type string does not
// match any known provider. This is a caller error, never retried.
var ErrUnsupportedProvider = errors.New("unsupported device type")

// ParseType resolves a device type string to a provider kind. Matching is
// case-insensitive and accepts "apple" as an alias for "apple_watch".
func ParseType(deviceType string) (Type, error) {
	switch strings.ToLower(deviceType) {
	case "apple", "apple_watch":
		return TypeAppleWatch, nil
	case "garmin":
		return TypeGarmin, nil
	case "fitbit":
		return TypeFitbit, nil
	case "withings":
		return TypeWithings, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, deviceType)
	}
}

// Factory builds provider adapters from injected credentials. All adapters
// share one HTTP client with the configured request timeout.
type Factory struct {
	cfg    config.ProvidersConfig
	stores Stores
	client *http.Client
}

// NewFactory creates an adapter factory
func NewFactory(cfg config.ProvidersConfig, stores Stores) *Factory {
	return &Factory{
		cfg:    cfg,
		stores: stores,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Adapter resolves a device type string to its provider adapter
func (f *Factory) Adapter(deviceType string) (Adapter, error) {
	typ, err := ParseType(deviceType)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeAppleWatch:
		return NewAppleAdapter(f.cfg.Apple, f.stores, f.client), nil
	case TypeGarmin:
		return NewGarminAdapter(f.cfg.Garmin, f.stores, f.client), nil
	case TypeFitbit:
		return NewFitbitAdapter(f.cfg.Fitbit, f.stores, f.client), nil
	case TypeWithings:
		return NewWithingsAdapter(f.cfg.Withings, f.stores, f.client), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, deviceType)
	}
}
