package device

import (
	"testing"

	"healthtrack/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Type
		wantErr  bool
	}{
		{name: "apple watch", input: "apple_watch", expected: TypeAppleWatch},
		{name: "apple alias", input: "apple", expected: TypeAppleWatch},
		{name: "case insensitive", input: "Apple_Watch", expected: TypeAppleWatch},
		{name: "garmin", input: "garmin", expected: TypeGarmin},
		{name: "fitbit", input: "FITBIT", expected: TypeFitbit},
		{name: "withings", input: "withings", expected: TypeWithings},
		{name: "unknown", input: "pebble", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, err := ParseType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnsupportedProvider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, typ)
		})
	}
}

func TestFactoryAdapter(t *testing.T) {
	stores, _, _, _ := newTestStores()
	factory := NewFactory(config.TestConfig().Providers, stores)

	tests := []struct {
		deviceType string
		expected   Type
	}{
		{deviceType: "apple", expected: TypeAppleWatch},
		{deviceType: "apple_watch", expected: TypeAppleWatch},
		{deviceType: "garmin", expected: TypeGarmin},
		{deviceType: "fitbit", expected: TypeFitbit},
		{deviceType: "withings", expected: TypeWithings},
	}

	for _, tt := range tests {
		t.Run(tt.deviceType, func(t *testing.T) {
			adapter, err := factory.Adapter(tt.deviceType)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, adapter.Type())
			assert.NotEmpty(t, adapter.DisplayName())
			assert.NotEmpty(t, adapter.SyncType())
		})
	}
}

func TestFactoryAdapterUnsupported(t *testing.T) {
	stores, records, _, syncLog := newTestStores()
	factory := NewFactory(config.TestConfig().Providers, stores)

	adapter, err := factory.Adapter("polar")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	assert.Nil(t, adapter)

	// Resolution failure performs no store operations.
	assert.Zero(t, records.upserts)
	assert.Empty(t, syncLog.entries)
}
