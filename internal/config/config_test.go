package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestConfigValidates(t *testing.T) {
	cfg := TestConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.IsProduction())
}

func TestValidateMissingDatabaseURL(t *testing.T) {
	cfg := TestConfig()
	cfg.Database.URL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidateEncryptionKeyLength(t *testing.T) {
	cfg := TestConfig()
	cfg.External.TokenEncryptionKey = "abcd"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_ENCRYPTION_KEY")

	cfg.External.TokenEncryptionKey = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_ENCRYPTION_KEY")
}

func TestValidateSessionSecretRequiredInProduction(t *testing.T) {
	cfg := TestConfig()
	cfg.Logger.Environment = "production"
	cfg.External.SessionSecret = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := TestConfig()
	cfg.Database.URL = ""
	cfg.Logger.Level = "verbose"
	cfg.Providers.DefaultSyncDays = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_URL")
	assert.Contains(t, msg, "LOG_LEVEL")
	assert.Contains(t, msg, "SYNC_DEFAULT_DAYS")
}

func TestValidateInvalidPort(t *testing.T) {
	cfg := TestConfig()
	cfg.Server.Port = 70000

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestGetBindAddress(t *testing.T) {
	cfg := TestConfig()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	assert.Equal(t, "0.0.0.0:8080", cfg.GetBindAddress())
}

func TestTestConfigEncryptionKeyShape(t *testing.T) {
	key := TestConfig().External.TokenEncryptionKey
	assert.Len(t, key, 64)
	assert.Equal(t, strings.ToLower(key), key)
}
