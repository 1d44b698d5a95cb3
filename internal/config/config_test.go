package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, MomoModeMock, cfg.MomoConfig.Mode)
	assert.Equal(t, StoragePostgres, cfg.StorageConfig.Driver)
	assert.Equal(t, uint64(3), cfg.MomoConfig.StatusRetries)
	assert.Equal(t, 10*time.Minute, cfg.ReconcileConfig.Grace)
	assert.Equal(t, 30*time.Second, cfg.ResolveTimeout)
	assert.Equal(t, "payment_db", cfg.DBConfig.DBName)
}

func TestLoad_LiveModeNeedsCredentials(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "development")
	t.Setenv("MOMO_MODE", "live")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MOMO_SUBSCRIPTION_KEY")

	t.Setenv("MOMO_SUBSCRIPTION_KEY", "sub")
	t.Setenv("MOMO_API_USER", "user")
	t.Setenv("MOMO_API_KEY", "key")
	t.Setenv("STORAGE_DRIVER", "bolt")
	t.Setenv("BOLT_PATH", "/var/lib/payments.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sub", cfg.MomoConfig.SubscriptionKey)
	assert.Equal(t, StorageBolt, cfg.StorageConfig.Driver)
	assert.Equal(t, "/var/lib/payments.db", cfg.StorageConfig.BoltPath)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORAGE_DRIVER", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MockGatewayOnlyInDevelopment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err, "production defaults to the live gateway and needs credentials")
	assert.Contains(t, err.Error(), "MOMO_SUBSCRIPTION_KEY")

	t.Setenv("MOMO_MODE", "mock")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_ENV=development")

	t.Setenv("MOMO_MODE", "live")
	t.Setenv("MOMO_SUBSCRIPTION_KEY", "sub")
	t.Setenv("MOMO_API_USER", "user")
	t.Setenv("MOMO_API_KEY", "key")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, MomoModeLive, cfg.MomoConfig.Mode)
}

func TestLoad_RejectsUnknownMockOutcome(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "development")
	t.Setenv("MOMO_MOCK_OUTCOME", "success")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MOMO_MOCK_OUTCOME")

	t.Setenv("MOMO_MOCK_OUTCOME", "rejected")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", cfg.MomoConfig.MockOutcome)
}
