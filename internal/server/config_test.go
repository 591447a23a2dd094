package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	config := GetDefaultConfig()

	assert.Equal(t, "0.0.0.0", config.Host)
	assert.Equal(t, 8668, config.Port)
	assert.Equal(t, "/health", config.HealthCheckPath)
	assert.Equal(t, "/metrics", config.MetricsPath)
	assert.Equal(t, 100, config.DefaultLastN)

	require.NotNil(t, config.Database)
	assert.Equal(t, "localhost", config.Database.Host)
	assert.Equal(t, 5432, config.Database.Port)
	assert.Equal(t, "telemetry", config.Database.Database)

	require.NotNil(t, config.Retention)
	assert.False(t, config.Retention.Enabled)

	require.NotNil(t, config.Broker)
	assert.False(t, config.Broker.Enabled)
}

func TestConfig_Validation(t *testing.T) {
	t.Run("Valid configuration", func(t *testing.T) {
		config := GetDefaultConfig()
		assert.NoError(t, config.Validate())
	})

	t.Run("Invalid port", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Port = 0
		assert.Error(t, config.Validate())
	})

	t.Run("TLS enabled without cert", func(t *testing.T) {
		config := GetDefaultConfig()
		config.TLSEnabled = true
		assert.Error(t, config.Validate())
	})

	t.Run("Rate limit enabled with zero RPS", func(t *testing.T) {
		config := GetDefaultConfig()
		config.RateLimitEnabled = true
		config.RateLimitRPS = 0
		assert.Error(t, config.Validate())
	})

	t.Run("Max last N below default last N", func(t *testing.T) {
		config := GetDefaultConfig()
		config.MaxLastN = config.DefaultLastN - 1
		assert.Error(t, config.Validate())
	})

	t.Run("Retention enabled without schedule", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Retention.Enabled = true
		config.Retention.Schedule = ""
		assert.Error(t, config.Validate())
	})

	t.Run("Broker enabled without notify URL", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Broker.Enabled = true
		config.Broker.URL = "http://localhost:1026"
		config.Broker.NotifyURL = ""
		assert.Error(t, config.Validate())
	})
}

func TestConfig_GetAddress(t *testing.T) {
	config := GetDefaultConfig()
	config.Host = "127.0.0.1"
	config.Port = 9090

	assert.Equal(t, "127.0.0.1:9090", config.GetAddress())
}
