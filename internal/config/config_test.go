package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, "https://api.openai.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.Upstream.RequestTimeout)
	assert.Equal(t, "X-Trace-Id", cfg.Trace.TraceHeader)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STREAM_HEALER_UPSTREAM_BASE_URL", "https://example.test")
	t.Setenv("STREAM_HEALER_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://example.test", cfg.Upstream.BaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidate_ReportsProblems(t *testing.T) {
	cfg := Config{}

	problems := cfg.Validate()
	assert.NotEmpty(t, problems)

	var sawPort, sawBaseURL bool

	for _, p := range problems {
		if p == "server.port must be between 1 and 65535, got 0" {
			sawPort = true
		}

		if p == "upstream.base_url must not be empty" {
			sawBaseURL = true
		}
	}

	assert.True(t, sawPort)
	assert.True(t, sawBaseURL)
}

func TestValidate_OK(t *testing.T) {
	cfg := Config{
		Server:   ServerConfig{Port: 8089},
		Upstream: UpstreamConfig{BaseURL: "https://api.openai.com", RequestTimeout: time.Second},
	}

	assert.Empty(t, cfg.Validate())
}
