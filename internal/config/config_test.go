package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 60*time.Second, cfg.Server.RequestTimeout())
	require.False(t, cfg.Server.FailuresAsOK)
	require.Equal(t, 20, cfg.RateLimit.MaxRequests)
	require.Equal(t, time.Minute, cfg.RateLimit.Window())
	require.Equal(t, 5*time.Minute, cfg.RateLimit.SweepInterval())
	require.Equal(t, 5, cfg.RateLimit.StaleWindows)
	require.Equal(t, "wss://production-sfo.browserless.io", cfg.Render.Endpoint)
	require.Equal(t, 15*time.Second, cfg.Render.Timeout())
	require.Equal(t, 5*time.Second, cfg.Render.CloseTimeout())
	require.Equal(t, 10*time.Second, cfg.Static.Timeout())
	require.Equal(t, 10*1024*1024, cfg.Static.MaxBodyBytes)
	require.Equal(t, 500, cfg.Static.ErrorBodyChars)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  failures_as_ok: true
ratelimit:
  max_requests: 5
  window_seconds: 30
render:
  endpoint: wss://chrome.example.com
  token: file-token
  strict: true
  sessions_per_second: 2.5
  burst: 3
static:
  timeout_seconds: 4
  accept_language: en-US
logging:
  development: true
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Server.FailuresAsOK)
	require.Equal(t, 5, cfg.RateLimit.MaxRequests)
	require.Equal(t, 30*time.Second, cfg.RateLimit.Window())
	require.Equal(t, "wss://chrome.example.com", cfg.Render.Endpoint)
	require.Equal(t, "file-token", cfg.Render.Token)
	require.True(t, cfg.Render.Strict)
	require.InDelta(t, 2.5, cfg.Render.SessionsPerSecond, 0.0001)
	require.Equal(t, 3, cfg.Render.Burst)
	require.Equal(t, 4*time.Second, cfg.Static.Timeout())
	require.Equal(t, "en-US", cfg.Static.AcceptLanguage)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadPlatformEnv(t *testing.T) {
	t.Setenv("BROWSERLESS_TOKEN", "env-token")
	t.Setenv("PORT", "3000")
	t.Setenv("PAGEPROXY_RATELIMIT_MAX_REQUESTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "env-token", cfg.Render.Token)
	require.Equal(t, 3000, cfg.Server.Port)
	require.Equal(t, 7, cfg.RateLimit.MaxRequests)
}

func TestLoadPrefixedEnvWins(t *testing.T) {
	t.Setenv("BROWSERLESS_TOKEN", "platform")
	t.Setenv("PAGEPROXY_RENDER_TOKEN", "prefixed")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "prefixed", cfg.Render.Token)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080, RequestTimeoutSeconds: 60},
		RateLimit: RateLimitConfig{MaxRequests: 20, WindowSeconds: 60, SweepIntervalSeconds: 300, StaleWindows: 5},
		Render:    RenderConfig{Endpoint: "wss://browser.example", TimeoutSeconds: 15, CloseTimeoutSeconds: 5, Burst: 1},
		Static:    StaticConfig{TimeoutSeconds: 10, MaxBodyBytes: 1024, ErrorBodyChars: 500},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid request timeout", mutate: func(c *Config) { c.Server.RequestTimeoutSeconds = 0 }, want: "server.request_timeout_seconds"},
		{name: "invalid max requests", mutate: func(c *Config) { c.RateLimit.MaxRequests = 0 }, want: "ratelimit.max_requests"},
		{name: "invalid window", mutate: func(c *Config) { c.RateLimit.WindowSeconds = -1 }, want: "ratelimit.window_seconds"},
		{name: "invalid sweep", mutate: func(c *Config) { c.RateLimit.SweepIntervalSeconds = 0 }, want: "ratelimit.sweep_interval_seconds"},
		{name: "invalid stale windows", mutate: func(c *Config) { c.RateLimit.StaleWindows = 0 }, want: "ratelimit.stale_windows"},
		{name: "invalid render timeout", mutate: func(c *Config) { c.Render.TimeoutSeconds = 0 }, want: "render.timeout_seconds"},
		{name: "invalid close timeout", mutate: func(c *Config) { c.Render.CloseTimeoutSeconds = 0 }, want: "render.close_timeout_seconds"},
		{name: "negative pacing", mutate: func(c *Config) { c.Render.SessionsPerSecond = -1 }, want: "render.sessions_per_second"},
		{
			name: "pacing without burst",
			mutate: func(c *Config) {
				c.Render.SessionsPerSecond = 1
				c.Render.Burst = 0
			},
			want: "render.burst",
		},
		{
			name: "http endpoint with token",
			mutate: func(c *Config) {
				c.Render.Token = "t"
				c.Render.Endpoint = "https://browser.example"
			},
			want: "render.endpoint",
		},
		{name: "invalid static timeout", mutate: func(c *Config) { c.Static.TimeoutSeconds = 0 }, want: "static.timeout_seconds"},
		{name: "invalid body cap", mutate: func(c *Config) { c.Static.MaxBodyBytes = 0 }, want: "static.max_body_bytes"},
		{name: "invalid error body", mutate: func(c *Config) { c.Static.ErrorBodyChars = 0 }, want: "static.error_body_chars"},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "chatty" }, want: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}
