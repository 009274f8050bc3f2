// Package config loads and validates proxy configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pageproxy/internal/logging"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Render    RenderConfig    `mapstructure:"render"`
	Static    StaticConfig    `mapstructure:"static"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int  `mapstructure:"port"`
	RequestTimeoutSeconds int  `mapstructure:"request_timeout_seconds"`
	FailuresAsOK          bool `mapstructure:"failures_as_ok"`
}

// RateLimitConfig sets the per-client quota.
type RateLimitConfig struct {
	MaxRequests          int `mapstructure:"max_requests"`
	WindowSeconds        int `mapstructure:"window_seconds"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	StaleWindows         int `mapstructure:"stale_windows"`
}

// RenderConfig configures the remote browser strategy.
type RenderConfig struct {
	Endpoint            string  `mapstructure:"endpoint"`
	Token               string  `mapstructure:"token"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds"`
	CloseTimeoutSeconds int     `mapstructure:"close_timeout_seconds"`
	Strict              bool    `mapstructure:"strict"`
	SessionsPerSecond   float64 `mapstructure:"sessions_per_second"`
	Burst               int     `mapstructure:"burst"`
}

// StaticConfig configures the plain HTTP strategy.
type StaticConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	AcceptLanguage string `mapstructure:"accept_language"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	ErrorBodyChars int    `mapstructure:"error_body_chars"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.failures_as_ok", false)
	v.SetDefault("ratelimit.max_requests", 20)
	v.SetDefault("ratelimit.window_seconds", 60)
	v.SetDefault("ratelimit.sweep_interval_seconds", 300)
	v.SetDefault("ratelimit.stale_windows", 5)
	v.SetDefault("render.endpoint", "wss://production-sfo.browserless.io")
	v.SetDefault("render.token", "")
	v.SetDefault("render.timeout_seconds", 15)
	v.SetDefault("render.close_timeout_seconds", 5)
	v.SetDefault("render.strict", false)
	v.SetDefault("render.sessions_per_second", 0)
	v.SetDefault("render.burst", 1)
	v.SetDefault("static.timeout_seconds", 10)
	v.SetDefault("static.user_agent", "")
	v.SetDefault("static.accept_language", "")
	v.SetDefault("static.max_body_bytes", 10*1024*1024)
	v.SetDefault("static.error_body_chars", 500)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// bindEnv wires the conventional platform variables alongside the prefixed ones.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"render.token": {"PAGEPROXY_RENDER_TOKEN", "BROWSERLESS_TOKEN"},
		"server.port":  {"PAGEPROXY_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("ratelimit.max_requests must be > 0")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("ratelimit.window_seconds must be > 0")
	}
	if c.RateLimit.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("ratelimit.sweep_interval_seconds must be > 0")
	}
	if c.RateLimit.StaleWindows <= 0 {
		return fmt.Errorf("ratelimit.stale_windows must be > 0")
	}
	if c.Render.TimeoutSeconds <= 0 {
		return fmt.Errorf("render.timeout_seconds must be > 0")
	}
	if c.Render.CloseTimeoutSeconds <= 0 {
		return fmt.Errorf("render.close_timeout_seconds must be > 0")
	}
	if c.Render.SessionsPerSecond < 0 {
		return fmt.Errorf("render.sessions_per_second must be >= 0")
	}
	if c.Render.SessionsPerSecond > 0 && c.Render.Burst <= 0 {
		return fmt.Errorf("render.burst must be > 0 when sessions are paced")
	}
	if c.Render.Token != "" {
		u, err := url.Parse(c.Render.Endpoint)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("render.endpoint must be a ws:// or wss:// URL")
		}
	}
	if c.Static.TimeoutSeconds <= 0 {
		return fmt.Errorf("static.timeout_seconds must be > 0")
	}
	if c.Static.MaxBodyBytes <= 0 {
		return fmt.Errorf("static.max_body_bytes must be > 0")
	}
	if c.Static.ErrorBodyChars <= 0 {
		return fmt.Errorf("static.error_body_chars must be > 0")
	}
	if c.Logging.Level != "" {
		if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	return nil
}

// RequestTimeout bounds a whole inbound request.
func (c ServerConfig) RequestTimeout() time.Duration {
	return seconds(c.RequestTimeoutSeconds)
}

// Window is the quota window.
func (c RateLimitConfig) Window() time.Duration {
	return seconds(c.WindowSeconds)
}

// SweepInterval is how often idle clients are evicted.
func (c RateLimitConfig) SweepInterval() time.Duration {
	return seconds(c.SweepIntervalSeconds)
}

// Timeout bounds one render attempt.
func (c RenderConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// CloseTimeout bounds closing a browser session.
func (c RenderConfig) CloseTimeout() time.Duration {
	return seconds(c.CloseTimeoutSeconds)
}

// Timeout bounds one static fetch.
func (c StaticConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
