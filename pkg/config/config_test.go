package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxConcurrent = 10
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid, got: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	// Zero out rate limiting values to ensure they are ignored when disabled.
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "http rps must be > 0",
			mutate: func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 },
		},
		{
			name:   "http burst must be > 0",
			mutate: func(c *Config) { c.RateLimiting.HTTP.Burst = 0 },
		},
		{
			name:   "http max concurrent must be >= 0",
			mutate: func(c *Config) { c.RateLimiting.HTTP.MaxConcurrent = -1 },
		},
		{
			name:   "ws messages per second must be > 0",
			mutate: func(c *Config) { c.RateLimiting.WebSocket.MessagesPerSecond = 0 },
		},
		{
			name:   "ws burst must be > 0",
			mutate: func(c *Config) { c.RateLimiting.WebSocket.Burst = 0 },
		},
		{
			name:   "unknown join policy",
			mutate: func(c *Config) { c.Meeting.JoinPolicy = "lenient" },
		},
		{
			name:   "code length too short",
			mutate: func(c *Config) { c.Meeting.CodeLength = 2 },
		},
		{
			name:   "code attempts must be > 0",
			mutate: func(c *Config) { c.Meeting.CodeAttempts = 0 },
		},
		{
			name:   "pong timeout must exceed ping interval",
			mutate: func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval },
		},
		{
			name:   "signal path must be absolute",
			mutate: func(c *Config) { c.Signal.Path = "ws" },
		},
		{
			name:   "unknown recording storage",
			mutate: func(c *Config) { c.Recording.Storage = "s3" },
		},
		{
			name:   "redis storage requires redis",
			mutate: func(c *Config) { c.Recording.Storage = "redis"; c.Redis.Enabled = false },
		},
		{
			name:   "ice server needs urls",
			mutate: func(c *Config) { c.WebRTC.ICEServers = []ICEServer{{}} },
		},
		{
			name:   "ice server url scheme",
			mutate: func(c *Config) { c.WebRTC.ICEServers = []ICEServer{{URLs: []string{"http://stun.example.com"}}} },
		},
		{
			name:   "jaeger url must be http",
			mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.JaegerURL = "localhost:14268" },
		},
		{
			name:   "sample rate out of range",
			mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SampleRate = 1.5 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("base config should be valid, got: %v", err)
			}
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Meeting.JoinPolicy != "strict" {
		t.Errorf("JoinPolicy = %q, want strict", cfg.Meeting.JoinPolicy)
	}
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  address: ":9000"
meeting:
  join_policy: permissive
  idle_threshold: 30m
recording:
  storage: memory
  max_bytes: 1024
webrtc:
  ice_servers:
    - urls: ["turn:turn.example.com:3478"]
      username: user
      credential: pass
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TWINTALK_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != ":9000" {
		t.Errorf("Server.Address = %q, want :9000", cfg.Server.Address)
	}
	if cfg.Meeting.JoinPolicy != "permissive" {
		t.Errorf("JoinPolicy = %q, want permissive", cfg.Meeting.JoinPolicy)
	}
	if cfg.Meeting.IdleThreshold != 30*time.Minute {
		t.Errorf("IdleThreshold = %v, want 30m", cfg.Meeting.IdleThreshold)
	}
	if cfg.Meeting.SweepInterval != time.Hour {
		t.Errorf("SweepInterval default lost, got %v", cfg.Meeting.SweepInterval)
	}
	if cfg.Recording.MaxBytes != 1024 {
		t.Errorf("MaxBytes = %d, want 1024", cfg.Recording.MaxBytes)
	}
	if len(cfg.WebRTC.ICEServers) != 1 || cfg.WebRTC.ICEServers[0].Username != "user" {
		t.Errorf("unexpected ICE servers: %+v", cfg.WebRTC.ICEServers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want env override debug", cfg.Logging.Level)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}
