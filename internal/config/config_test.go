package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		WebSocket: WebSocketConfig{
			Host:         "0.0.0.0",
			Port:         9080,
			Path:         "/room",
			ReadLimit:    65536,
			WriteTimeout: 10 * time.Second,
			PongWait:     60 * time.Second,
			InboxSize:    64,
		},
		Telnet: TelnetConfig{
			Enabled:      true,
			Host:         "127.0.0.1",
			Port:         4000,
			ReadTimeout:  5 * time.Minute,
			WriteTimeout: 30 * time.Second,
		},
		Room: RoomConfig{
			ClosePolicy: "leave-message-only",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestAddrs(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.0.0.0:9080", cfg.WebSocket.Addr())
	assert.Equal(t, "127.0.0.1:4000", cfg.Telnet.Addr())
}

func TestPingPeriod(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 54*time.Second, cfg.WebSocket.PingPeriod())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
websocket:
  port: 9191
  path: /rooms/lobby
  pong_wait: 30s
telnet:
  enabled: true
  port: 4001
  read_timeout: 1m
room:
  file: content/lobby.yaml
  close_policy: reap-on-close
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.WebSocket.Port)
	assert.Equal(t, "/rooms/lobby", cfg.WebSocket.Path)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 64, cfg.WebSocket.InboxSize)
	assert.True(t, cfg.Telnet.Enabled)
	assert.Equal(t, 4001, cfg.Telnet.Port)
	assert.Equal(t, time.Minute, cfg.Telnet.ReadTimeout)
	assert.Equal(t, "content/lobby.yaml", cfg.Room.File)
	assert.Equal(t, "reap-on-close", cfg.Room.ClosePolicy)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9080, cfg.WebSocket.Port)
	assert.Equal(t, "/room", cfg.WebSocket.Path)
	assert.Equal(t, int64(64*1024), cfg.WebSocket.ReadLimit)
	assert.False(t, cfg.Telnet.Enabled)
	assert.Equal(t, "leave-message-only", cfg.Room.ClosePolicy)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ROOM_WEBSOCKET_PORT", "9999")
	t.Setenv("ROOM_ROOM_CLOSE_POLICY", "reap-on-close")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.WebSocket.Port)
	assert.Equal(t, "reap-on-close", cfg.Room.ClosePolicy)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ROOM_LOGGING_LEVEL=warn\n"), 0644))
	t.Setenv("ROOM_LOGGING_LEVEL", "")
	require.NoError(t, os.Unsetenv("ROOM_LOGGING_LEVEL"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.Path = "room"
	cfg.Logging.Level = "trace"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket.path")
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidateWebSocket(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WebSocketConfig)
	}{
		{"negative port", func(w *WebSocketConfig) { w.Port = -1 }},
		{"port too large", func(w *WebSocketConfig) { w.Port = 65536 }},
		{"zero read limit", func(w *WebSocketConfig) { w.ReadLimit = 0 }},
		{"zero write timeout", func(w *WebSocketConfig) { w.WriteTimeout = 0 }},
		{"zero pong wait", func(w *WebSocketConfig) { w.PongWait = 0 }},
		{"zero inbox", func(w *WebSocketConfig) { w.InboxSize = 0 }},
		{"health path", func(w *WebSocketConfig) { w.Path = "/health" }},
		{"sessions path", func(w *WebSocketConfig) { w.Path = "/sessions" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.WebSocket)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateTelnetOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Telnet.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg.Telnet.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestValidateClosePolicy(t *testing.T) {
	for _, p := range []string{"", "leave-message-only", "reap-on-close"} {
		cfg := validConfig()
		cfg.Room.ClosePolicy = p
		assert.NoError(t, cfg.Validate(), "policy %q should be valid", p)
	}
	cfg := validConfig()
	cfg.Room.ClosePolicy = "linger"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "FINE", "warning", "severe"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := validConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), "format %q should be valid", format)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

// Property-based tests

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(0, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.WebSocket.Port = port
		cfg.Telnet.Port = port
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid port %d rejected: %v", port, err)
		}
	})
}

func TestPropertyInvalidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, -1),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.WebSocket.Port = port
		if err := cfg.Validate(); err == nil {
			t.Fatalf("invalid port %d accepted", port)
		}
	})
}

func TestPropertyPingPeriodBeforePongWait(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		wait := time.Duration(rapid.Int64Range(int64(time.Second), int64(time.Hour)).Draw(t, "pong_wait"))
		w := WebSocketConfig{PongWait: wait}
		if p := w.PingPeriod(); p <= 0 || p >= wait {
			t.Fatalf("ping period %s not within (0, %s)", p, wait)
		}
	})
}
