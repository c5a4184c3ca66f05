package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/devicelink/internal/infrastructure/config"
	"github.com/nerrad567/devicelink/internal/store"
	"github.com/nerrad567/devicelink/internal/transport"
)

// testAppConfig returns the connection defaults buildStrategy needs.
func testAppConfig() *config.Config {
	return &config.Config{
		Connection: config.ConnectionConfig{
			BackoffBase:    2,
			BackoffMax:     30,
			ConnectTimeout: 10,
			Heartbeat:      60,
			PollInterval:   30,
		},
	}
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("DEVICELINK_CONFIG")
	defer os.Setenv("DEVICELINK_CONFIG", originalEnv)

	os.Setenv("DEVICELINK_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_StartupAndShutdown exercises full startup with everything
// optional disabled, then a clean context-driven shutdown.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
service:
  id: test-instance

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

api:
  enabled: true
  host: "127.0.0.1"
  port: 18491
  timeouts:
    read: 5
    write: 5
    idle: 30

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("DEVICELINK_CONFIG")
	defer os.Setenv("DEVICELINK_CONFIG", originalEnv)
	os.Setenv("DEVICELINK_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v, want clean shutdown", err)
	}
}

// TestGetConfigPath_Default verifies the default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("DEVICELINK_CONFIG")
	defer os.Setenv("DEVICELINK_CONFIG", originalEnv)

	os.Unsetenv("DEVICELINK_CONFIG")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies the environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("DEVICELINK_CONFIG")
	defer os.Setenv("DEVICELINK_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("DEVICELINK_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestPayloadCache(t *testing.T) {
	cache := newPayloadCache()

	t.Run("merge overlays partial payloads", func(t *testing.T) {
		cache.merge("avr-1", map[string]any{"volume": 10.0, "power": true})
		cache.merge("avr-1", map[string]any{"volume": 12.0})

		got := cache.get("avr-1")
		if got["volume"] != 12.0 {
			t.Errorf("volume = %v, want 12", got["volume"])
		}
		if got["power"] != true {
			t.Errorf("power = %v, want true (preserved from first payload)", got["power"])
		}
	})

	t.Run("get returns a copy", func(t *testing.T) {
		got := cache.get("avr-1")
		got["volume"] = 99.0
		if cache.get("avr-1")["volume"] != 12.0 {
			t.Error("mutating a returned payload corrupted the cache")
		}
	})

	t.Run("provider serves empty attributes before first payload", func(t *testing.T) {
		attrs, err := cache.provider("unknown")(context.Background())
		if err != nil {
			t.Fatalf("provider error = %v", err)
		}
		if attrs == nil || len(attrs) != 0 {
			t.Errorf("attrs = %v, want empty map", attrs)
		}
	})

	t.Run("drop forgets the payload", func(t *testing.T) {
		cache.drop("avr-1")
		if got := cache.get("avr-1"); got != nil {
			t.Errorf("get after drop = %v, want nil", got)
		}
	})
}

func TestDecodePayload(t *testing.T) {
	a := &app{cache: newPayloadCache()}

	t.Run("decodes and caches JSON", func(t *testing.T) {
		payload, err := a.decodePayload("avr-1", []byte(`{"volume": 42}`))
		if err != nil {
			t.Fatalf("decodePayload() error = %v", err)
		}
		if payload == nil {
			t.Fatal("payload is nil for non-empty message")
		}
		if a.cache.get("avr-1")["volume"] != float64(42) {
			t.Error("payload was not cached")
		}
	})

	t.Run("malformed JSON is a malformed message", func(t *testing.T) {
		_, err := a.decodePayload("avr-1", []byte("{broken"))
		if !errors.Is(err, transport.ErrMalformedMessage) {
			t.Errorf("error = %v, want ErrMalformedMessage", err)
		}
	})

	t.Run("empty object is a keepalive", func(t *testing.T) {
		payload, err := a.decodePayload("avr-1", []byte("{}"))
		if err != nil {
			t.Fatalf("decodePayload() error = %v", err)
		}
		if payload != nil {
			t.Errorf("payload = %v, want nil for keepalive", payload)
		}
	})
}

func TestAuthHeader(t *testing.T) {
	t.Run("no token yields no header", func(t *testing.T) {
		cfg := &store.DeviceConfig{Settings: map[string]any{}}
		if h := authHeader(cfg); h != nil {
			t.Errorf("authHeader() = %v, want nil", h)
		}
	})

	t.Run("token becomes bearer header", func(t *testing.T) {
		cfg := &store.DeviceConfig{Settings: map[string]any{"auth_token": "secret"}}
		h := authHeader(cfg)
		if got := h.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want Bearer secret", got)
		}
	})
}

func TestBuildStrategy(t *testing.T) {
	a := &app{cache: newPayloadCache()}
	// cfg supplies the default intervals buildStrategy falls back to.
	a.cfg = testAppConfig()

	tests := []struct {
		kind    string
		wantErr bool
	}{
		{store.KindHTTP, false},
		{store.KindPolling, false},
		{store.KindWebSocket, false},
		{store.KindTCP, false},
		{store.KindUnix, false},
		{"carrier-pigeon", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := &store.DeviceConfig{
				ID:      "dev-1",
				Name:    "Device",
				Kind:    tt.kind,
				Address: "tcp://10.0.0.5:4999",
			}
			strategy, err := a.buildStrategy(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("buildStrategy() should fail for unknown kind")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildStrategy() error = %v", err)
			}
			if strategy == nil {
				t.Fatal("buildStrategy() returned nil strategy")
			}
		})
	}
}
