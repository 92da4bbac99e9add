package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTempConfig writes YAML content to a temp file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempConfig(t, `
webhook:
  endpoint: http://localhost:9000/events
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Gateway.Port != 9679 {
		t.Errorf("Gateway.Port = %d, want 9679", cfg.Gateway.Port)
	}
	if cfg.API.Port != 8001 {
		t.Errorf("API.Port = %d, want 8001", cfg.API.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = true, want false by default")
	}
	if cfg.Webhook.Timeout != 5 {
		t.Errorf("Webhook.Timeout = %d, want 5", cfg.Webhook.Timeout)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
gateway:
  host: 127.0.0.1
  port: 9001
api:
  port: 8080
webhook:
  endpoint: http://fleet.internal/events
  auth_header: Bearer abc
mqtt:
  enabled: true
  broker:
    host: broker.internal
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Gateway.Host != "127.0.0.1" || cfg.Gateway.Port != 9001 {
		t.Errorf("gateway = %s:%d, want 127.0.0.1:9001", cfg.Gateway.Host, cfg.Gateway.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Webhook.AuthHeader != "Bearer abc" {
		t.Errorf("Webhook.AuthHeader = %q, want Bearer abc", cfg.Webhook.AuthHeader)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "broker.internal" {
		t.Errorf("MQTT = %+v, want enabled with broker.internal", cfg.MQTT)
	}
	// Untouched sections keep defaults
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "gateway: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestValidateRequiresWebhookEndpoint(t *testing.T) {
	path := writeTempConfig(t, "logging:\n  level: debug\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() without webhook.endpoint should fail validation")
	}
	if !strings.Contains(err.Error(), "webhook.endpoint") {
		t.Errorf("error = %v, want mention of webhook.endpoint", err)
	}
}

func TestValidatePortConflict(t *testing.T) {
	cfg := defaultConfig()
	cfg.Webhook.Endpoint = "http://localhost/events"
	cfg.API.Port = cfg.Gateway.Port

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with equal ports should fail")
	}
	if !strings.Contains(err.Error(), "differ") {
		t.Errorf("error = %v, want port conflict message", err)
	}
}

func TestValidateQoSRange(t *testing.T) {
	cfg := defaultConfig()
	cfg.Webhook.Endpoint = "http://localhost/events"
	cfg.MQTT.QoS = 3

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with qos=3 should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OMNIGATE_WEBHOOK_ENDPOINT", "http://env.example/events")
	t.Setenv("OMNIGATE_GATEWAY_PORT", "9700")
	t.Setenv("OMNIGATE_MQTT_PASSWORD", "s3cret")

	path := writeTempConfig(t, "gateway:\n  port: 9001\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Webhook.Endpoint != "http://env.example/events" {
		t.Errorf("Webhook.Endpoint = %q, want env override", cfg.Webhook.Endpoint)
	}
	if cfg.Gateway.Port != 9700 {
		t.Errorf("Gateway.Port = %d, want env override 9700", cfg.Gateway.Port)
	}
	if cfg.MQTT.Auth.Password != "s3cret" {
		t.Errorf("MQTT.Auth.Password = %q, want env override", cfg.MQTT.Auth.Password)
	}
}

func TestTimeoutGetters(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %vs, want 30s", got)
	}
	if got := cfg.GetWebhookTimeout().Seconds(); got != 5 {
		t.Errorf("GetWebhookTimeout() = %vs, want 5s", got)
	}
}
