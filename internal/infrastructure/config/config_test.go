package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	_ "time/tzdata"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  id: "valve-test"
  timezone: "Europe/London"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
hardware:
  motor:
    enable_pin: "GPIO12"
    speed: 180
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "valve-test" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "valve-test")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Hardware.Motor.EnablePin != "GPIO12" {
		t.Errorf("Hardware.Motor.EnablePin = %q, want %q", cfg.Hardware.Motor.EnablePin, "GPIO12")
	}
	if cfg.Hardware.Motor.Speed != 180 {
		t.Errorf("Hardware.Motor.Speed = %d, want 180", cfg.Hardware.Motor.Speed)
	}
	// Unset keys keep their defaults.
	if cfg.Hardware.Motor.IN1Pin != "GPIO23" {
		t.Errorf("Hardware.Motor.IN1Pin = %q, want default %q", cfg.Hardware.Motor.IN1Pin, "GPIO23")
	}
	if cfg.MQTT.BaseTopic != "vortex_device/wifi_valve" {
		t.Errorf("MQTT.BaseTopic = %q, want default", cfg.MQTT.BaseTopic)
	}
	if got := cfg.Location().String(); got != "Europe/London" {
		t.Errorf("Location() = %q, want %q", got, "Europe/London")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
device:
  id: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty device.id, got nil")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing device ID", mutate: func(c *Config) { c.Device.ID = "" }, wantErr: "device.id"},
		{name: "unknown timezone", mutate: func(c *Config) { c.Device.Timezone = "Mars/Olympus" }, wantErr: "device.timezone"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "missing base topic", mutate: func(c *Config) { c.MQTT.BaseTopic = "" }, wantErr: "mqtt.base_topic"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "motor speed zero", mutate: func(c *Config) { c.Hardware.Motor.Speed = 0 }, wantErr: "hardware.motor.speed"},
		{name: "motor speed above 255", mutate: func(c *Config) { c.Hardware.Motor.Speed = 256 }, wantErr: "hardware.motor.speed"},
		{name: "missing limit pin", mutate: func(c *Config) { c.Hardware.Limits.Open.PinB = "" }, wantErr: "hardware.limits.open.pin_b"},
		{
			name:    "pin reused",
			mutate:  func(c *Config) { c.Hardware.Limits.Close.PinA = c.Hardware.Motor.IN1Pin },
			wantErr: "reuses pin",
		},
		{
			name: "simulated skips pin checks",
			mutate: func(c *Config) {
				c.Hardware.Simulated = true
				c.Hardware.Motor.EnablePin = ""
			},
		},
		{name: "publish interval zero", mutate: func(c *Config) { c.Telemetry.PublishInterval = 0 }, wantErr: "telemetry.publish_interval"},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: "security.jwt.secret is required"},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "at least 32 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Telemetry: TelemetryConfig{PublishInterval: 5},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetPublishInterval().Seconds(); got != 5 {
		t.Errorf("GetPublishInterval() = %v, want 5", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("VALVECORE_DEVICE_ID", "valve-env")
	t.Setenv("VALVECORE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("VALVECORE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("VALVECORE_MQTT_USERNAME", "testuser")
	t.Setenv("VALVECORE_MQTT_PASSWORD", "testpass")
	t.Setenv("VALVECORE_API_HOST", "192.168.1.1")
	t.Setenv("VALVECORE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("VALVECORE_HARDWARE_SIMULATED", "true")
	t.Setenv("VALVECORE_JWT_SECRET", "jwt-secret")
	t.Setenv("VALVECORE_PASSKEY_HASH", "$argon2id$stub")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Device.ID", cfg.Device.ID, "valve-env"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
		{"Security.PasskeyHash", cfg.Security.PasskeyHash, "$argon2id$stub"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if !cfg.Hardware.Simulated {
		t.Error("Hardware.Simulated = false, want true")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Device.ID == "" {
		t.Error("defaultConfig should have non-empty Device.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Hardware.Motor.Speed != 200 {
		t.Errorf("defaultConfig Hardware.Motor.Speed = %d, want 200", cfg.Hardware.Motor.Speed)
	}
	if cfg.Telemetry.PublishInterval != 5 {
		t.Errorf("defaultConfig Telemetry.PublishInterval = %d, want 5", cfg.Telemetry.PublishInterval)
	}
}
