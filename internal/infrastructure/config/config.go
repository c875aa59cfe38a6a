package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the valve core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Security  SecurityConfig  `yaml:"security"`
}

// DeviceConfig identifies this valve on the network.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// BaseTopic is the prefix under which the device id is appended.
	// Default: "vortex_device/wifi_valve"
	BaseTopic string `yaml:"base_topic"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HardwareConfig describes how the valve is wired to the host's GPIO header.
// Pin names are resolved through the periph.io registry (e.g. "GPIO17").
type HardwareConfig struct {
	// Simulated replaces the GPIO header with an in-process valve model.
	// Intended for development machines without a header.
	Simulated bool `yaml:"simulated"`

	Motor  MotorConfig  `yaml:"motor"`
	Limits LimitsConfig `yaml:"limits"`
	LEDs   LEDConfig    `yaml:"leds"`
}

// MotorConfig contains H-bridge pin names and drive settings.
type MotorConfig struct {
	EnablePin string `yaml:"enable_pin"`
	IN1Pin    string `yaml:"in1_pin"`
	IN2Pin    string `yaml:"in2_pin"`

	// Speed is the PWM duty on a 0-255 scale.
	// Default: 200
	Speed int `yaml:"speed"`

	// PWMFrequency in Hz for the enable pin.
	// Default: 5000
	PWMFrequency int `yaml:"pwm_frequency"`
}

// LimitsConfig contains the two limit sensors.
type LimitsConfig struct {
	Open  LimitPairConfig `yaml:"open"`
	Close LimitPairConfig `yaml:"close"`
}

// LimitPairConfig names the two complementary contacts of one limit switch.
type LimitPairConfig struct {
	PinA string `yaml:"pin_a"`
	PinB string `yaml:"pin_b"`
}

// LEDConfig contains status LED pin names.
type LEDConfig struct {
	RedPin   string `yaml:"red_pin"`
	GreenPin string `yaml:"green_pin"`
}

// TelemetryConfig contains state publishing settings.
type TelemetryConfig struct {
	// PublishInterval in seconds between state_data publications.
	// Default: 5
	PublishInterval int `yaml:"publish_interval"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// PasskeyHash is the Argon2id PHC string of the local channel passkey.
	PasskeyHash string `yaml:"passkey_hash"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VALVECORE_SECTION_KEY
// For example: VALVECORE_DATABASE_PATH, VALVECORE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:       "valve-001",
			Name:     "Rotary Valve",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/valvecore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "valvecore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			BaseTopic: "vortex_device/wifi_valve",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Hardware: HardwareConfig{
			Motor: MotorConfig{
				EnablePin:    "GPIO18",
				IN1Pin:       "GPIO23",
				IN2Pin:       "GPIO24",
				Speed:        200,
				PWMFrequency: 5000,
			},
			Limits: LimitsConfig{
				Open:  LimitPairConfig{PinA: "GPIO5", PinB: "GPIO6"},
				Close: LimitPairConfig{PinA: "GPIO13", PinB: "GPIO19"},
			},
			LEDs: LEDConfig{
				RedPin:   "GPIO20",
				GreenPin: "GPIO21",
			},
		},
		Telemetry: TelemetryConfig{
			PublishInterval: 5,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VALVECORE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	if v := os.Getenv("VALVECORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("VALVECORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VALVECORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VALVECORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("VALVECORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("VALVECORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("VALVECORE_HARDWARE_SIMULATED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Hardware.Simulated = b
		}
	}

	// Always override secrets in production.
	if v := os.Getenv("VALVECORE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("VALVECORE_PASSKEY_HASH"); v != "" {
		cfg.Security.PasskeyHash = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}
	if c.Device.Timezone != "" {
		if _, err := time.LoadLocation(c.Device.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("device.timezone %q is not a known zone", c.Device.Timezone))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.BaseTopic == "" {
		errs = append(errs, "mqtt.base_topic is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	errs = append(errs, c.Hardware.validate()...)

	if c.Telemetry.PublishInterval < 1 {
		errs = append(errs, "telemetry.publish_interval must be at least 1 second")
	}

	// A weak secret would let anyone on the LAN forge tokens that move the valve.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set VALVECORE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (h HardwareConfig) validate() []string {
	var errs []string

	if h.Motor.Speed < 1 || h.Motor.Speed > 255 {
		errs = append(errs, "hardware.motor.speed must be between 1 and 255")
	}

	if h.Simulated {
		return errs
	}

	required := map[string]string{
		"hardware.motor.enable_pin":   h.Motor.EnablePin,
		"hardware.motor.in1_pin":      h.Motor.IN1Pin,
		"hardware.motor.in2_pin":      h.Motor.IN2Pin,
		"hardware.limits.open.pin_a":  h.Limits.Open.PinA,
		"hardware.limits.open.pin_b":  h.Limits.Open.PinB,
		"hardware.limits.close.pin_a": h.Limits.Close.PinA,
		"hardware.limits.close.pin_b": h.Limits.Close.PinB,
	}
	seen := make(map[string]string, len(required))
	for _, key := range slices.Sorted(maps.Keys(required)) {
		name := required[key]
		if name == "" {
			errs = append(errs, key+" is required")
			continue
		}
		if other, dup := seen[name]; dup {
			errs = append(errs, fmt.Sprintf("%s reuses pin %s already assigned to %s", key, name, other))
			continue
		}
		seen[name] = key
	}

	return errs
}

// Location returns the device time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Device.Timezone); err == nil && c.Device.Timezone != "" {
		return loc
	}
	return time.UTC
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetPublishInterval returns the telemetry publish interval as a Duration.
func (c *Config) GetPublishInterval() time.Duration {
	return time.Duration(c.Telemetry.PublishInterval) * time.Second
}
