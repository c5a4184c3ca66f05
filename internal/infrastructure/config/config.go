package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the devicelink daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Database   DatabaseConfig   `yaml:"database"`
	Connection ConnectionConfig `yaml:"connection"`
	API        APIConfig        `yaml:"api"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServiceConfig contains instance identification.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings for the device config store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// ConnectionConfig contains defaults for device connection supervision.
// Individual device configurations may override the poll interval.
type ConnectionConfig struct {
	// BackoffBase is the delay after the first failed connect attempt (seconds).
	BackoffBase int `yaml:"backoff_base"`

	// BackoffMax caps the reconnect delay (seconds).
	BackoffMax int `yaml:"backoff_max"`

	// MaxAttempts limits consecutive transient connect failures before the
	// connection is marked failed. 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`

	// MaxAuthAttempts limits consecutive authentication failures before the
	// connection is marked failed. 0 means unlimited.
	MaxAuthAttempts int `yaml:"max_auth_attempts"`

	// ConnectTimeout bounds a single connect attempt (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// Heartbeat is the liveness timeout for streaming and socket transports
	// (seconds). Absence of traffic for this long is treated as link loss.
	Heartbeat int `yaml:"heartbeat"`

	// PollInterval is the default probe interval for polling devices (seconds).
	PollInterval int `yaml:"poll_interval"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// MQTTConfig contains settings for the availability announcer.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
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

// InfluxDBConfig contains settings for the attribute history recorder.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern DEVICELINK_SECTION_KEY,
// for example DEVICELINK_DATABASE_PATH or DEVICELINK_API_PORT.
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
		Service: ServiceConfig{
			ID:   "devicelink-01",
			Name: "devicelink",
		},
		Database: DatabaseConfig{
			Path:        "data/devicelink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Connection: ConnectionConfig{
			BackoffBase:     2,
			BackoffMax:      30,
			MaxAttempts:     0,
			MaxAuthAttempts: 3,
			ConnectTimeout:  10,
			Heartbeat:       60,
			PollInterval:    30,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "devicelink",
			},
			QoS:         1,
			TopicPrefix: "devicelink",
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies DEVICELINK_* environment variables to the config.
// Only the values operators commonly need to override are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEVICELINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DEVICELINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("DEVICELINK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("DEVICELINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DEVICELINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DEVICELINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("DEVICELINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("DEVICELINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Service.ID == "" {
		return fmt.Errorf("service.id must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Connection.BackoffBase < 0 || c.Connection.BackoffMax < 0 {
		return fmt.Errorf("connection backoff values must not be negative")
	}
	if c.Connection.BackoffMax > 0 && c.Connection.BackoffBase > c.Connection.BackoffMax {
		return fmt.Errorf("connection.backoff_base must not exceed backoff_max")
	}
	if c.Connection.Heartbeat <= 0 {
		return fmt.Errorf("connection.heartbeat must be positive")
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			return fmt.Errorf("mqtt.broker.host must not be empty when MQTT is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1, or 2")
		}
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb url, org, and bucket are required when enabled")
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognised", c.Logging.Level)
	}
	return nil
}

// BackoffBaseDuration returns the configured base reconnect delay.
func (c *ConnectionConfig) BackoffBaseDuration() time.Duration {
	return time.Duration(c.BackoffBase) * time.Second
}

// BackoffMaxDuration returns the configured maximum reconnect delay.
func (c *ConnectionConfig) BackoffMaxDuration() time.Duration {
	return time.Duration(c.BackoffMax) * time.Second
}

// ConnectTimeoutDuration returns the configured connect attempt timeout.
func (c *ConnectionConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// HeartbeatDuration returns the configured liveness timeout.
func (c *ConnectionConfig) HeartbeatDuration() time.Duration {
	return time.Duration(c.Heartbeat) * time.Second
}

// PollIntervalDuration returns the configured default poll interval.
func (c *ConnectionConfig) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
