package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in backend.transport.
const (
	TransportDBus = "dbus"
	TransportMQTT = "mqtt"
)

// Config is the root configuration structure for the ReSet panel core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Panel     PanelConfig     `yaml:"panel"`
	Backend   BackendConfig   `yaml:"backend"`
	Processor ProcessorConfig `yaml:"processor"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// PanelConfig identifies this panel to the daemon.
type PanelConfig struct {
	// ClientName is announced to the daemon with RegisterClient.
	ClientName string `yaml:"client_name"`
	// InitialDomain is activated at startup: audio, network, bluetooth or none.
	InitialDomain string `yaml:"initial_domain"`
}

// BackendConfig selects and configures the daemon transport.
type BackendConfig struct {
	// Transport is "dbus" or "mqtt".
	Transport string            `yaml:"transport"`
	DBus      DBusBackendConfig `yaml:"dbus"`
	MQTT      MQTTBackendConfig `yaml:"mqtt"`
}

// DBusBackendConfig contains D-Bus connection settings.
type DBusBackendConfig struct {
	// Bus is "session" or "system".
	Bus         string `yaml:"bus"`
	Destination string `yaml:"destination"`
	Path        string `yaml:"path"`
}

// MQTTBackendConfig contains settings for daemons reached through an MQTT bridge.
type MQTTBackendConfig struct {
	// RequestTimeout is how long to wait for a response, in seconds.
	RequestTimeout int `yaml:"request_timeout"`
}

// ProcessorConfig tunes the audio command/event processor.
type ProcessorConfig struct {
	QueueSize   int `yaml:"queue_size"`
	MaxInflight int `yaml:"max_inflight"`
	// CommandTimeout bounds each daemon call, in seconds.
	CommandTimeout int `yaml:"command_timeout"`
}

// DatabaseConfig contains SQLite database settings for the command journal.
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
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer-token settings. An empty secret disables API auth.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// DefaultPath returns the configuration file location under the XDG config
// directory ($XDG_CONFIG_HOME/reset/config.yaml). RESET_CONFIG overrides it.
func DefaultPath() string {
	if v := os.Getenv("RESET_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(xdg.ConfigHome, "reset", "config.yaml")
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RESET_SECTION_KEY
// For example: RESET_DATABASE_PATH, RESET_BACKEND_TRANSPORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadDefault loads the file at DefaultPath. A missing file is not an error:
// defaults and environment overrides are used instead.
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return finish(defaultConfig())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Panel: PanelConfig{
			ClientName:    "ReSet-Panel",
			InitialDomain: "audio",
		},
		Backend: BackendConfig{
			Transport: TransportDBus,
			DBus: DBusBackendConfig{
				Bus:         "session",
				Destination: "org.Xetibo.ReSet.Daemon",
				Path:        "/org/Xetibo/ReSet/Daemon",
			},
			MQTT: MQTTBackendConfig{
				RequestTimeout: 5,
			},
		},
		Processor: ProcessorConfig{
			QueueSize:      64,
			MaxInflight:    4,
			CommandTimeout: 5,
		},
		Database: DatabaseConfig{
			Path:        filepath.Join(xdg.DataHome, "reset", "journal.db"),
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "reset-panel",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8087,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "reset",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer: "reset-panel",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RESET_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Panel
	if v := os.Getenv("RESET_PANEL_CLIENT_NAME"); v != "" {
		cfg.Panel.ClientName = v
	}
	if v := os.Getenv("RESET_PANEL_INITIAL_DOMAIN"); v != "" {
		cfg.Panel.InitialDomain = v
	}

	// Backend
	if v := os.Getenv("RESET_BACKEND_TRANSPORT"); v != "" {
		cfg.Backend.Transport = v
	}
	if v := os.Getenv("RESET_BACKEND_DBUS_BUS"); v != "" {
		cfg.Backend.DBus.Bus = v
	}

	// Processor
	if v, ok := envInt("RESET_PROCESSOR_QUEUE_SIZE"); ok {
		cfg.Processor.QueueSize = v
	}

	// Database
	if v := os.Getenv("RESET_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("RESET_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v, ok := envInt("RESET_MQTT_PORT"); ok {
		cfg.MQTT.Broker.Port = v
	}
	if v := os.Getenv("RESET_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RESET_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("RESET_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt("RESET_API_PORT"); ok {
		cfg.API.Port = v
	}

	// InfluxDB
	if v := os.Getenv("RESET_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("RESET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security
	if v := os.Getenv("RESET_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Panel validation
	if c.Panel.ClientName == "" {
		errs = append(errs, "panel.client_name is required")
	}
	switch c.Panel.InitialDomain {
	case "audio", "network", "bluetooth", "none":
	default:
		errs = append(errs, "panel.initial_domain must be audio, network, bluetooth or none")
	}

	// Backend validation
	switch c.Backend.Transport {
	case TransportDBus:
		if c.Backend.DBus.Bus != "session" && c.Backend.DBus.Bus != "system" {
			errs = append(errs, "backend.dbus.bus must be session or system")
		}
	case TransportMQTT:
		if c.Backend.MQTT.RequestTimeout < 1 {
			errs = append(errs, "backend.mqtt.request_timeout must be at least 1")
		}
	default:
		errs = append(errs, "backend.transport must be dbus or mqtt")
	}

	// Processor validation
	if c.Processor.QueueSize < 1 {
		errs = append(errs, "processor.queue_size must be at least 1")
	}
	if c.Processor.MaxInflight < 1 {
		errs = append(errs, "processor.max_inflight must be at least 1")
	}
	if c.Processor.CommandTimeout < 1 {
		errs = append(errs, "processor.command_timeout must be at least 1")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation. Auth is optional on a local panel, but a configured
	// secret must be strong enough to resist brute force.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetCommandTimeout returns the processor command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Processor.CommandTimeout) * time.Second
}

// GetRequestTimeout returns the MQTT bridge request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Backend.MQTT.RequestTimeout) * time.Second
}
