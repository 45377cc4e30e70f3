package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardware modes.
const (
	// HardwareModeMQTT talks to the external hardware-abstraction daemon over MQTT.
	HardwareModeMQTT = "mqtt"

	// HardwareModeSimulated runs against an in-process simulated rig.
	HardwareModeSimulated = "simulated"
)

// Config is the root configuration structure for the sample centring core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Beamline  BeamlineConfig  `yaml:"beamline"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Camera    CameraConfig    `yaml:"camera"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BeamlineConfig identifies the endstation this instance controls.
type BeamlineConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	BasePath string           `yaml:"base_path"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
//
// Write applies to regular responses only; camera streams are long-lived and
// clear their own write deadline.
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
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// CameraConfig contains sample camera and snapshot settings.
type CameraConfig struct {
	// SnapshotDir is where PUT /snapshot writes timestamped JPEG files.
	SnapshotDir string `yaml:"snapshot_dir"`

	// FrameTimeout bounds how long a stream waits for the next frame before
	// giving up on a camera that stopped producing.
	FrameTimeout time.Duration `yaml:"frame_timeout"`

	// JPEGQuality is used when frames are encoded in-process (simulated rig).
	JPEGQuality int `yaml:"jpeg_quality"`
}

// HardwareConfig selects and tunes the diffractometer backend.
type HardwareConfig struct {
	// Mode is "mqtt" or "simulated".
	Mode string `yaml:"mode"`

	// RequestTimeout bounds each hardware call (move, save, centring start).
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// SimulatedFrameRate is the frame rate of the simulated camera (frames/s).
	SimulatedFrameRate int `yaml:"simulated_frame_rate"`

	// Daemon optionally runs the hardware-abstraction daemon as a child
	// process in mqtt mode.
	Daemon DaemonConfig `yaml:"daemon"`
}

// DaemonConfig describes the supervised hardware-abstraction daemon.
type DaemonConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`

	// RestartDelay is the wait before the first restart; it doubles up to
	// one minute on repeated failures.
	RestartDelay time.Duration `yaml:"restart_delay"`

	// MaxRestarts limits consecutive restarts. 0 means unlimited.
	MaxRestarts int `yaml:"max_restarts"`

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the topic root shared with the hardware daemon.
	TopicPrefix string `yaml:"topic_prefix"`
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
}

// DatabaseConfig contains SQLite settings for the command journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for motor telemetry.
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
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SAMPLECENTRING_SECTION_KEY
// For example: SAMPLECENTRING_API_PORT, SAMPLECENTRING_MQTT_HOST
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

// Default returns the built-in configuration with environment overrides applied.
// Used when no config file is present (development, simulated rig).
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Beamline: BeamlineConfig{
			ID:   "bl-001",
			Name: "MX endstation",
		},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8081,
			BasePath: "/mxcube/api/v0.1",
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
		Camera: CameraConfig{
			SnapshotDir:  "./snapshots",
			FrameTimeout: 10 * time.Second,
			JPEGQuality:  80,
		},
		Hardware: HardwareConfig{
			Mode:               HardwareModeSimulated,
			RequestTimeout:     30 * time.Second,
			SimulatedFrameRate: 10,
			Daemon: DaemonConfig{
				RestartDelay:    2 * time.Second,
				MaxRestarts:     10,
				GracefulTimeout: 10 * time.Second,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "samplecentring-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "samplecentring",
		},
		Database: DatabaseConfig{
			Enabled:     false,
			Path:        "./data/samplecentring.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SAMPLECENTRING_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("SAMPLECENTRING_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SAMPLECENTRING_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Hardware
	if v := os.Getenv("SAMPLECENTRING_HARDWARE_MODE"); v != "" {
		cfg.Hardware.Mode = v
	}

	if v := os.Getenv("SAMPLECENTRING_HARDWARE_DAEMON_BINARY"); v != "" {
		cfg.Hardware.Daemon.Binary = v
	}

	// Camera
	if v := os.Getenv("SAMPLECENTRING_SNAPSHOT_DIR"); v != "" {
		cfg.Camera.SnapshotDir = v
	}

	// MQTT
	if v := os.Getenv("SAMPLECENTRING_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SAMPLECENTRING_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SAMPLECENTRING_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("SAMPLECENTRING_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("SAMPLECENTRING_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
// All problems are collected so the operator can fix them in one pass.
func (c *Config) Validate() error {
	var errs []string

	if c.Beamline.ID == "" {
		errs = append(errs, "beamline.id is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.BasePath != "" && !strings.HasPrefix(c.API.BasePath, "/") {
		errs = append(errs, "api.base_path must start with /")
	}

	switch c.Hardware.Mode {
	case HardwareModeMQTT, HardwareModeSimulated:
	default:
		errs = append(errs, fmt.Sprintf("hardware.mode must be %q or %q", HardwareModeMQTT, HardwareModeSimulated))
	}
	if c.Hardware.RequestTimeout <= 0 {
		errs = append(errs, "hardware.request_timeout must be positive")
	}
	if c.Hardware.Mode == HardwareModeSimulated && c.Hardware.SimulatedFrameRate <= 0 {
		errs = append(errs, "hardware.simulated_frame_rate must be positive in simulated mode")
	}
	if c.Hardware.Mode == HardwareModeMQTT && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required in mqtt mode")
	}

	if c.Hardware.Daemon.Enabled {
		if c.Hardware.Mode != HardwareModeMQTT {
			errs = append(errs, "hardware.daemon requires mqtt mode")
		}
		if c.Hardware.Daemon.Binary == "" {
			errs = append(errs, "hardware.daemon.binary is required when the daemon is enabled")
		}
	}

	if c.Camera.SnapshotDir == "" {
		errs = append(errs, "camera.snapshot_dir is required")
	}
	if c.Camera.FrameTimeout <= 0 {
		errs = append(errs, "camera.frame_timeout must be positive")
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		errs = append(errs, "camera.jpeg_quality must be between 1 and 100")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
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
