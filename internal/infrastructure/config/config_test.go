package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
beamline:
  id: "bl-test"
api:
  host: "0.0.0.0"
  port: 9090
camera:
  snapshot_dir: "/tmp/snapshots"
  frame_timeout: 3s
hardware:
  mode: "mqtt"
  request_timeout: 15s
mqtt:
  topic_prefix: "rig"
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
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

	if cfg.Beamline.ID != "bl-test" {
		t.Errorf("Beamline.ID = %q, want %q", cfg.Beamline.ID, "bl-test")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Camera.FrameTimeout != 3*time.Second {
		t.Errorf("Camera.FrameTimeout = %v, want 3s", cfg.Camera.FrameTimeout)
	}
	if cfg.Hardware.Mode != HardwareModeMQTT {
		t.Errorf("Hardware.Mode = %q, want %q", cfg.Hardware.Mode, HardwareModeMQTT)
	}
	if cfg.Hardware.RequestTimeout != 15*time.Second {
		t.Errorf("Hardware.RequestTimeout = %v, want 15s", cfg.Hardware.RequestTimeout)
	}
	if cfg.MQTT.TopicPrefix != "rig" {
		t.Errorf("MQTT.TopicPrefix = %q, want rig", cfg.MQTT.TopicPrefix)
	}
	// Defaults survive when the file omits a section
	if cfg.API.BasePath != "/mxcube/api/v0.1" {
		t.Errorf("API.BasePath = %q, want default", cfg.API.BasePath)
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
beamline:
  id: ""
hardware:
  mode: "gpio"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, wantErr: false},
		{name: "missing beamline ID", mutate: func(c *Config) { c.Beamline.ID = "" }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "relative base path", mutate: func(c *Config) { c.API.BasePath = "api" }, wantErr: true},
		{name: "empty base path allowed", mutate: func(c *Config) { c.API.BasePath = "" }, wantErr: false},
		{name: "unknown hardware mode", mutate: func(c *Config) { c.Hardware.Mode = "serial" }, wantErr: true},
		{name: "zero request timeout", mutate: func(c *Config) { c.Hardware.RequestTimeout = 0 }, wantErr: true},
		{
			name: "mqtt mode without topic prefix",
			mutate: func(c *Config) {
				c.Hardware.Mode = HardwareModeMQTT
				c.MQTT.TopicPrefix = ""
			},
			wantErr: true,
		},
		{
			name: "daemon outside mqtt mode",
			mutate: func(c *Config) {
				c.Hardware.Daemon.Enabled = true
				c.Hardware.Daemon.Binary = "/usr/bin/hwrd"
			},
			wantErr: true,
		},
		{
			name: "daemon without binary",
			mutate: func(c *Config) {
				c.Hardware.Mode = HardwareModeMQTT
				c.Hardware.Daemon.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "daemon in mqtt mode",
			mutate: func(c *Config) {
				c.Hardware.Mode = HardwareModeMQTT
				c.Hardware.Daemon.Enabled = true
				c.Hardware.Daemon.Binary = "/usr/bin/hwrd"
			},
			wantErr: false,
		},
		{name: "simulated mode zero frame rate", mutate: func(c *Config) { c.Hardware.SimulatedFrameRate = 0 }, wantErr: true},
		{name: "missing snapshot dir", mutate: func(c *Config) { c.Camera.SnapshotDir = "" }, wantErr: true},
		{name: "zero frame timeout", mutate: func(c *Config) { c.Camera.FrameTimeout = 0 }, wantErr: true},
		{name: "jpeg quality out of range", mutate: func(c *Config) { c.Camera.JPEGQuality = 0 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{
			name: "database enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{name: "database disabled without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: false},
		{name: "influxdb enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
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
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SAMPLECENTRING_API_HOST", "192.168.1.1")
	t.Setenv("SAMPLECENTRING_API_PORT", "9001")
	t.Setenv("SAMPLECENTRING_HARDWARE_MODE", "mqtt")
	t.Setenv("SAMPLECENTRING_SNAPSHOT_DIR", "/data/snaps")
	t.Setenv("SAMPLECENTRING_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SAMPLECENTRING_MQTT_USERNAME", "testuser")
	t.Setenv("SAMPLECENTRING_MQTT_PASSWORD", "testpass")
	t.Setenv("SAMPLECENTRING_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SAMPLECENTRING_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9001 {
		t.Errorf("API.Port = %d, want 9001", cfg.API.Port)
	}
	if cfg.Hardware.Mode != "mqtt" {
		t.Errorf("Hardware.Mode = %q, want mqtt", cfg.Hardware.Mode)
	}
	if cfg.Camera.SnapshotDir != "/data/snaps" {
		t.Errorf("Camera.SnapshotDir = %q, want /data/snaps", cfg.Camera.SnapshotDir)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("SAMPLECENTRING_API_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8081 {
		t.Errorf("API.Port = %d, want default 8081", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Beamline.ID == "" {
		t.Error("defaultConfig should have non-empty Beamline.ID")
	}
	if cfg.Hardware.Mode != HardwareModeSimulated {
		t.Errorf("defaultConfig Hardware.Mode = %q, want simulated", cfg.Hardware.Mode)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Database.Enabled {
		t.Error("defaultConfig should leave the command journal disabled")
	}
}
