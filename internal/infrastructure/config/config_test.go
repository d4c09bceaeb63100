package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
bridge:
  id: "line-3"
  tags_file: "/etc/uabridge/tags.yaml"
  write_timeout: 5
opcua:
  endpoint: "opc.tcp://plc.local:4840"
  security_policy: "Basic256Sha256"
  security_mode: "SignAndEncrypt"
  cert_file: "/etc/uabridge/cert.pem"
  key_file: "/etc/uabridge/key.pem"
mqtt:
  broker:
    host: "broker.local"
    port: 8883
    tls: true
  topic_prefix: "opcua/line-3"
  qos_command: 1
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

	if cfg.Bridge.ID != "line-3" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "line-3")
	}

	if cfg.OPCUA.Endpoint != "opc.tcp://plc.local:4840" {
		t.Errorf("OPCUA.Endpoint = %q, want %q", cfg.OPCUA.Endpoint, "opc.tcp://plc.local:4840")
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}

	// Values absent from the file keep their defaults.
	if cfg.Bridge.SweepInterval != 1 {
		t.Errorf("Bridge.SweepInterval = %d, want default 1", cfg.Bridge.SweepInterval)
	}
	if !cfg.MQTT.RetainStates {
		t.Error("MQTT.RetainStates should default to true")
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
bridge:
  id: ""
opcua:
  endpoint: "opc.tcp://plc.local:4840"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty bridge.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing bridge ID",
			mutate:  func(c *Config) { c.Bridge.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing tags file",
			mutate:  func(c *Config) { c.Bridge.TagsFile = "" },
			wantErr: true,
		},
		{
			name:    "zero write timeout",
			mutate:  func(c *Config) { c.Bridge.WriteTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.OPCUA.Endpoint = "" },
			wantErr: true,
		},
		{
			name:    "unknown security policy",
			mutate:  func(c *Config) { c.OPCUA.SecurityPolicy = "Basic512" },
			wantErr: true,
		},
		{
			name:    "unknown security mode",
			mutate:  func(c *Config) { c.OPCUA.SecurityMode = "Encrypt" },
			wantErr: true,
		},
		{
			name: "security without certificate",
			mutate: func(c *Config) {
				c.OPCUA.SecurityMode = "SignAndEncrypt"
				c.OPCUA.SecurityPolicy = "Basic256Sha256"
			},
			wantErr: true,
		},
		{
			name: "security with certificate",
			mutate: func(c *Config) {
				c.OPCUA.SecurityMode = "SignAndEncrypt"
				c.OPCUA.SecurityPolicy = "Basic256Sha256"
				c.OPCUA.CertFile = "/etc/uabridge/cert.pem"
				c.OPCUA.KeyFile = "/etc/uabridge/key.pem"
			},
			wantErr: false,
		},
		{
			name:    "invalid broker port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "wildcard in topic prefix",
			mutate:  func(c *Config) { c.MQTT.TopicPrefix = "opcua/#" },
			wantErr: true,
		},
		{
			name:    "invalid state QoS",
			mutate:  func(c *Config) { c.MQTT.QoSState = 3 },
			wantErr: true,
		},
		{
			name:    "reconnect max below initial",
			mutate:  func(c *Config) { c.OPCUA.Reconnect.MaxDelay = 0 },
			wantErr: true,
		},
		{
			name: "journal enabled without path",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
			},
			wantErr: true,
		},
		{
			name: "history enabled without url",
			mutate: func(c *Config) {
				c.History.Enabled = true
			},
			wantErr: true,
		},
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

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Bridge: BridgeConfig{
			WriteTimeout:  5,
			SweepInterval: 2,
		},
		OPCUA: OPCUAConfig{
			PublishingIntervalMS: 250,
		},
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 5 {
		t.Errorf("GetWriteTimeout() = %v, want 5", got)
	}

	if got := cfg.GetSweepInterval().Seconds(); got != 2 {
		t.Errorf("GetSweepInterval() = %v, want 2", got)
	}

	if got := cfg.OPCUA.GetPublishingInterval().Milliseconds(); got != 250 {
		t.Errorf("GetPublishingInterval() = %vms, want 250", got)
	}

	initial, max := (ReconnectConfig{InitialDelay: 1, MaxDelay: 30}).Backoff()
	if initial.Seconds() != 1 || max.Seconds() != 30 {
		t.Errorf("Backoff() = %v, %v, want 1s, 30s", initial, max)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("UABRIDGE_TAGS_FILE", "/custom/tags.yaml")
	t.Setenv("UABRIDGE_OPCUA_ENDPOINT", "opc.tcp://10.0.0.5:4840")
	t.Setenv("UABRIDGE_OPCUA_USERNAME", "operator")
	t.Setenv("UABRIDGE_OPCUA_PASSWORD", "opc-secret")
	t.Setenv("UABRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("UABRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("UABRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("UABRIDGE_HISTORY_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Bridge.TagsFile != "/custom/tags.yaml" {
		t.Errorf("Bridge.TagsFile = %q, want %q", cfg.Bridge.TagsFile, "/custom/tags.yaml")
	}

	if cfg.OPCUA.Endpoint != "opc.tcp://10.0.0.5:4840" {
		t.Errorf("OPCUA.Endpoint = %q, want %q", cfg.OPCUA.Endpoint, "opc.tcp://10.0.0.5:4840")
	}

	if cfg.OPCUA.Username != "operator" || cfg.OPCUA.Password != "opc-secret" {
		t.Errorf("OPCUA credentials = %q/%q, want operator/opc-secret", cfg.OPCUA.Username, cfg.OPCUA.Password)
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

	if cfg.History.Token != "secret-token" {
		t.Errorf("History.Token = %q, want %q", cfg.History.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.ID == "" {
		t.Error("defaultConfig should have non-empty Bridge.ID")
	}

	if cfg.OPCUA.Endpoint == "" {
		t.Error("defaultConfig should have non-empty OPCUA.Endpoint")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.MQTT.QoSCommand != 1 {
		t.Errorf("defaultConfig MQTT.QoSCommand = %d, want 1", cfg.MQTT.QoSCommand)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
