package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge"`
	OPCUA   OPCUAConfig   `yaml:"opcua"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Journal JournalConfig `yaml:"journal"`
	History HistoryConfig `yaml:"history"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// BridgeConfig contains bridge identity and engine timing settings.
type BridgeConfig struct {
	// ID uniquely identifies this bridge instance.
	// Used as the MQTT client id base and in journal entries.
	ID string `yaml:"id"`

	// TagsFile is the path to the YAML tag definition file.
	// A missing or malformed tag file is fatal at startup.
	TagsFile string `yaml:"tags_file"`

	// WriteTimeout is how long a pending write waits for a confirming
	// notification before it is reported as timed out (seconds).
	WriteTimeout int `yaml:"write_timeout"`

	// SweepInterval is how often pending-write deadlines are checked (seconds).
	SweepInterval int `yaml:"sweep_interval"`
}

// OPCUAConfig contains OPC UA endpoint and session settings.
type OPCUAConfig struct {
	// Endpoint is the OPC UA server URL, e.g. "opc.tcp://plc:4840".
	Endpoint string `yaml:"endpoint"`

	// SecurityPolicy: None, Basic128Rsa15, Basic256, Basic256Sha256.
	SecurityPolicy string `yaml:"security_policy"`

	// SecurityMode: None, Sign, SignAndEncrypt.
	SecurityMode string `yaml:"security_mode"`

	// Username and Password select a username identity token when set.
	// When empty, an anonymous token is used.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// CertFile and KeyFile are PEM client certificate and private key
	// paths. Required when security_mode is not None. The bridge only
	// reads them; provisioning is external.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// ApplicationURI must match the URI embedded in the client certificate.
	ApplicationURI string `yaml:"application_uri"`

	// PublishingIntervalMS is the subscription publishing interval (milliseconds).
	PublishingIntervalMS int `yaml:"publishing_interval_ms"`

	// Reconnect controls the session reconnection backoff.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`

	// TopicPrefix is the base of every topic the bridge uses,
	// e.g. "opcua/s7-1500". Must not contain MQTT wildcards.
	TopicPrefix string `yaml:"topic_prefix"`

	// QoSState is the QoS level for state publications.
	QoSState int `yaml:"qos_state"`

	// QoSCommand is the QoS level for the command subscription.
	QoSCommand int `yaml:"qos_command"`

	// RetainStates marks state publications as retained so late
	// subscribers see the last known value immediately.
	RetainStates bool `yaml:"retain_states"`

	// Reconnect controls the broker reconnection backoff.
	Reconnect ReconnectConfig `yaml:"reconnect"`
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

// ReconnectConfig contains reconnection backoff bounds (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// JournalConfig contains SQLite event journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HistoryConfig contains InfluxDB value history settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
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
// Environment variables follow the pattern: UABRIDGE_SECTION_KEY
// For example: UABRIDGE_MQTT_HOST, UABRIDGE_OPCUA_PASSWORD
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

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:            "uabridge-01",
			TagsFile:      "configs/tags.yaml",
			WriteTimeout:  10,
			SweepInterval: 1,
		},
		OPCUA: OPCUAConfig{
			Endpoint:             "opc.tcp://localhost:4840",
			SecurityPolicy:       "None",
			SecurityMode:         "None",
			PublishingIntervalMS: 200,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			TopicPrefix:  "opcua/plc",
			QoSState:     0,
			QoSCommand:   1,
			RetainStates: true,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "./data/uabridge.db",
		},
		History: HistoryConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Only settings that make sense to override at deploy time are exposed,
// chiefly endpoints and credentials that should stay out of the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UABRIDGE_TAGS_FILE"); v != "" {
		cfg.Bridge.TagsFile = v
	}

	// OPC UA
	if v := os.Getenv("UABRIDGE_OPCUA_ENDPOINT"); v != "" {
		cfg.OPCUA.Endpoint = v
	}
	if v := os.Getenv("UABRIDGE_OPCUA_USERNAME"); v != "" {
		cfg.OPCUA.Username = v
	}
	if v := os.Getenv("UABRIDGE_OPCUA_PASSWORD"); v != "" {
		cfg.OPCUA.Password = v
	}

	// MQTT
	if v := os.Getenv("UABRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("UABRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UABRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// History
	if v := os.Getenv("UABRIDGE_HISTORY_TOKEN"); v != "" {
		cfg.History.Token = v
	}
}

// validSecurityPolicies are the OPC UA security policies the bridge supports.
var validSecurityPolicies = map[string]bool{
	"None":           true,
	"Basic128Rsa15":  true,
	"Basic256":       true,
	"Basic256Sha256": true,
}

// validSecurityModes are the OPC UA message security modes the bridge supports.
var validSecurityModes = map[string]bool{
	"None":           true,
	"Sign":           true,
	"SignAndEncrypt": true,
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.TagsFile == "" {
		errs = append(errs, "bridge.tags_file is required")
	}
	if c.Bridge.WriteTimeout < 1 {
		errs = append(errs, "bridge.write_timeout must be at least 1 second")
	}
	if c.Bridge.SweepInterval < 1 {
		errs = append(errs, "bridge.sweep_interval must be at least 1 second")
	}

	if c.OPCUA.Endpoint == "" {
		errs = append(errs, "opcua.endpoint is required")
	}
	if !validSecurityPolicies[c.OPCUA.SecurityPolicy] {
		errs = append(errs, fmt.Sprintf("opcua.security_policy %q is not supported", c.OPCUA.SecurityPolicy))
	}
	if !validSecurityModes[c.OPCUA.SecurityMode] {
		errs = append(errs, fmt.Sprintf("opcua.security_mode %q is not supported", c.OPCUA.SecurityMode))
	}
	if c.OPCUA.SecurityMode != "None" && (c.OPCUA.CertFile == "" || c.OPCUA.KeyFile == "") {
		errs = append(errs, "opcua.cert_file and opcua.key_file are required when security_mode is not None")
	}
	if c.OPCUA.PublishingIntervalMS < 1 {
		errs = append(errs, "opcua.publishing_interval_ms must be positive")
	}
	if c.OPCUA.Reconnect.InitialDelay < 1 || c.OPCUA.Reconnect.MaxDelay < c.OPCUA.Reconnect.InitialDelay {
		errs = append(errs, "opcua.reconnect delays must satisfy 1 <= initial_delay <= max_delay")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}
	if c.MQTT.QoSState < 0 || c.MQTT.QoSState > 2 {
		errs = append(errs, "mqtt.qos_state must be 0, 1, or 2")
	}
	if c.MQTT.QoSCommand < 0 || c.MQTT.QoSCommand > 2 {
		errs = append(errs, "mqtt.qos_command must be 0, 1, or 2")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal is enabled")
	}
	if c.History.Enabled && (c.History.URL == "" || c.History.Org == "" || c.History.Bucket == "") {
		errs = append(errs, "history.url, history.org and history.bucket are required when history is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetWriteTimeout returns the pending-write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Bridge.WriteTimeout) * time.Second
}

// GetSweepInterval returns the deadline sweep interval as a Duration.
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Bridge.SweepInterval) * time.Second
}

// GetPublishingInterval returns the subscription publishing interval as a Duration.
func (c *OPCUAConfig) GetPublishingInterval() time.Duration {
	return time.Duration(c.PublishingIntervalMS) * time.Millisecond
}

// Backoff returns the reconnect bounds as Durations.
func (r ReconnectConfig) Backoff() (initial, maxDelay time.Duration) {
	return time.Duration(r.InitialDelay) * time.Second, time.Duration(r.MaxDelay) * time.Second
}
