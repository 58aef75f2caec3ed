package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the thingd and thingctl configuration: defaults, then the YAML
// file, then THINGS_* environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Client    ClientConfig    `yaml:"client"`
	Things    []ThingConfig   `yaml:"things"`
}

// SiteConfig names the installation. ID is attached to every log entry.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite settings for the history store and audit log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// RetentionDays bounds how long history and audit rows are kept. 0 keeps forever.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	Broker    MQTTBrokerConfig     `yaml:"broker"`
	Auth      MQTTAuthConfig       `yaml:"auth"`
	QoS       int                  `yaml:"qos"`
	Reconnect MQTTReconnectConfig  `yaml:"reconnect"`
	Embedded  EmbeddedBrokerConfig `yaml:"embedded"`
	// TopicPrefix is the root of every Thing topic ("things" by default).
	TopicPrefix string `yaml:"topic_prefix"`
	// RequestTimeout bounds how long an MQTT protocol client waits for a response (seconds).
	RequestTimeout int `yaml:"request_timeout"`
	// Binding exposes the hosted Things on the broker.
	Binding MQTTBindingConfig `yaml:"binding"`
}

// MQTTBindingConfig controls the MQTT binding that serves requests for
// hosted Things and publishes their state.
type MQTTBindingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Workers bounds concurrent requests; excess requests are answered busy.
	Workers int `yaml:"workers"`
	// StateContentType encodes published state and events.
	StateContentType string `yaml:"state_content_type"`
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

// MQTTReconnectConfig bounds the reconnect backoff, in seconds. paho
// retries forever.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// EmbeddedBrokerConfig controls the in-process MQTT broker.
//
// When enabled, the runtime starts its own broker on Host:Port and the
// MQTT client connects to it. Useful for single-box installs and tests.
type EmbeddedBrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	// BaseURL is advertised in Thing descriptions (e.g. "http://gateway.local:8080").
	BaseURL string `yaml:"base_url"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds the HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// ReadTimeout also bounds reading the request headers.
func (t APITimeoutConfig) ReadTimeout() time.Duration  { return seconds(t.Read) }
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }
func (t APITimeoutConfig) IdleTimeout() time.Duration  { return seconds(t.Idle) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the /api/v1/ws change stream. Intervals are in
// seconds; MaxMessageSize caps client frames in bytes.
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

// JWTConfig contains JWT token settings.
//
// When Secret is empty the API accepts unauthenticated writes; this is only
// sensible on an isolated network.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// ClientConfig contains settings for the outbound protocol clients.
type ClientConfig struct {
	HTTP HTTPClientConfig `yaml:"http"`
}

// HTTPClientConfig configures the http and https protocol client.
type HTTPClientConfig struct {
	// Timeout bounds one request in seconds.
	Timeout      int `yaml:"timeout"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	// Token is sent as a bearer token on every request when set.
	Token string `yaml:"token"`
}

// ThingConfig declares a Thing that is created at startup.
type ThingConfig struct {
	Name       string           `yaml:"name"`
	Properties []PropertyConfig `yaml:"properties"`
	Actions    []ActionConfig   `yaml:"actions"`
	Events     []EventConfig    `yaml:"events"`
}

// PropertyConfig declares a property with its schema and initial value.
type PropertyConfig struct {
	Name    string         `yaml:"name"`
	Schema  map[string]any `yaml:"schema"`
	Initial any            `yaml:"initial"`
}

// ActionConfig declares an action. Handlers are bound in code, so a
// configured action starts unbound unless Echo is set.
type ActionConfig struct {
	Name   string         `yaml:"name"`
	Input  map[string]any `yaml:"input"`
	Output map[string]any `yaml:"output"`
	// Echo binds a handler that returns its input unchanged.
	Echo bool `yaml:"echo"`
}

// EventConfig declares an event channel.
type EventConfig struct {
	Name   string         `yaml:"name"`
	Schema map[string]any `yaml:"schema"`
}

// Load reads the YAML file at path over the defaults, applies the
// environment overrides and validates the result.
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

// Default returns the built-in defaults with environment overrides applied.
// Used when no configuration file is present.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Thing Runtime",
		},
		Database: DatabaseConfig{
			Path:        "./data/things.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "thingd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Embedded: EmbeddedBrokerConfig{
				Host: "127.0.0.1",
				Port: 1883,
			},
			TopicPrefix:    "things",
			RequestTimeout: 10,
			Binding: MQTTBindingConfig{
				Enabled:          true,
				Workers:          16,
				StateContentType: "application/json",
			},
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
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Client: ClientConfig{
			HTTP: HTTPClientConfig{
				Timeout:      10,
				MaxIdleConns: 16,
			},
		},
	}
}

// applyEnvOverrides copies THINGS_* variables over cfg. Unset or
// unparsable values leave the field alone.
func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"THINGS_SITE_ID":        &cfg.Site.ID,
		"THINGS_DATABASE_PATH":  &cfg.Database.Path,
		"THINGS_MQTT_HOST":      &cfg.MQTT.Broker.Host,
		"THINGS_MQTT_USERNAME":  &cfg.MQTT.Auth.Username,
		"THINGS_MQTT_PASSWORD":  &cfg.MQTT.Auth.Password,
		"THINGS_API_HOST":       &cfg.API.Host,
		"THINGS_INFLUXDB_URL":   &cfg.InfluxDB.URL,
		"THINGS_INFLUXDB_TOKEN": &cfg.InfluxDB.Token,
		"THINGS_LOG_LEVEL":      &cfg.Logging.Level,
		"THINGS_JWT_SECRET":     &cfg.Security.JWT.Secret,
		"THINGS_CLIENT_TOKEN":   &cfg.Client.HTTP.Token,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"THINGS_MQTT_PORT": &cfg.MQTT.Broker.Port,
		"THINGS_API_PORT":  &cfg.API.Port,
	}
	for key, dst := range ints {
		if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = n
		}
	}

	bools := map[string]*bool{
		"THINGS_DATABASE_ENABLED": &cfg.Database.Enabled,
		"THINGS_MQTT_ENABLED":     &cfg.MQTT.Enabled,
		"THINGS_INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
	}
	for key, dst := range bools {
		if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
			*dst = b
		}
	}
}

// minJWTSecretLength applies to a configured secret; an empty secret
// disables API auth.
const minJWTSecretLength = 32

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	check := func(bad bool, format string, args ...any) {
		if bad {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Site.ID == "", "site.id is required")
	check(c.Database.Enabled && c.Database.Path == "", "database.path is required when database is enabled")
	check(c.Database.RetentionDays < 0, "database.retention_days must not be negative")

	check(c.MQTT.QoS < 0 || c.MQTT.QoS > 2, "mqtt.qos must be 0, 1, or 2")
	check(c.MQTT.Enabled && c.MQTT.TopicPrefix == "", "mqtt.topic_prefix is required when mqtt is enabled")
	check(c.MQTT.Binding.Workers < 0, "mqtt.binding.workers must not be negative")
	switch c.MQTT.Binding.StateContentType {
	case "", "application/json", "application/cbor":
	default:
		check(true, "mqtt.binding.state_content_type %q is not application/json or application/cbor", c.MQTT.Binding.StateContentType)
	}

	check(c.API.Port < 1 || c.API.Port > 65535, "api.port must be between 1 and 65535")
	check(c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == ""),
		"api.tls.cert_file and api.tls.key_file are required when tls is enabled")
	check(c.InfluxDB.Enabled && c.InfluxDB.URL == "", "influxdb.url is required when influxdb is enabled")
	check(c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength,
		"security.jwt.secret must be at least %d characters", minJWTSecretLength)

	seen := make(map[string]bool, len(c.Things))
	for i, t := range c.Things {
		if t.Name == "" {
			check(true, "things[%d].name is required", i)
			continue
		}
		check(seen[t.Name], "things[%d]: duplicate thing name %q", i, t.Name)
		seen[t.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
	}
	return nil
}

// GetTimeout returns the HTTP client request timeout.
func (h HTTPClientConfig) GetTimeout() time.Duration {
	if h.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(h.Timeout) * time.Second
}

// GetRequestTimeout returns the MQTT protocol client request timeout.
func (m MQTTConfig) GetRequestTimeout() time.Duration {
	if m.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.RequestTimeout) * time.Second
}
