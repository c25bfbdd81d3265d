// Package config provides unified configuration loading for the
// coordination service: defaults, YAML file, then environment variable
// overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("COORDINATION").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete coordination service configuration.
type Config struct {
	// Server holds HTTP transport settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Auth holds transport authentication settings.
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Registry holds agent registry settings.
	Registry RegistryConfig `yaml:"registry" env:"REGISTRY"`

	// Session holds session manager settings.
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Gate holds validation gate settings.
	Gate GateConfig `yaml:"gate" env:"GATE"`

	// History holds history store settings.
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Redis holds the shared redis connection settings.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry holds OpenTelemetry settings.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	// HTTPPort is the main API port.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// ReadTimeout bounds request reads.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// SessionHeader is the correlation header name. Matched
	// case-insensitively on inbound requests.
	SessionHeader string `yaml:"session_header" env:"SESSION_HEADER"`
}

// AuthConfig holds transport authentication settings.
type AuthConfig struct {
	// Enabled toggles bearer authentication.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// BearerToken is a static token accepted as-is. Empty disables the
	// static token path.
	BearerToken string `yaml:"bearer_token" env:"BEARER_TOKEN"`
	// JWTSecret verifies HS256-signed bearer tokens. Empty disables the
	// JWT path.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// RegistryConfig holds agent registry settings.
type RegistryConfig struct {
	// StaleAfter is the idle duration after which an agent is prunable.
	StaleAfter time.Duration `yaml:"stale_after" env:"STALE_AFTER"`
	// SweepInterval is how often the liveness sweep runs. Zero disables it.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// SessionConfig holds session manager settings.
type SessionConfig struct {
	// DefaultTTL applies when a create request omits the TTL.
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// MaxTTL caps session lifetime. Zero disables the cap.
	MaxTTL time.Duration `yaml:"max_ttl" env:"MAX_TTL"`
	// SweepInterval is how often expired sessions are reclaimed eagerly.
	// Zero disables the sweep; correctness does not depend on it.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// Store selects the session persistence backend.
	Store SessionStoreConfig `yaml:"store" env:"STORE"`
}

// SessionStoreConfig selects the session persistence backend.
type SessionStoreConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string `yaml:"backend" env:"BACKEND"`
	// DSN is the database connection string for sqlite/postgres.
	DSN string `yaml:"dsn" env:"DSN"`
}

// GateConfig holds validation gate settings.
type GateConfig struct {
	// Timeout is the hard deadline for an evaluator call.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RateLimit is the maximum evaluator calls per second. Zero disables.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// RateBurst is the rate limiter burst size.
	RateBurst int `yaml:"rate_burst" env:"RATE_BURST"`
	// Rules configures the built-in rule evaluator.
	Rules RuleConfig `yaml:"rules" env:"RULES"`
}

// RuleConfig configures the built-in rule evaluator.
type RuleConfig struct {
	// MaxContentLength is the maximum accepted content length in runes.
	MaxContentLength int `yaml:"max_content_length" env:"MAX_CONTENT_LENGTH"`
	// BlockedKeywords rejects content containing any of these substrings.
	BlockedKeywords []string `yaml:"blocked_keywords" env:"BLOCKED_KEYWORDS"`
	// WarnLengthRatio marks content above this fraction of the limit as a
	// soft warning.
	WarnLengthRatio float64 `yaml:"warn_length_ratio" env:"WARN_LENGTH_RATIO"`
	// MinScore is the lowest score that still passes, on the 0 to 100
	// verdict scale.
	MinScore float64 `yaml:"min_score" env:"MIN_SCORE"`
}

// HistoryConfig holds history store settings.
type HistoryConfig struct {
	// Backend is one of "memory", "redis". The redis backend uses the
	// shared Redis section for the connection.
	Backend string `yaml:"backend" env:"BACKEND"`
	// KeyPrefix namespaces the redis keys.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// RedisConfig holds the shared redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths lists zap output sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the call site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stack traces at error level.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	// Enabled toggles trace and metric export.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate is the trace sampling ratio.
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "COORDINATION",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
// Precedence: defaults -> YAML file -> environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration or panics.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.SessionHeader == "" {
		errs = append(errs, "session header must not be empty")
	}
	if c.Session.DefaultTTL <= 0 {
		errs = append(errs, "session default_ttl must be positive")
	}
	if c.Session.MaxTTL > 0 && c.Session.MaxTTL < c.Session.DefaultTTL {
		errs = append(errs, "session max_ttl must not be below default_ttl")
	}
	if c.Gate.Timeout <= 0 {
		errs = append(errs, "gate timeout must be positive")
	}
	if c.Gate.Rules.MinScore < 0 || c.Gate.Rules.MinScore > 100 {
		errs = append(errs, "gate min_score must be between 0 and 100")
	}
	switch c.Session.Store.Backend {
	case "", "memory", "sqlite":
	case "postgres":
		if c.Session.Store.DSN == "" {
			errs = append(errs, "postgres session store requires a dsn")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown session store backend: %s", c.Session.Store.Backend))
	}
	switch c.History.Backend {
	case "", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis history backend requires redis.addr")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown history backend: %s", c.History.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
