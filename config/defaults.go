package config

import "time"

// DefaultSessionHeader is the correlation header carried by every tool call.
const DefaultSessionHeader = "X-Coordination-Session"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Auth:      DefaultAuthConfig(),
		Registry:  DefaultRegistryConfig(),
		Session:   DefaultSessionConfig(),
		Gate:      DefaultGateConfig(),
		History:   DefaultHistoryConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		SessionHeader:   DefaultSessionHeader,
	}
}

// DefaultAuthConfig returns the default auth configuration. Auth is off by
// default for local development.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled: false,
	}
}

// DefaultRegistryConfig returns the default registry configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		StaleAfter:    10 * time.Minute,
		SweepInterval: 0,
	}
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DefaultTTL:    30 * time.Minute,
		MaxTTL:        24 * time.Hour,
		SweepInterval: time.Minute,
		Store: SessionStoreConfig{
			Backend: "memory",
		},
	}
}

// DefaultGateConfig returns the default gate configuration.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Timeout:   5 * time.Second,
		RateLimit: 0,
		RateBurst: 1,
		Rules: RuleConfig{
			MaxContentLength: 32768,
			WarnLengthRatio:  0.8,
			MinScore:         50,
		},
	}
}

// DefaultHistoryConfig returns the default history configuration.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Backend:   "memory",
		KeyPrefix: "coordination:",
	}
}

// DefaultRedisConfig returns the default redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		DB:       0,
		PoolSize: 10,
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "coordination",
		SampleRate:   1.0,
	}
}
