package domain

import "time"

// EngineConfig holds the named scoring constants. They are injected into the
// evaluator and scorer so alternate policy strictness can be tested without
// code changes.
type EngineConfig struct {
	// RequiredConfidence is the minimum confidence for REQUIRED and
	// value-comparison rules to be evaluated at all.
	RequiredConfidence float64 `json:"requiredConfidence" yaml:"required_confidence"`

	// ForbiddenConfidence is the minimum confidence at which a present
	// forbidden clause counts as a violation.
	ForbiddenConfidence float64 `json:"forbiddenConfidence" yaml:"forbidden_confidence"`

	// MaxScore is the starting score before deductions.
	MaxScore int `json:"maxScore" yaml:"max_score"`

	// CriticalCap caps the score whenever a critical violation exists.
	CriticalCap int `json:"criticalCap" yaml:"critical_cap"`

	// CompliantMin and ReviewMin are the raw-score status boundaries.
	CompliantMin int `json:"compliantMin" yaml:"compliant_min"`
	ReviewMin    int `json:"reviewMin" yaml:"review_min"`

	// NonCompliantEffective is the effective-score floor below which the
	// overall status and the deal decision turn NON_COMPLIANT / NO_GO.
	NonCompliantEffective int `json:"nonCompliantEffective" yaml:"non_compliant_effective"`
}

// DefaultEngineConfig returns the production scoring constants.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RequiredConfidence:    0.5,
		ForbiddenConfidence:   0.6,
		MaxScore:              100,
		CriticalCap:           40,
		CompliantMin:          80,
		ReviewMin:             50,
		NonCompliantEffective: 60,
	}
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels.
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"service_name"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
}

// Config holds the complete Covenant configuration.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`

	Tier Tier `json:"tier" yaml:"tier"`

	Engine EngineConfig `json:"engine" yaml:"engine"`

	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:   TierCommunity,
		Engine: DefaultEngineConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./covenant.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "covenant",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "covenant",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
