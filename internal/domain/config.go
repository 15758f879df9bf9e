package domain

import "time"

// Config holds the complete ClaimHawk configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Scoring selects the fraud scoring and payout policies
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Intake     IntakeConfig     `json:"intake"`
	Worker     WorkerConfig     `json:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	ReadTimeout   int    `json:"readTimeout"`   // seconds
	WriteTimeout  int    `json:"writeTimeout"`  // seconds
	MaxUploadSize int64  `json:"maxUploadSize"` // bytes
}

// ScoringConfig holds policy selection.
type ScoringConfig struct {
	// Policy is the scoring policy name: "points-v1" or "weighted-v1"
	Policy string `json:"policy"`

	// Payout is the payout policy used in evaluations: "deduction-v1" or "coverage-v1"
	Payout string `json:"payout"`

	// Velocity window for claims_count in custom rules
	VelocityWindowSecs int `json:"velocityWindowSecs"`

	// RulesFile is an optional YAML rule pack loaded at startup
	RulesFile string `json:"rulesFile"`
}

// IntakeConfig configures OCR and transcription providers.
type IntakeConfig struct {
	// Transcriber is "mock" or "openai"
	Transcriber string `json:"transcriber"`

	// Extractor is "mock"
	Extractor string `json:"extractor"`

	OpenAIAPIKey  string `json:"-"`
	OpenAIModel   string `json:"openaiModel"`
	OpenAIBaseURL string `json:"openaiBaseURL,omitempty"`

	// Outbound rate limit per provider
	RatePerSecond float64 `json:"ratePerSecond"`
	Burst         int     `json:"burst"`

	// ResultTTL is how long intake results are cached by content hash
	ResultTTL time.Duration `json:"resultTTL"`

	// HourlyQuota caps provider calls per tenant per hour across nodes.
	// Cache hits are not counted. 0 disables the quota.
	HourlyQuota int64 `json:"hourlyQuota"`
}

// WorkerConfig configures asynchronous claim evaluation.
type WorkerConfig struct {
	Enabled     bool     `json:"enabled"`
	TenantIDs   []string `json:"tenantIds"`
	WorkerCount int      `json:"workerCount"`

	// ShutdownTimeoutSecs bounds the drain of in-flight evaluations on stop
	ShutdownTimeoutSecs int `json:"shutdownTimeoutSecs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// Policy names.
const (
	PolicyPoints    = "points-v1"
	PolicyWeighted  = "weighted-v1"
	PayoutDeduction = "deduction-v1"
	PayoutCoverage  = "coverage-v1"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   30,
			WriteTimeout:  30,
			MaxUploadSize: 20 << 20,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			Policy:             PolicyPoints,
			Payout:             PayoutDeduction,
			VelocityWindowSecs: 30 * 24 * 3600,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./claimhawk.db",
		},
		Cache: CacheConfig{
			Type:            "memory",
			LocalTTL:        5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Intake: IntakeConfig{
			Transcriber:   "mock",
			Extractor:     "mock",
			OpenAIModel:   "whisper-1",
			RatePerSecond: 5,
			Burst:         10,
			ResultTTL:     24 * time.Hour,
		},
		Worker: WorkerConfig{
			Enabled:             false,
			WorkerCount:         5,
			ShutdownTimeoutSecs: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "claimhawk",
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
		PostgresDB:   "claimhawk",
	}
	cfg.Cache = CacheConfig{
		Type:            "redis",
		RedisAddr:       "localhost:6379",
		EnableTwoPhase:  true,
		LocalTTL:        time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
