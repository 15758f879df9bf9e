// Package config loads the ClaimHawk configuration from defaults, an optional
// YAML file, a .env file and CLAIMHAWK_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLAIMHAWK"

// keys are the settings that may be overridden from the environment.
// CLAIMHAWK_SERVER_PORT maps to server.port and so on.
var keys = []string{
	"tier",
	"server.host", "server.port", "server.readtimeout", "server.writetimeout", "server.maxuploadsize",
	"scoring.policy", "scoring.payout", "scoring.velocitywindowsecs", "scoring.rulesfile",
	"repository.driver", "repository.sqlitepath",
	"repository.postgreshost", "repository.postgresport", "repository.postgresuser",
	"repository.postgrespassword", "repository.postgresdb", "repository.postgressslmode",
	"cache.type", "cache.localttl", "cache.redisaddr", "cache.redispassword", "cache.redisdb", "cache.enabletwophase",
	"eventbus.type", "eventbus.channelbuffersize", "eventbus.natsurl", "eventbus.natstoken",
	"intake.transcriber", "intake.extractor", "intake.openaimodel", "intake.openaibaseurl",
	"intake.ratepersecond", "intake.burst", "intake.resultttl", "intake.hourlyquota",
	"worker.enabled", "worker.tenantids", "worker.workercount", "worker.shutdowntimeoutsecs",
	"logging.level", "logging.format",
	"tracing.enabled", "tracing.servicename",
}

// Load builds the configuration. path may be empty. A .env file in the
// working directory is read first when present.
func Load(path string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if err := v.BindEnv("intake.openaiapikey", EnvPrefix+"_INTAKE_OPENAIAPIKEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	switch cfg.Scoring.Policy {
	case "", domain.PolicyPoints, domain.PolicyWeighted:
	default:
		errs = append(errs, fmt.Errorf("unknown scoring.policy %q", cfg.Scoring.Policy))
	}
	switch cfg.Scoring.Payout {
	case "", domain.PayoutDeduction, domain.PayoutCoverage:
	default:
		errs = append(errs, fmt.Errorf("unknown scoring.payout %q", cfg.Scoring.Payout))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown repository.driver %q", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown cache.type %q", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		errs = append(errs, fmt.Errorf("unknown eventBus.type %q", cfg.EventBus.Type))
	}
	if cfg.Intake.Transcriber == "openai" && cfg.Intake.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("intake.transcriber openai requires an API key"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ToYAML renders cfg as YAML. Secrets are omitted.
func ToYAML(cfg *domain.Config) ([]byte, error) {
	// Round trip through JSON so fields tagged json:"-" are dropped.
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return yaml.Marshal(tree)
}
