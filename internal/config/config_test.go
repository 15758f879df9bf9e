package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, domain.DefaultConfig()) {
		t.Errorf("expected community defaults, got %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "claimhawk.yaml", `
server:
  port: 9090
scoring:
  policy: weighted-v1
  payout: coverage-v1
repository:
  sqlitePath: /tmp/claims.db
intake:
  resultTTL: 2h
worker:
  enabled: true
  tenantIds: [acme, globex]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host to survive, got %q", cfg.Server.Host)
	}
	if cfg.Scoring.Policy != domain.PolicyWeighted || cfg.Scoring.Payout != domain.PayoutCoverage {
		t.Errorf("unexpected scoring config %+v", cfg.Scoring)
	}
	if cfg.Repository.SQLitePath != "/tmp/claims.db" {
		t.Errorf("unexpected sqlite path %q", cfg.Repository.SQLitePath)
	}
	if cfg.Intake.ResultTTL != 2*time.Hour {
		t.Errorf("expected result TTL 2h, got %v", cfg.Intake.ResultTTL)
	}
	if !cfg.Worker.Enabled || !reflect.DeepEqual(cfg.Worker.TenantIDs, []string{"acme", "globex"}) {
		t.Errorf("unexpected worker config %+v", cfg.Worker)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLAIMHAWK_SERVER_PORT", "7000")
	t.Setenv("CLAIMHAWK_SCORING_POLICY", "weighted-v1")
	t.Setenv("CLAIMHAWK_WORKER_TENANTIDS", "a,b,c")
	t.Setenv("CLAIMHAWK_LOGGING_LEVEL", "debug")
	t.Setenv("CLAIMHAWK_INTAKE_OPENAIBASEURL", "http://whisper.internal/v1")
	t.Setenv("CLAIMHAWK_INTAKE_HOURLYQUOTA", "200")
	t.Setenv("CLAIMHAWK_TRACING_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Scoring.Policy != domain.PolicyWeighted {
		t.Errorf("expected weighted policy, got %s", cfg.Scoring.Policy)
	}
	if !reflect.DeepEqual(cfg.Worker.TenantIDs, []string{"a", "b", "c"}) {
		t.Errorf("unexpected tenants %v", cfg.Worker.TenantIDs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Intake.OpenAIBaseURL != "http://whisper.internal/v1" {
		t.Errorf("unexpected OpenAI base URL %q", cfg.Intake.OpenAIBaseURL)
	}
	if cfg.Intake.HourlyQuota != 200 {
		t.Errorf("expected hourly quota 200, got %d", cfg.Intake.HourlyQuota)
	}
	if !cfg.Tracing.Enabled {
		t.Error("expected tracing enabled")
	}
}

func TestLoadProTier(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLAIMHAWK_TIER", "pro")
	t.Setenv("CLAIMHAWK_CACHE_REDISADDR", "redis:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tier != domain.TierPro {
		t.Errorf("expected pro tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "postgres" || cfg.EventBus.Type != "nats" {
		t.Errorf("expected pro components, got %s/%s", cfg.Repository.Driver, cfg.EventBus.Type)
	}
	if cfg.Cache.RedisAddr != "redis:6379" {
		t.Errorf("expected redis override, got %s", cfg.Cache.RedisAddr)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "CLAIMHAWK_SCORING_PAYOUT=coverage-v1\nOPENAI_API_KEY=sk-test\n")
	t.Cleanup(func() {
		os.Unsetenv("CLAIMHAWK_SCORING_PAYOUT")
		os.Unsetenv("OPENAI_API_KEY")
	})

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scoring.Payout != domain.PayoutCoverage {
		t.Errorf("expected payout from .env, got %s", cfg.Scoring.Payout)
	}
	if cfg.Intake.OpenAIAPIKey != "sk-test" {
		t.Error("expected OpenAI key from OPENAI_API_KEY")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("UnknownPolicy", func(t *testing.T) {
		path := writeFile(t, dir, "bad.yaml", "scoring:\n  policy: magic-v9\n")
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "magic-v9") {
			t.Errorf("expected policy error, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
		valid  bool
	}{
		{"defaults", func(*domain.Config) {}, true},
		{"bad port", func(c *domain.Config) { c.Server.Port = 0 }, false},
		{"bad payout", func(c *domain.Config) { c.Scoring.Payout = "flat" }, false},
		{"bad driver", func(c *domain.Config) { c.Repository.Driver = "mysql" }, false},
		{"bad cache", func(c *domain.Config) { c.Cache.Type = "memcached" }, false},
		{"bad bus", func(c *domain.Config) { c.EventBus.Type = "kafka" }, false},
		{"openai without key", func(c *domain.Config) { c.Intake.Transcriber = "openai" }, false},
		{"openai with key", func(c *domain.Config) {
			c.Intake.Transcriber = "openai"
			c.Intake.OpenAIAPIKey = "k"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestToYAMLHidesSecrets(t *testing.T) {
	cfg := domain.ProConfig()
	cfg.Repository.PostgresPassword = "hunter2"
	cfg.Cache.RedisPassword = "redis-secret"
	cfg.Intake.OpenAIAPIKey = "sk-live"

	out, err := ToYAML(cfg)
	if err != nil {
		t.Fatalf("ToYAML failed: %v", err)
	}
	for _, secret := range []string{"hunter2", "redis-secret", "sk-live"} {
		if strings.Contains(string(out), secret) {
			t.Errorf("secret %q leaked into output", secret)
		}
	}

	var tree map[string]any
	if err := yaml.Unmarshal(out, &tree); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if tree["tier"] != "pro" {
		t.Errorf("expected tier pro, got %v", tree["tier"])
	}
}
