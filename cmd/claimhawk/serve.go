package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/claimhawk/internal/api"
	"github.com/opensource-finance/claimhawk/internal/bus"
	"github.com/opensource-finance/claimhawk/internal/cache"
	"github.com/opensource-finance/claimhawk/internal/domain"
	"github.com/opensource-finance/claimhawk/internal/fraud"
	"github.com/opensource-finance/claimhawk/internal/intake"
	"github.com/opensource-finance/claimhawk/internal/payout"
	"github.com/opensource-finance/claimhawk/internal/repository"
	"github.com/opensource-finance/claimhawk/internal/rules"
	"github.com/opensource-finance/claimhawk/internal/simulation"
	"github.com/opensource-finance/claimhawk/internal/velocity"
	"github.com/opensource-finance/claimhawk/internal/worker"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and, when enabled, the async worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Stdout)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *domain.Config) error {
	slog.Info("starting claimhawk",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"policy", cfg.Scoring.Policy,
		"payout", cfg.Scoring.Payout,
	)

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	velocitySvc := velocity.NewService(repo, cacheImpl)

	engine, err := rules.NewEngine(velocitySvc.Getter(), cfg.Scoring.VelocityWindowSecs, 100)
	if err != nil {
		return fmt.Errorf("initialize rule engine: %w", err)
	}
	defer engine.Close()

	if err := loadRules(ctx, cfg, repo, engine); err != nil {
		return err
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	simulator, err := newSimulator(cfg.Scoring, engine)
	if err != nil {
		return err
	}

	intakeSvc, err := intake.NewFromConfig(cfg.Intake, cacheImpl)
	if err != nil {
		return fmt.Errorf("initialize intake: %w", err)
	}
	slog.Info("intake initialized",
		"transcriber", cfg.Intake.Transcriber,
		"extractor", cfg.Intake.Extractor,
	)

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, repo, simulator)
		if err := asyncWorker.Start(worker.Config{
			TenantIDs:       cfg.Worker.TenantIDs,
			WorkerCount:     cfg.Worker.WorkerCount,
			ShutdownTimeout: time.Duration(cfg.Worker.ShutdownTimeoutSecs) * time.Second,
		}); err != nil {
			return fmt.Errorf("start async worker: %w", err)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:               repo,
		Cache:              cacheImpl,
		Bus:                busImpl,
		Engine:             engine,
		Simulator:          simulator,
		Intake:             intakeSvc,
		Velocity:           velocitySvc,
		Worker:             asyncWorker,
		VelocityWindowSecs: cfg.Scoring.VelocityWindowSecs,
		Tracing:            cfg.Tracing,
	}, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("claimhawk is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	// Stop consuming before the server goes away
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("claimhawk shutdown complete")
	return serveErr
}

// loadRules builds the rule set from the rule pack file and each worker
// tenant's stored rules, then swaps it into the engine in one step. Stored
// rules that no longer compile are skipped. Other tenants load theirs through
// POST /rules/reload.
func loadRules(ctx context.Context, cfg *domain.Config, repo domain.Repository, engine *rules.Engine) error {
	var configs []*domain.RuleConfig

	if path := cfg.Scoring.RulesFile; path != "" {
		pack, err := rules.LoadPackFile(path)
		if err != nil {
			return err
		}
		if errs := engine.Validate(pack); len(errs) > 0 {
			return fmt.Errorf("rule pack %s: %w", path, errors.Join(errs...))
		}
		configs = append(configs, pack.Rules...)
		slog.Info("rule pack loaded", "path", path, "count", len(pack.Rules))
	}

	for _, tenantID := range cfg.Worker.TenantIDs {
		dbRules, err := repo.ListRuleConfigs(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to list rules from database", "tenant_id", tenantID, "error", err)
			continue
		}
		for _, rule := range dbRules {
			if err := engine.ValidateRule(rule); err != nil {
				slog.Warn("skipping invalid stored rule", "tenant_id", tenantID, "rule_id", rule.ID, "error", err)
				continue
			}
			configs = append(configs, rule)
		}
	}

	if err := engine.ReloadRules(configs); err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	return nil
}

// newSimulator builds the configured scoring and payout policies.
func newSimulator(cfg domain.ScoringConfig, engine *rules.Engine) (*simulation.Simulator, error) {
	var opts []fraud.Option
	if engine != nil {
		opts = append(opts, fraud.WithRuleEvaluator(engine))
	}
	scoring, err := fraud.NewPolicy(cfg.Policy, opts...)
	if err != nil {
		return nil, err
	}
	payoutPolicy, err := payout.New(cfg.Payout)
	if err != nil {
		return nil, err
	}
	return simulation.New(scoring, simulation.WithPayoutPolicy(payoutPolicy)), nil
}
