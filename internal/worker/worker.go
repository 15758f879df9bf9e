// Package worker evaluates submitted claims asynchronously from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/claimhawk/internal/domain"
	"github.com/opensource-finance/claimhawk/internal/simulation"
)

// GlobalTenant is the subscription tenant used when no tenants are configured.
const GlobalTenant = domain.AllTenants

// DefaultShutdownTimeout is how long Stop waits for in-flight evaluations
// before cancelling them.
const DefaultShutdownTimeout = 30 * time.Second

// Worker evaluates claims published on the submitted topic.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	simulator *simulation.Simulator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	stopping      bool
	grace         time.Duration

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global subscription)
	TenantIDs []string

	// WorkerCount bounds concurrent evaluations across all tenants
	WorkerCount int

	// ShutdownTimeout bounds how long Stop waits for in-flight evaluations
	ShutdownTimeout time.Duration
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, simulator *simulation.Simulator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		simulator: simulator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if w.repo == nil || w.simulator == nil {
		return errors.New("worker requires a repository and a simulator")
	}

	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}
	w.sem = make(chan struct{}, count)

	w.grace = cfg.ShutdownTimeout
	if w.grace <= 0 {
		w.grace = DefaultShutdownTimeout
	}

	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenant}
	}

	for _, tenantID := range tenants {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(tenants),
		"worker_count", count,
	)

	return nil
}

// startTenantWorker subscribes to the submitted topic for one tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicClaimSubmitted, w.dispatch)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicClaimSubmitted,
	)

	return nil
}

// dispatch hands a message to a pool slot so slow evaluations do not block
// the subscription. Evaluations run on the worker's context, not the
// subscription's, so Stop can drain them after unsubscribing.
func (w *Worker) dispatch(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		<-w.sem
		return errors.New("worker is stopping")
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		if err := w.processClaim(w.ctx, msg); err != nil {
			slog.Error("claim evaluation failed",
				"message_id", msg.ID,
				"tenant_id", msg.TenantID,
				"error", err,
			)
		}
	}()
	return nil
}

// processClaim evaluates a submitted claim and publishes the outcome.
func (w *Worker) processClaim(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.ClaimEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("parse claim event: %w", err)
	}
	if event.ClaimID == "" {
		return errors.New("claim event without claimId")
	}

	tenantID := event.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}

	traceID := event.TraceID
	if traceID == "" {
		traceID = msg.Metadata["trace_id"]
	}
	if traceID == "" {
		traceID = msg.ID
	}
	ctx = domain.WithTraceID(ctx, traceID)

	slog.Debug("processing claim",
		"claim_id", event.ClaimID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	claim, err := w.repo.GetClaim(ctx, tenantID, event.ClaimID)
	if err != nil {
		return fmt.Errorf("load claim %s: %w", event.ClaimID, err)
	}

	result := w.simulator.Evaluate(ctx, claim)
	status := simulation.NextStatus(result)

	if err := w.repo.SaveSimulation(ctx, tenantID, claim.ID, result, status); err != nil {
		return fmt.Errorf("save simulation for %s: %w", claim.ID, err)
	}

	payload, err := json.Marshal(domain.ClaimEvent{
		ClaimID:    claim.ID,
		TenantID:   tenantID,
		TraceID:    traceID,
		Status:     status,
		Simulation: result,
	})
	if err != nil {
		return err
	}

	if err := w.bus.Publish(ctx, tenantID, domain.TopicClaimEvaluated, payload); err != nil {
		slog.Error("failed to publish evaluation",
			"claim_id", claim.ID,
			"error", err,
		)
	}

	if status == domain.StatusFraudReview {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicClaimFlagged, payload); err != nil {
			slog.Error("failed to publish fraud flag",
				"claim_id", claim.ID,
				"error", err,
			)
		}
	}

	slog.Info("claim evaluated",
		"claim_id", claim.ID,
		"tenant_id", tenantID,
		"trace_id", traceID,
		"status", status,
		"fraud_score", result.FraudScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop unsubscribes, waits for in-flight evaluations up to the shutdown
// timeout and then cancels whatever is still running.
func (w *Worker) Stop() error {
	w.mu.Lock()
	w.stopping = true
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	grace := w.grace
	if grace <= 0 {
		grace = DefaultShutdownTimeout
	}
	select {
	case <-done:
	case <-time.After(grace):
		slog.Warn("cancelling in-flight evaluations", "timeout", grace)
		w.cancel()
		<-done
	}
	w.cancel()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
