package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/claimhawk/internal/domain"
	"github.com/opensource-finance/claimhawk/internal/intake"
	"github.com/opensource-finance/claimhawk/internal/payout"
	"github.com/opensource-finance/claimhawk/internal/repository"
	"github.com/opensource-finance/claimhawk/internal/rules"
	"github.com/opensource-finance/claimhawk/internal/simulation"
	"github.com/opensource-finance/claimhawk/internal/velocity"
	"github.com/opensource-finance/claimhawk/internal/worker"
)

// DefaultMaxUploadSize bounds multipart uploads when no limit is configured.
const DefaultMaxUploadSize = 20 << 20

// Deps are the services the handlers use. Repo and Simulator are required;
// the rest may be nil and disable the endpoints that need them.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *rules.Engine
	Simulator *simulation.Simulator
	Intake    *intake.Service
	Velocity  *velocity.Service
	Worker    *worker.Worker

	// VelocityWindowSecs is the claims_count window invalidated on new claims
	VelocityWindowSecs int
	MaxUploadSize      int64

	// Tracing gates request spans. TracerProvider defaults to the global one.
	Tracing        domain.TracingConfig
	TracerProvider trace.TracerProvider
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	simulator *simulation.Simulator
	intake    *intake.Service
	velocity  *velocity.Service
	worker    *worker.Worker
	coverage  payout.Policy

	velocityWindow int
	maxUpload      int64
	version        string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	maxUpload := deps.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}
	return &Handler{
		repo:           deps.Repo,
		cache:          deps.Cache,
		bus:            deps.Bus,
		engine:         deps.Engine,
		simulator:      deps.Simulator,
		intake:         deps.Intake,
		velocity:       deps.Velocity,
		worker:         deps.Worker,
		coverage:       payout.NewCoveragePolicy(),
		velocityWindow: deps.VelocityWindowSecs,
		maxUpload:      maxUpload,
		version:        version,
	}
}

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	body := map[string]any{
		"status":  status,
		"version": h.version,
	}
	if h.worker != nil {
		body["worker"] = h.worker.GetStats()
	}
	writeData(w, http.StatusOK, body)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.simulator == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	if err := h.repo.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"ready":  true,
		"policy": h.simulator.Policy().Name(),
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Version     string  `json:"version,omitempty"`
	Expression  string  `json:"expression"`
	Points      float64 `json:"points"`
	Factor      string  `json:"factor,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// ListRules returns the rules loaded in the engine for the tenant, including
// global rules from the rule pack.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	loaded := h.engine.GetLoadedRules(GetTenantID(r.Context()))
	writeData(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateRule validates a rule, stores it for the tenant and loads it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}

	version := req.Version
	if version == "" {
		version = "1.0.0"
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     version,
		Expression:  req.Expression,
		Points:      req.Points,
		Factor:      req.Factor,
		Enabled:     enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, tenantID, rule); err != nil {
		slog.Error("failed to save rule config", "id", rule.ID, "tenant_id", tenantID, "error", err)
		writeRepoError(w, err)
		return
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(rule); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load rule: "+err.Error())
			return
		}
	} else {
		h.engine.UnloadRule(tenantID, rule.ID)
	}

	slog.Info("rule saved", "id", rule.ID, "tenant_id", tenantID, "enabled", rule.Enabled)
	writeData(w, http.StatusCreated, rule)
}

// ReloadRules replaces the tenant's loaded rules with those in the database.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "rule engine not available")
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "tenant_id", tenantID, "error", err)
		writeRepoError(w, err)
		return
	}

	if err := h.engine.ReloadTenantRules(tenantID, dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from database", "tenant_id", tenantID, "count", len(dbRules))
	writeData(w, http.StatusOK, map[string]any{
		"count":  len(dbRules),
		"loaded": len(h.engine.GetLoadedRules(tenantID)),
	})
}

// DeleteRule removes a tenant rule from the database and the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteRuleConfig(ctx, tenantID, ruleID); err != nil {
		writeRepoError(w, err)
		return
	}
	if h.engine != nil {
		h.engine.UnloadRule(tenantID, ruleID)
	}

	slog.Info("rule deleted", "id", ruleID, "tenant_id", tenantID)
	writeData(w, http.StatusOK, map[string]string{"id": ruleID})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

// writeRepoError maps repository sentinel errors onto HTTP statuses.
func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
