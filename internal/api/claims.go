package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/claimhawk/internal/domain"
	"github.com/opensource-finance/claimhawk/internal/gaps"
	"github.com/opensource-finance/claimhawk/internal/intake"
	"github.com/opensource-finance/claimhawk/internal/payout"
	"github.com/opensource-finance/claimhawk/internal/simulation"
)

// ClaimRequest is the request body for POST /claims and POST /simulate.
type ClaimRequest struct {
	ID              string              `json:"id,omitempty"`
	ClaimantID      string              `json:"claimantId"`
	PolicyNumber    string              `json:"policyNumber"`
	Type            domain.ClaimType    `json:"type"`
	Amount          float64             `json:"amount"`
	EstimatedAmount float64             `json:"estimatedAmount"`
	Description     string              `json:"description"`
	Documents       []domain.Document   `json:"documents,omitempty"`
	VoiceData       *domain.VoiceData   `json:"voiceData,omitempty"`
	ClaimDetails    domain.ClaimDetails `json:"claimDetails"`
	SubmittedAt     time.Time           `json:"submittedAt,omitzero"`
}

func (req ClaimRequest) validate() error {
	if req.Type != "" && !req.Type.Valid() {
		return fmt.Errorf("unsupported claim type %q", req.Type)
	}
	if req.Amount < 0 || req.EstimatedAmount < 0 {
		return errors.New("amounts must not be negative")
	}
	return nil
}

func (req ClaimRequest) claim(tenantID string) *domain.Claim {
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	submitted := req.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}
	docs := req.Documents
	if docs == nil {
		docs = []domain.Document{}
	}
	return &domain.Claim{
		ID:              id,
		TenantID:        tenantID,
		ClaimantID:      req.ClaimantID,
		PolicyNumber:    req.PolicyNumber,
		Type:            req.Type,
		Amount:          req.Amount,
		EstimatedAmount: req.EstimatedAmount,
		Description:     req.Description,
		Documents:       docs,
		VoiceData:       req.VoiceData,
		ClaimDetails:    req.ClaimDetails,
		Status:          domain.StatusPending,
		SubmittedAt:     submitted,
	}
}

// EvaluationResponse is returned by the evaluation endpoints.
type EvaluationResponse struct {
	ClaimID    string                   `json:"claimId"`
	Status     domain.ClaimStatus       `json:"status"`
	Simulation *domain.SimulationResult `json:"simulation,omitempty"`
	Queued     bool                     `json:"queued,omitempty"`
	TraceID    string                   `json:"traceId,omitempty"`
}

// StatusRequest is the body for PATCH /claims/{id}/status.
type StatusRequest struct {
	Status domain.ClaimStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
}

// CreateClaim handles POST /claims.
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claim := req.claim(tenantID)
	if err := h.repo.CreateClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to save claim", "tenant_id", tenantID, "error", err)
		writeRepoError(w, err)
		return
	}
	if h.velocity != nil {
		h.velocity.Invalidate(ctx, tenantID, claim.ClaimantID, h.velocityWindow)
	}

	slog.Info("claim created",
		"claim_id", claim.ID,
		"tenant_id", tenantID,
		"type", claim.Type,
		"trace_id", GetTraceID(ctx),
	)
	writeData(w, http.StatusCreated, claim)
}

// ListClaims handles GET /claims.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := domain.ClaimFilter{
		Status:     domain.ClaimStatus(q.Get("status")),
		ClaimantID: q.Get("claimantId"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(filter.Status))
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	claims, err := h.repo.ListClaims(ctx, GetTenantID(ctx), filter)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"claims": claims,
		"count":  len(claims),
	})
}

// GetClaim handles GET /claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, ok := h.loadClaim(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, claim)
}

// UpdateClaimStatus records a reviewer decision.
func (h *Handler) UpdateClaimStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(req.Status))
		return
	}

	if err := h.repo.UpdateClaimStatus(ctx, tenantID, claimID, req.Status); err != nil {
		writeRepoError(w, err)
		return
	}

	slog.Info("claim status updated",
		"claim_id", claimID,
		"tenant_id", tenantID,
		"status", req.Status,
		"reason", req.Reason,
	)

	claim, ok := h.loadClaim(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, claim)
}

// UploadDocument handles POST /claims/{id}/documents with a multipart
// "file" part and an optional "type" field.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if h.intake == nil {
		writeError(w, http.StatusServiceUnavailable, "document intake not available")
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	claim, ok := h.loadClaim(w, r)
	if !ok {
		return
	}

	data, header, ok := h.readUpload(w, r, "file")
	if !ok {
		return
	}

	doc, err := h.intake.Extract(ctx, tenantID, domain.Upload{
		Filename:    header.filename,
		ContentType: header.contentType,
		DocType:     r.FormValue("type"),
		Data:        data,
	})
	if err != nil {
		writeIntakeError(w, err)
		return
	}

	if err := h.repo.AddDocument(ctx, tenantID, claim.ID, *doc); err != nil {
		writeRepoError(w, err)
		return
	}

	slog.Info("document attached",
		"claim_id", claim.ID,
		"tenant_id", tenantID,
		"document_id", doc.ID,
		"type", doc.Type,
	)
	writeData(w, http.StatusCreated, doc)
}

// UploadVoice handles POST /claims/{id}/voice with a multipart "audio" part.
func (h *Handler) UploadVoice(w http.ResponseWriter, r *http.Request) {
	if h.intake == nil {
		writeError(w, http.StatusServiceUnavailable, "voice intake not available")
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	claim, ok := h.loadClaim(w, r)
	if !ok {
		return
	}

	data, header, ok := h.readUpload(w, r, "audio")
	if !ok {
		return
	}

	voice, err := h.intake.Transcribe(ctx, tenantID, domain.Audio{
		Filename:    header.filename,
		ContentType: header.contentType,
		Data:        data,
	})
	if err != nil {
		writeIntakeError(w, err)
		return
	}

	if err := h.repo.SetVoiceData(ctx, tenantID, claim.ID, voice); err != nil {
		writeRepoError(w, err)
		return
	}

	slog.Info("voice statement attached",
		"claim_id", claim.ID,
		"tenant_id", tenantID,
		"confidence", voice.Confidence,
	)
	writeData(w, http.StatusCreated, voice)
}

// EvaluateClaim handles POST /claims/{id}/evaluate. With ?async=true the
// claim is queued for the worker instead.
func (h *Handler) EvaluateClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	claim, ok := h.loadClaim(w, r)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if h.bus == nil {
			writeError(w, http.StatusServiceUnavailable, "event bus not available")
			return
		}
		payload, _ := json.Marshal(domain.ClaimEvent{ClaimID: claim.ID, TenantID: tenantID, TraceID: traceID})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicClaimSubmitted, payload); err != nil {
			slog.Error("failed to queue claim", "claim_id", claim.ID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "failed to queue claim")
			return
		}
		writeData(w, http.StatusAccepted, EvaluationResponse{
			ClaimID: claim.ID,
			Status:  claim.Status,
			Queued:  true,
			TraceID: traceID,
		})
		return
	}

	result := h.simulator.Evaluate(ctx, claim)
	status := simulation.NextStatus(result)

	if err := h.repo.SaveSimulation(ctx, tenantID, claim.ID, result, status); err != nil {
		slog.Error("failed to save simulation", "claim_id", claim.ID, "error", err)
		writeRepoError(w, err)
		return
	}
	h.publishOutcome(ctx, tenantID, claim.ID, status, result)

	slog.Info("claim evaluated",
		"claim_id", claim.ID,
		"tenant_id", tenantID,
		"trace_id", traceID,
		"status", status,
		"fraud_score", result.FraudScore,
	)
	writeData(w, http.StatusOK, EvaluationResponse{
		ClaimID:    claim.ID,
		Status:     status,
		Simulation: result,
		TraceID:    traceID,
	})
}

// ClaimGaps handles GET /claims/{id}/gaps.
func (h *Handler) ClaimGaps(w http.ResponseWriter, r *http.Request) {
	claim, ok := h.loadClaim(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, gaps.Analyze(claim))
}

// CalculatePayout handles POST /claims/{id}/calculate-payout using the
// coverage policy.
func (h *Handler) CalculatePayout(w http.ResponseWriter, r *http.Request) {
	claim, ok := h.loadClaim(w, r)
	if !ok {
		return
	}

	analysis := gaps.Analyze(claim)
	assessment := payout.Assessment{GapCount: len(analysis.IdentifiedGaps)}
	if sim := claim.Simulation; sim != nil {
		assessment.Fraud = domain.FraudAnalysis{
			Policy:      sim.Policy,
			Score:       sim.FraudScore,
			Scale:       sim.FraudScale,
			RiskLevel:   sim.RiskLevel,
			RiskFactors: sim.RiskFactors,
		}
	}

	writeData(w, http.StatusOK, h.coverage.Calculate(claim, assessment))
}

// Simulate handles POST /simulate: a stateless evaluation of a claim payload.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claim := req.claim(GetTenantID(ctx))
	if req.SubmittedAt.IsZero() {
		// Off-hours is a property of real submissions only
		claim.SubmittedAt = time.Time{}
	}

	result := h.simulator.Evaluate(ctx, claim)
	writeData(w, http.StatusOK, EvaluationResponse{
		ClaimID:    claim.ID,
		Status:     simulation.NextStatus(result),
		Simulation: result,
		TraceID:    GetTraceID(ctx),
	})
}

// publishOutcome emits evaluated and, for fraud review, flagged events.
func (h *Handler) publishOutcome(ctx context.Context, tenantID, claimID string, status domain.ClaimStatus, result *domain.SimulationResult) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.ClaimEvent{
		ClaimID:    claimID,
		TenantID:   tenantID,
		TraceID:    domain.TraceIDFromContext(ctx),
		Status:     status,
		Simulation: result,
	})
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, tenantID, domain.TopicClaimEvaluated, payload); err != nil {
		slog.Error("failed to publish evaluation", "claim_id", claimID, "error", err)
	}
	if status == domain.StatusFraudReview {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicClaimFlagged, payload); err != nil {
			slog.Error("failed to publish fraud flag", "claim_id", claimID, "error", err)
		}
	}
}

func (h *Handler) loadClaim(w http.ResponseWriter, r *http.Request) (*domain.Claim, bool) {
	ctx := r.Context()
	claim, err := h.repo.GetClaim(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return nil, false
	}
	return claim, true
}

type uploadHeader struct {
	filename    string
	contentType string
}

// readUpload reads one multipart part, enforcing the upload size limit.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, uploadHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		} else {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
		}
		return nil, uploadHeader{}, false
	}

	file, fh, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing multipart field "+field)
		return nil, uploadHeader{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return nil, uploadHeader{}, false
	}

	return data, uploadHeader{
		filename:    fh.Filename,
		contentType: fh.Header.Get("Content-Type"),
	}, true
}

func writeIntakeError(w http.ResponseWriter, err error) {
	if errors.Is(err, intake.ErrEmptyUpload) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, intake.ErrQuotaExceeded) {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	slog.Error("intake provider failed", "error", err)
	writeError(w, http.StatusBadGateway, "intake provider failed")
}
