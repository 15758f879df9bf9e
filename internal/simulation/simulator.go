// Package simulation implements the claim simulation orchestrator.
// It composes fraud scoring, gap analysis and payout into a single decision.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/claimhawk/internal/domain"
	"github.com/opensource-finance/claimhawk/internal/fraud"
	"github.com/opensource-finance/claimhawk/internal/gaps"
	"github.com/opensource-finance/claimhawk/internal/payout"
)

var tracer = otel.Tracer("claimhawk-simulation")

const (
	// FallbackScore is reported when evaluation fails.
	FallbackScore = 100.0

	// FraudReviewThreshold is the unit-scale score above which a claim goes to fraud review.
	FraudReviewThreshold = 0.7

	minDescriptionLength = 20

	fallbackRecommendation = "Evaluation could not be completed: route to manual review"
)

// Simulator produces a SimulationResult for a claim.
// It holds no mutable state and is safe for concurrent use.
type Simulator struct {
	scoring  fraud.ScoringPolicy
	approval fraud.ApprovalPolicy
	payout   payout.Policy
	logger   *slog.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithApprovalPolicy overrides the approval thresholds.
func WithApprovalPolicy(p fraud.ApprovalPolicy) Option {
	return func(s *Simulator) { s.approval = p }
}

// WithPayoutPolicy sets the payout policy attached by Evaluate.
func WithPayoutPolicy(p payout.Policy) Option {
	return func(s *Simulator) { s.payout = p }
}

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// New creates a Simulator around the given scoring policy.
func New(scoring fraud.ScoringPolicy, opts ...Option) *Simulator {
	s := &Simulator{
		scoring:  scoring,
		approval: fraud.DefaultApproval,
		payout:   payout.NewDeductionPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the scoring policy in use.
func (s *Simulator) Policy() fraud.ScoringPolicy {
	return s.scoring
}

// Simulate scores the claim and decides approval. It never returns an error:
// any failure yields the fail-closed fallback result.
func (s *Simulator) Simulate(ctx context.Context, claim *domain.Claim) *domain.SimulationResult {
	result, _ := s.run(ctx, claim)
	return result
}

// Evaluate runs Simulate and attaches the gap analysis and payout breakdown.
func (s *Simulator) Evaluate(ctx context.Context, claim *domain.Claim) *domain.SimulationResult {
	ctx, span := tracer.Start(ctx, "simulation.Evaluate",
		trace.WithAttributes(attribute.String("scoring.policy", s.policyName())),
	)
	defer span.End()

	result, analysis := s.run(ctx, claim)
	if isFallback(result) {
		span.SetStatus(codes.Error, "evaluation fell back")
		return result
	}

	gapAnalysis := gaps.Analyze(claim)
	result.GapAnalysis = &gapAnalysis

	if s.payout != nil {
		p := s.payout.Calculate(claim, payout.Assessment{
			Fraud:    analysis,
			GapCount: len(gapAnalysis.IdentifiedGaps),
		})
		result.Payout = &p
	}

	span.SetAttributes(
		attribute.Float64("fraud.score", result.FraudScore),
		attribute.String("fraud.risk_level", string(result.RiskLevel)),
		attribute.Bool("approved", result.Approved),
	)
	return result
}

func (s *Simulator) run(ctx context.Context, claim *domain.Claim) (result *domain.SimulationResult, analysis domain.FraudAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("claim simulation panicked", "claim_id", claimID(claim), "error", r)
			result = Fallback()
		}
	}()

	if s.scoring == nil {
		s.logger.Error("claim simulation has no scoring policy", "claim_id", claimID(claim))
		return Fallback(), analysis
	}

	analysis, err := s.scoring.Score(ctx, claim)
	if err != nil {
		s.logger.Error("fraud scoring failed", "claim_id", claimID(claim), "policy", s.scoring.Name(), "error", err)
		return Fallback(), analysis
	}

	base := claim.ClaimedAmount()
	result = &domain.SimulationResult{
		Gaps:           []string{},
		RulesTriggered: []string{},
		FraudScore:     analysis.Score,
		FraudScale:     analysis.Scale,
		Policy:         analysis.Policy,
		RiskLevel:      analysis.RiskLevel,
		RiskFactors:    analysis.RiskFactors,
	}

	// Approval branch
	switch s.approval.Decide(analysis.Score, analysis.Scale) {
	case fraud.DecisionAutoApprove:
		result.Approved = true
		result.AutoApproved = true
		result.ApprovedAmount = base
		result.RulesTriggered = append(result.RulesTriggered, domain.RuleAutoApproved)
	case fraud.DecisionPartial:
		result.Approved = true
		result.ApprovedAmount = math.Floor(base * s.approval.PartialRate)
		result.RulesTriggered = append(result.RulesTriggered, domain.RulePartialApproval)
	default:
		result.RulesTriggered = append(result.RulesTriggered, domain.RuleHighRiskRejection)
	}

	// Completeness checks, independent of the score
	for _, c := range checks {
		if c.match(claim) {
			if c.gap != "" {
				result.Gaps = append(result.Gaps, c.gap)
			}
			result.RulesTriggered = append(result.RulesTriggered, c.rule)
		}
	}

	result.Recommendations = recommendations(analysis.RiskLevel, result)
	return result, analysis
}

func (s *Simulator) policyName() string {
	if s.scoring == nil {
		return ""
	}
	return s.scoring.Name()
}

type check struct {
	rule  string
	gap   string
	match func(*domain.Claim) bool
}

var checks = []check{
	{
		rule:  domain.RuleMissingDocuments,
		gap:   "No supporting documents provided",
		match: func(c *domain.Claim) bool { return c.DocumentCount() == 0 },
	},
	{
		rule:  domain.RuleInsufficientDesc,
		gap:   "Claim description is too short",
		match: func(c *domain.Claim) bool { return len(strings.TrimSpace(description(c))) < minDescriptionLength },
	},
	{
		rule:  domain.RuleMissingIncidentDate,
		gap:   "Incident date not provided",
		match: func(c *domain.Claim) bool { return c == nil || c.ClaimDetails.IncidentDate == nil },
	},
	{
		rule: domain.RuleLowVoiceConfidence,
		gap:  "Voice statement has low recognition confidence",
		match: func(c *domain.Claim) bool {
			conf, ok := c.VoiceConfidence()
			return ok && conf < fraud.MinVoiceConfidence
		},
	},
	{
		// Routing flag rather than a missing item
		rule:  domain.RuleSeniorReviewRequired,
		match: func(c *domain.Claim) bool { return c.ClaimedAmount() > fraud.HighAmountThreshold },
	},
}

func description(c *domain.Claim) string {
	if c == nil {
		return ""
	}
	return c.Description
}

// Fallback returns the fail-closed result used when evaluation cannot complete.
func Fallback() *domain.SimulationResult {
	return &domain.SimulationResult{
		Approved:        false,
		ApprovedAmount:  0,
		Gaps:            []string{},
		RulesTriggered:  []string{domain.RuleSystemError},
		FraudScore:      FallbackScore,
		FraudScale:      domain.ScalePoints,
		AutoApproved:    false,
		Recommendations: []string{fallbackRecommendation},
	}
}

func isFallback(r *domain.SimulationResult) bool {
	for _, tag := range r.RulesTriggered {
		if tag == domain.RuleSystemError {
			return true
		}
	}
	return false
}

// NextStatus maps a result to the claim status transition.
func NextStatus(r *domain.SimulationResult) domain.ClaimStatus {
	switch {
	case r == nil || isFallback(r):
		return domain.StatusManualReview
	case r.AutoApproved:
		return domain.StatusApproved
	case domain.ConvertScore(r.FraudScore, scaleOf(r), domain.ScaleUnit) > FraudReviewThreshold:
		return domain.StatusFraudReview
	default:
		return domain.StatusManualReview
	}
}

func scaleOf(r *domain.SimulationResult) domain.Scale {
	if r.FraudScale == "" {
		return domain.ScalePoints
	}
	return r.FraudScale
}

func claimID(c *domain.Claim) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func recommendations(level domain.RiskLevel, r *domain.SimulationResult) []string {
	recs := make([]string, 0, 4)
	switch level {
	case domain.RiskHigh:
		recs = append(recs, "High fraud risk: refer to the special investigations unit")
	case domain.RiskMedium:
		recs = append(recs, "Moderate fraud risk: route to manual review")
	default:
		recs = append(recs, "Low fraud risk: eligible for fast-track processing")
	}

	if n := len(r.Gaps); n > 0 {
		recs = append(recs, fmt.Sprintf("Request additional information to resolve %d gap(s)", n))
		if n >= 3 {
			recs = append(recs, "Claim file is incomplete: hold settlement until missing items are received")
		}
	}
	for _, tag := range r.RulesTriggered {
		if tag == domain.RuleSeniorReviewRequired {
			recs = append(recs, "Claim amount exceeds standard authority: assign a senior adjuster")
		}
	}
	return recs
}
