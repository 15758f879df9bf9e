// Package fraud provides the rule-based fraud scoring policies.
package fraud

import (
	"context"
	"fmt"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// ScoringPolicy maps a claim to a fraud analysis.
// Implementations must be deterministic and must tolerate missing optional fields.
type ScoringPolicy interface {
	Name() string
	Version() string
	Scale() domain.Scale
	Score(ctx context.Context, claim *domain.Claim) (domain.FraudAnalysis, error)
}

// RuleEvaluator contributes extra points from custom rules.
type RuleEvaluator interface {
	EvaluateClaim(ctx context.Context, claim *domain.Claim) ([]domain.RuleHit, error)
}

// RiskLevelPolicy buckets a score into a risk band.
type RiskLevelPolicy struct {
	High   float64
	Medium float64
	Scale  domain.Scale
}

// DefaultRiskLevels is the "riskLevel" policy: >=50 high, >=25 medium.
var DefaultRiskLevels = RiskLevelPolicy{High: 50, Medium: 25, Scale: domain.ScalePoints}

// Level returns the risk band for score, converting it to the policy scale first.
func (p RiskLevelPolicy) Level(score float64, scale domain.Scale) domain.RiskLevel {
	s := domain.ConvertScore(score, scale, p.Scale)
	switch {
	case s >= p.High:
		return domain.RiskHigh
	case s >= p.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Decision is the outcome of the approval policy.
type Decision string

const (
	DecisionAutoApprove Decision = "auto_approve"
	DecisionPartial     Decision = "partial_approve"
	DecisionReject      Decision = "reject"
)

// ApprovalPolicy decides approval from a score.
// It is a separate policy from RiskLevelPolicy and uses its own thresholds.
type ApprovalPolicy struct {
	AutoApproveBelow float64
	PartialBelow     float64
	PartialRate      float64
	Scale            domain.Scale
}

// DefaultApproval is the "approval" policy: <30 auto, <60 partial at 80%, else reject.
var DefaultApproval = ApprovalPolicy{
	AutoApproveBelow: 30,
	PartialBelow:     60,
	PartialRate:      0.8,
	Scale:            domain.ScalePoints,
}

// Decide returns the approval decision for score, converting it to the policy scale first.
func (p ApprovalPolicy) Decide(score float64, scale domain.Scale) Decision {
	s := domain.ConvertScore(score, scale, p.Scale)
	switch {
	case s < p.AutoApproveBelow:
		return DecisionAutoApprove
	case s < p.PartialBelow:
		return DecisionPartial
	default:
		return DecisionReject
	}
}

// Option configures a scoring policy.
type Option func(*options)

type options struct {
	rules RuleEvaluator
	risk  RiskLevelPolicy
}

// WithRuleEvaluator adds custom rule points to the points policy.
func WithRuleEvaluator(r RuleEvaluator) Option {
	return func(o *options) { o.rules = r }
}

// WithRiskLevels overrides the risk bucketing thresholds.
func WithRiskLevels(p RiskLevelPolicy) Option {
	return func(o *options) { o.risk = p }
}

func buildOptions(opts []Option) options {
	o := options{risk: DefaultRiskLevels}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewPolicy returns the scoring policy registered under name.
func NewPolicy(name string, opts ...Option) (ScoringPolicy, error) {
	switch name {
	case "", domain.PolicyPoints:
		return NewPointsPolicy(opts...), nil
	case domain.PolicyWeighted:
		return NewWeightedPolicy(DefaultWeights, opts...), nil
	default:
		return nil, fmt.Errorf("unknown scoring policy: %s", name)
	}
}
