package fraud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// PointsPolicy is the additive points scorer (points-v1).
type PointsPolicy struct {
	rules RuleEvaluator
	risk  RiskLevelPolicy
}

// NewPointsPolicy creates the default scoring policy.
func NewPointsPolicy(opts ...Option) *PointsPolicy {
	o := buildOptions(opts)
	return &PointsPolicy{rules: o.rules, risk: o.risk}
}

func (p *PointsPolicy) Name() string        { return domain.PolicyPoints }
func (p *PointsPolicy) Version() string     { return "1.0.0" }
func (p *PointsPolicy) Scale() domain.Scale { return domain.ScalePoints }

// Score sums the points of every matching signal. Custom rule hits are added
// on top; a hit can only raise the score.
func (p *PointsPolicy) Score(ctx context.Context, claim *domain.Claim) (domain.FraudAnalysis, error) {
	sig := ExtractSignals(claim)

	score := 0.0
	factors := make([]string, 0, 5)

	if sig.HighAmount {
		score += PointsHighAmount
		factors = append(factors, FactorHighAmount)
	}
	if sig.SparseDocuments {
		score += PointsSparseDocuments
		factors = append(factors, FactorSparseDocuments)
	}
	if sig.LowVoiceConfidence {
		score += PointsLowVoice
		factors = append(factors, FactorLowVoice)
	}
	if len(sig.Keywords) > 0 {
		score += PointsPerKeyword * float64(len(sig.Keywords))
		factors = append(factors, keywordFactor(sig.Keywords))
	}
	if sig.OffHours {
		score += PointsOffHours
		factors = append(factors, FactorOffHours)
	}

	if p.rules != nil {
		hits, err := p.rules.EvaluateClaim(ctx, claim)
		if err != nil {
			return domain.FraudAnalysis{}, fmt.Errorf("custom rules: %w", err)
		}
		for _, hit := range hits {
			if hit.Err != "" {
				slog.WarnContext(ctx, "custom rule failed",
					"rule_id", hit.RuleID,
					"claim_id", claim.ID,
					"tenant_id", claim.TenantID,
					"trace_id", domain.TraceIDFromContext(ctx),
					"error", hit.Err,
				)
				continue
			}
			if hit.Points <= 0 {
				continue
			}
			score += hit.Points
			factor := hit.Factor
			if factor == "" {
				factor = hit.RuleID
			}
			factors = append(factors, factor)
		}
	}

	return domain.FraudAnalysis{
		Policy:      p.Name(),
		Score:       score,
		Scale:       domain.ScalePoints,
		RiskLevel:   p.risk.Level(score, domain.ScalePoints),
		RiskFactors: factors,
	}, nil
}
