package fraud

import (
	"context"
	"math"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// Signal identifiers used in weights and contributions.
const (
	SignalHighAmount      = "high_amount"
	SignalSparseDocuments = "sparse_documents"
	SignalLowVoice        = "low_voice_confidence"
	SignalKeywords        = "fraud_keywords"
	SignalOffHours        = "off_hours"
)

// Weights maps a signal identifier to its weight.
type Weights map[string]float64

// DefaultWeights mirrors the relative size of the point values.
var DefaultWeights = Weights{
	SignalHighAmount:      0.30,
	SignalSparseDocuments: 0.20,
	SignalLowVoice:        0.15,
	SignalKeywords:        0.25,
	SignalOffHours:        0.10,
}

// signalOrder keeps contributions in a stable order.
var signalOrder = []string{
	SignalHighAmount,
	SignalSparseDocuments,
	SignalLowVoice,
	SignalKeywords,
	SignalOffHours,
}

// WeightedPolicy combines the built-in signals into a normalized 0-1 risk
// score (weighted-v1).
type WeightedPolicy struct {
	weights Weights
	risk    RiskLevelPolicy
}

// NewWeightedPolicy creates a weighted scorer. Missing weights default to zero.
func NewWeightedPolicy(weights Weights, opts ...Option) *WeightedPolicy {
	o := buildOptions(opts)
	if weights == nil {
		weights = DefaultWeights
	}
	return &WeightedPolicy{weights: weights, risk: o.risk}
}

func (p *WeightedPolicy) Name() string        { return domain.PolicyWeighted }
func (p *WeightedPolicy) Version() string     { return "1.0.0" }
func (p *WeightedPolicy) Scale() domain.Scale { return domain.ScaleUnit }

// Score computes sum(weight * signal) / sum(weight), each signal in [0,1].
func (p *WeightedPolicy) Score(_ context.Context, claim *domain.Claim) (domain.FraudAnalysis, error) {
	sig := ExtractSignals(claim)

	signals := map[string]float64{
		SignalHighAmount:      boolSignal(sig.HighAmount),
		SignalSparseDocuments: boolSignal(sig.SparseDocuments),
		SignalLowVoice:        boolSignal(sig.LowVoiceConfidence),
		SignalKeywords:        float64(len(sig.Keywords)) / float64(len(FraudKeywords)),
		SignalOffHours:        boolSignal(sig.OffHours),
	}
	labels := map[string]string{
		SignalHighAmount:      FactorHighAmount,
		SignalSparseDocuments: FactorSparseDocuments,
		SignalLowVoice:        FactorLowVoice,
		SignalOffHours:        FactorOffHours,
	}
	if len(sig.Keywords) > 0 {
		labels[SignalKeywords] = keywordFactor(sig.Keywords)
	}

	var weightedSum, totalWeight float64
	contributions := make([]domain.RuleContribution, 0, len(signalOrder))
	factors := make([]string, 0, len(signalOrder))

	for _, id := range signalOrder {
		w := p.weights[id]
		if w <= 0 {
			continue
		}
		s := signals[id]
		c := w * s
		weightedSum += c
		totalWeight += w

		contributions = append(contributions, domain.RuleContribution{
			RuleID:       id,
			Signal:       s,
			Weight:       w,
			Contribution: c,
		})
		if s > 0 {
			factors = append(factors, labels[id])
		}
	}

	score := 0.0
	if totalWeight > 0 {
		score = weightedSum / totalWeight
	}
	score = math.Max(0, math.Min(1, score))

	return domain.FraudAnalysis{
		Policy:        p.Name(),
		Score:         score,
		Scale:         domain.ScaleUnit,
		RiskLevel:     p.risk.Level(score, domain.ScaleUnit),
		RiskFactors:   factors,
		Contributions: contributions,
	}, nil
}

func boolSignal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
