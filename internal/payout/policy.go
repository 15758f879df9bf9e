// Package payout computes settlement recommendations for evaluated claims.
package payout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// Assessment is the evaluation context a payout policy may use.
type Assessment struct {
	Fraud    domain.FraudAnalysis
	GapCount int
}

// Policy computes a payout for a claim.
type Policy interface {
	Name() string
	Calculate(claim *domain.Claim, a Assessment) domain.Payout
}

// Adjustment types.
const (
	AdjustFraudRisk     = "fraud_risk"
	AdjustDocumentation = "documentation"
	AdjustClaimType     = "claim_type"
	AdjustGapDeduction  = "gap_deduction"
)

// New returns the payout policy registered under name.
func New(name string) (Policy, error) {
	switch name {
	case "", domain.PayoutDeduction:
		return NewDeductionPolicy(), nil
	case domain.PayoutCoverage:
		return NewCoveragePolicy(), nil
	default:
		return nil, fmt.Errorf("unknown payout policy: %s", name)
	}
}

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

func pct(p int64) decimal.Decimal {
	return decimal.NewFromInt(p).Div(hundred)
}

// money rounds to cents and returns a float for JSON.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func adjustment(kind string, amount decimal.Decimal, reason string) domain.Adjustment {
	return domain.Adjustment{Type: kind, Amount: money(amount), Reason: reason}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
