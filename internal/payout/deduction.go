package payout

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

var (
	investigationFeeCap = decimal.NewFromInt(1000)
	richDocumentCount   = 5
	sparseDocumentCount = 2
)

// DeductionPolicy starts from the claimed amount and applies signed
// adjustments for fraud risk, documentation and claim type (deduction-v1).
type DeductionPolicy struct{}

// NewDeductionPolicy creates the default payout policy.
func NewDeductionPolicy() *DeductionPolicy { return &DeductionPolicy{} }

func (p *DeductionPolicy) Name() string { return domain.PayoutDeduction }

// Calculate applies adjustments in order and floors the final amount at zero.
func (p *DeductionPolicy) Calculate(claim *domain.Claim, a Assessment) domain.Payout {
	base := nonNegative(decimal.NewFromFloat(claim.ClaimedAmount()))
	adjustments := make([]domain.Adjustment, 0, 3)
	total := zero

	add := func(kind string, amount decimal.Decimal, reason string) {
		total = total.Add(amount)
		adjustments = append(adjustments, adjustment(kind, amount, reason))
	}

	switch a.Fraud.RiskLevel {
	case domain.RiskHigh:
		add(AdjustFraudRisk, base.Mul(pct(50)).Neg(), "High fraud risk")
	case domain.RiskMedium:
		add(AdjustFraudRisk, base.Mul(pct(20)).Neg(), "Medium fraud risk")
	}

	docs := claim.DocumentCount()
	switch {
	case docs >= richDocumentCount:
		add(AdjustDocumentation, base.Mul(pct(5)), "Comprehensive documentation")
	case docs < sparseDocumentCount:
		add(AdjustDocumentation, base.Mul(pct(10)).Neg(), "Insufficient documentation")
	}

	if claim != nil {
		switch claim.Type {
		case domain.ClaimTypeMedical:
			add(AdjustClaimType, zero, "Medical claim: standard coverage applied")
		case domain.ClaimTypeAccident:
			fee := decimal.Min(investigationFeeCap, base.Mul(pct(5)))
			add(AdjustClaimType, fee.Neg(), "Accident investigation fee")
		}
	}

	final := nonNegative(base.Add(total))

	return domain.Payout{
		Policy:           p.Name(),
		BaseAmount:       money(base),
		CalculatedAmount: money(base),
		Adjustments:      adjustments,
		FinalAmount:      money(final),
		Confidence:       deductionConfidence(a.Fraud.RiskLevel, docs),
	}
}

func deductionConfidence(level domain.RiskLevel, docs int) float64 {
	c := 0.9
	switch level {
	case domain.RiskMedium:
		c = 0.7
	case domain.RiskHigh:
		c = 0.4
	}
	if docs < sparseDocumentCount {
		c -= 0.1
	}
	return clamp01(c)
}
