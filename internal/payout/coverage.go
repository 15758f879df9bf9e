package payout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

var (
	medicalCap  = decimal.NewFromInt(100000)
	pharmacyCap = decimal.NewFromInt(25000)

	maxGapDeduction = pct(30)
	perGapDeduction = pct(10)

	// severityMultipliers apply to accident claims. Unset or unknown severity
	// counts as moderate.
	severityMultipliers = map[string]decimal.Decimal{
		"minor":    pct(70),
		"moderate": pct(80),
		"severe":   pct(95),
	}
)

// CoveragePolicy applies a coverage percentage per claim type, then a
// deduction per identified gap (coverage-v1).
type CoveragePolicy struct{}

// NewCoveragePolicy creates the coverage payout policy.
func NewCoveragePolicy() *CoveragePolicy { return &CoveragePolicy{} }

func (p *CoveragePolicy) Name() string { return domain.PayoutCoverage }

// Calculate computes the covered amount and deducts min(gaps*10%, 30%) of it.
func (p *CoveragePolicy) Calculate(claim *domain.Claim, a Assessment) domain.Payout {
	base, covered := zero, zero
	if claim != nil {
		amount := claim.Amount
		if amount <= 0 {
			amount = claim.EstimatedAmount
		}
		base = nonNegative(decimal.NewFromFloat(amount))
		covered = coveredAmount(claim, base)
	}

	rate := zero
	final := covered
	adjustments := make([]domain.Adjustment, 0, 1)
	if a.GapCount > 0 {
		rate = decimal.Min(maxGapDeduction, perGapDeduction.Mul(decimal.NewFromInt(int64(a.GapCount))))
		deduction := covered.Mul(rate).Neg()
		adjustments = append(adjustments, adjustment(AdjustGapDeduction, deduction,
			fmt.Sprintf("%d documentation or detail gaps", a.GapCount)))
		final = nonNegative(covered.Add(deduction))
	}

	return domain.Payout{
		Policy:           p.Name(),
		BaseAmount:       money(base),
		CalculatedAmount: money(covered),
		Adjustments:      adjustments,
		FinalAmount:      money(final),
		Confidence:       clamp01(1 - rate.InexactFloat64()),
	}
}

func coveredAmount(claim *domain.Claim, base decimal.Decimal) decimal.Decimal {
	switch claim.Type {
	case domain.ClaimTypeMedical:
		return decimal.Min(base.Mul(pct(90)), medicalCap)
	case domain.ClaimTypeAccident:
		m, ok := severityMultipliers[strings.ToLower(claim.ClaimDetails.Severity)]
		if !ok {
			m = severityMultipliers["moderate"]
		}
		return base.Mul(m)
	case domain.ClaimTypePharmacy:
		return decimal.Min(base.Mul(pct(80)), pharmacyCap)
	default:
		return zero
	}
}
