// Package gaps scores claim completeness and lists what is missing.
package gaps

import (
	"math"
	"strings"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

const (
	minDescriptionLength = 50
	minVoiceConfidence   = 0.8
	fullDocumentCount    = 3
	maxCompleteness      = 10.0
)

// Analyze inspects claim and returns the identified gaps, a completeness
// score in [0,1] and the resulting risk band. All checks run unconditionally.
func Analyze(claim *domain.Claim) domain.GapAnalysis {
	if claim == nil {
		claim = &domain.Claim{}
	}

	gaps := make([]domain.Gap, 0, 8)
	gaps = append(gaps, detailGaps(claim)...)
	gaps = append(gaps, financialGaps(claim)...)
	gaps = append(gaps, documentGaps(claim)...)
	gaps = append(gaps, voiceGaps(claim)...)
	gaps = append(gaps, typeGaps(claim)...)

	analysis := domain.GapAnalysis{
		IdentifiedGaps:    gaps,
		CompletenessScore: Completeness(claim),
	}
	analysis.RiskLevel = riskLevel(analysis)
	return analysis
}

func detailGaps(c *domain.Claim) []domain.Gap {
	var out []domain.Gap
	if len(strings.TrimSpace(c.Description)) < minDescriptionLength {
		out = append(out, domain.Gap{
			Category:       domain.GapClaimDetails,
			Description:    "Claim description is missing or too short",
			Severity:       domain.SeverityHigh,
			Recommendation: "Ask the claimant for a detailed account of the incident",
		})
	}
	if c.ClaimDetails.IncidentDate == nil || c.ClaimDetails.IncidentDate.IsZero() {
		out = append(out, domain.Gap{
			Category:       domain.GapClaimDetails,
			Description:    "Incident date is missing",
			Severity:       domain.SeverityMedium,
			Recommendation: "Confirm the date the incident occurred",
		})
	}
	return out
}

func financialGaps(c *domain.Claim) []domain.Gap {
	if c.ClaimedAmount() > 0 {
		return nil
	}
	return []domain.Gap{{
		Category:       domain.GapFinancial,
		Description:    "Estimated claim amount is missing",
		Severity:       domain.SeverityHigh,
		Recommendation: "Request an itemized estimate or invoice",
	}}
}

func documentGaps(c *domain.Claim) []domain.Gap {
	n := c.DocumentCount()
	switch {
	case n == 0:
		return []domain.Gap{{
			Category:       domain.GapDocumentation,
			Description:    "No supporting documents uploaded",
			Severity:       domain.SeverityHigh,
			Recommendation: "Request receipts, reports or photos supporting the claim",
		}}
	case n < fullDocumentCount:
		return []domain.Gap{{
			Category:       domain.GapDocumentation,
			Description:    "Limited supporting documentation",
			Severity:       domain.SeverityMedium,
			Recommendation: "Request at least three supporting documents",
		}}
	}
	return nil
}

func voiceGaps(c *domain.Claim) []domain.Gap {
	if strings.TrimSpace(c.Transcript()) == "" {
		return []domain.Gap{{
			Category:       domain.GapVoice,
			Description:    "No voice statement recorded",
			Severity:       domain.SeverityMedium,
			Recommendation: "Collect a recorded statement from the claimant",
		}}
	}
	if conf, _ := c.VoiceConfidence(); conf < minVoiceConfidence {
		return []domain.Gap{{
			Category:       domain.GapVoice,
			Description:    "Voice statement has low recognition confidence",
			Severity:       domain.SeverityMedium,
			Recommendation: "Re-record the statement or verify the transcript manually",
		}}
	}
	return nil
}

func typeGaps(c *domain.Claim) []domain.Gap {
	switch c.Type {
	case domain.ClaimTypeAccident:
		if !c.HasVoiceKeyword("accident") {
			return []domain.Gap{{
				Category:       domain.GapTypeSpecific,
				Description:    "Accident claim without an accident account in the voice statement",
				Severity:       domain.SeverityHigh,
				Recommendation: "Obtain the claimant's description of the accident",
			}}
		}
	case domain.ClaimTypeMedical:
		for _, d := range c.Documents {
			if d.IsMedical() {
				return nil
			}
		}
		return []domain.Gap{{
			Category:       domain.GapTypeSpecific,
			Description:    "Medical claim without medical documentation",
			Severity:       domain.SeverityHigh,
			Recommendation: "Request medical reports or bills",
		}}
	}
	return nil
}

// Completeness returns the weighted share of expected evidence present, in [0,1].
func Completeness(c *domain.Claim) float64 {
	if c == nil {
		return 0
	}
	points := 0.0
	if len(strings.TrimSpace(c.Description)) >= minDescriptionLength {
		points += 2
	}
	if c.ClaimedAmount() > 0 {
		points += 2
	}
	if c.DocumentCount() >= fullDocumentCount {
		points += 2
	}
	if strings.TrimSpace(c.Transcript()) != "" {
		points += 2
	}
	if conf, ok := c.VoiceConfidence(); ok && conf >= minVoiceConfidence {
		points++
	}
	if c.Type != "" {
		points++
	}
	return math.Max(0, math.Min(1, points/maxCompleteness))
}

func riskLevel(a domain.GapAnalysis) domain.RiskLevel {
	high := a.HighSeverityCount()
	switch {
	case high >= 2 || a.CompletenessScore < 0.4:
		return domain.RiskHigh
	case high == 1 || a.CompletenessScore < 0.7:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
