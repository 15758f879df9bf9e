package domain

// Scale names the unit a fraud score is expressed in.
type Scale string

const (
	// ScalePoints is the additive points scale. Scores are unbounded sums
	// and commonly fall in 0-100.
	ScalePoints Scale = "points"

	// ScaleUnit is the normalized 0-1 risk score scale.
	ScaleUnit Scale = "unit"
)

// PointsPerUnit is the conversion factor between the two scales.
const PointsPerUnit = 100.0

// ConvertScore converts value from one scale to another.
func ConvertScore(value float64, from, to Scale) float64 {
	if from == to {
		return value
	}
	switch {
	case from == ScaleUnit && to == ScalePoints:
		return value * PointsPerUnit
	case from == ScalePoints && to == ScaleUnit:
		return value / PointsPerUnit
	}
	return value
}

// RiskLevel is a coarse risk band.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// FraudAnalysis is the output of a scoring policy.
type FraudAnalysis struct {
	Policy        string             `json:"policy"`
	Score         float64            `json:"fraudScore"`
	Scale         Scale              `json:"scale"`
	RiskLevel     RiskLevel          `json:"riskLevel"`
	RiskFactors   []string           `json:"riskFactors"`
	Contributions []RuleContribution `json:"contributions,omitempty"`
}

// OnScale returns the score expressed on the target scale.
func (a FraudAnalysis) OnScale(target Scale) float64 {
	return ConvertScore(a.Score, a.Scale, target)
}

// RuleContribution shows how a single signal contributed to a score.
type RuleContribution struct {
	RuleID       string  `json:"ruleId"`
	Signal       float64 `json:"signal"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// GapCategory groups identified gaps.
type GapCategory string

const (
	GapClaimDetails  GapCategory = "claim_details"
	GapFinancial     GapCategory = "financial"
	GapDocumentation GapCategory = "documentation"
	GapVoice         GapCategory = "voice"
	GapTypeSpecific  GapCategory = "type_specific"
)

// GapSeverity is the severity of a single gap.
type GapSeverity string

const (
	SeverityLow    GapSeverity = "low"
	SeverityMedium GapSeverity = "medium"
	SeverityHigh   GapSeverity = "high"
)

// Gap is an identified deficiency in claim completeness.
type Gap struct {
	Category       GapCategory `json:"category"`
	Description    string      `json:"description"`
	Severity       GapSeverity `json:"severity"`
	Recommendation string      `json:"recommendation"`
}

// GapAnalysis is the output of the gap analyzer.
type GapAnalysis struct {
	IdentifiedGaps    []Gap     `json:"identifiedGaps"`
	CompletenessScore float64   `json:"completenessScore"`
	RiskLevel         RiskLevel `json:"riskLevel"`
}

// HighSeverityCount returns the number of high-severity gaps.
func (g GapAnalysis) HighSeverityCount() int {
	n := 0
	for _, gap := range g.IdentifiedGaps {
		if gap.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// Adjustment is a signed payout correction.
type Adjustment struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

// Payout is the computed settlement recommendation.
type Payout struct {
	Policy           string       `json:"policy"`
	BaseAmount       float64      `json:"baseAmount"`
	CalculatedAmount float64      `json:"calculatedAmount"`
	Adjustments      []Adjustment `json:"adjustments"`
	FinalAmount      float64      `json:"finalAmount"`
	Confidence       float64      `json:"confidence"`
}

// SimulationResult is the decision produced for a claim evaluation.
// The first seven fields are consumed by existing clients; keep their names.
type SimulationResult struct {
	Approved        bool     `json:"approved"`
	ApprovedAmount  float64  `json:"approvedAmount"`
	Gaps            []string `json:"gaps"`
	RulesTriggered  []string `json:"rulesTriggered"`
	FraudScore      float64  `json:"fraudScore"`
	AutoApproved    bool     `json:"autoApproved"`
	Recommendations []string `json:"recommendations"`

	FraudScale  Scale        `json:"fraudScale,omitempty"`
	Policy      string       `json:"policy,omitempty"`
	RiskLevel   RiskLevel    `json:"riskLevel,omitempty"`
	RiskFactors []string     `json:"riskFactors,omitempty"`
	GapAnalysis *GapAnalysis `json:"gapAnalysis,omitempty"`
	Payout      *Payout      `json:"payout,omitempty"`
}

// Rule tags recorded in SimulationResult.RulesTriggered.
const (
	RuleAutoApproved         = "AUTO_APPROVED"
	RulePartialApproval      = "PARTIAL_APPROVAL"
	RuleHighRiskRejection    = "HIGH_RISK_REJECTION"
	RuleMissingDocuments     = "MISSING_DOCUMENTS"
	RuleInsufficientDesc     = "INSUFFICIENT_DESCRIPTION"
	RuleMissingIncidentDate  = "MISSING_INCIDENT_DATE"
	RuleLowVoiceConfidence   = "LOW_VOICE_CONFIDENCE"
	RuleSeniorReviewRequired = "SENIOR_REVIEW_REQUIRED"
	RuleSystemError          = "SYSTEM_ERROR"
)
