package fraud

import (
	"strings"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// Thresholds and point values of the built-in signals.
const (
	HighAmountThreshold = 50000.0
	MinDocuments        = 2
	MinVoiceConfidence  = 0.7
	OffHoursStart       = 6  // submissions before 06:00
	OffHoursEnd         = 22 // submissions after 22:59

	PointsHighAmount      = 30.0
	PointsSparseDocuments = 20.0
	PointsLowVoice        = 15.0
	PointsPerKeyword      = 10.0
	PointsOffHours        = 5.0
)

// Risk factor labels.
const (
	FactorHighAmount      = "High claim amount"
	FactorSparseDocuments = "Insufficient documentation"
	FactorLowVoice        = "Low voice recognition confidence"
	FactorOffHours        = "Unusual submission time"
)

// FraudKeywords are transcript phrases associated with staged claims.
var FraudKeywords = []string{"total loss", "stolen", "vandalism", "hit and run"}

// Signals are the claim attributes the built-in rules look at.
type Signals struct {
	Amount             float64
	HighAmount         bool
	DocumentCount      int
	SparseDocuments    bool
	HasVoice           bool
	VoiceConfidence    float64
	LowVoiceConfidence bool
	Keywords           []string
	OffHours           bool
}

// ExtractSignals reads the built-in signals from claim. A nil claim yields
// zero values.
func ExtractSignals(claim *domain.Claim) Signals {
	s := Signals{
		Amount:        claim.ClaimedAmount(),
		DocumentCount: claim.DocumentCount(),
	}
	s.HighAmount = s.Amount > HighAmountThreshold
	s.SparseDocuments = s.DocumentCount < MinDocuments

	s.VoiceConfidence, s.HasVoice = claim.VoiceConfidence()
	s.LowVoiceConfidence = s.HasVoice && s.VoiceConfidence < MinVoiceConfidence
	s.Keywords = MatchKeywords(claim.Transcript())

	if claim != nil && !claim.SubmittedAt.IsZero() {
		hour := claim.SubmittedAt.Hour()
		s.OffHours = hour < OffHoursStart || hour > OffHoursEnd
	}
	return s
}

// MatchKeywords returns the fraud keywords present in transcript, in
// FraudKeywords order.
func MatchKeywords(transcript string) []string {
	if transcript == "" {
		return nil
	}
	text := strings.ToLower(transcript)
	var matched []string
	for _, kw := range FraudKeywords {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func keywordFactor(matched []string) string {
	return "Suspicious keywords: " + strings.Join(matched, ", ")
}
