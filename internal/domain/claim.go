package domain

import (
	"strings"
	"time"
)

// ClaimType selects the payout formula branch.
type ClaimType string

const (
	ClaimTypeMedical  ClaimType = "medical"
	ClaimTypeAccident ClaimType = "accident"
	ClaimTypePharmacy ClaimType = "pharmacy"
)

// Valid reports whether t is one of the supported claim types.
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimTypeMedical, ClaimTypeAccident, ClaimTypePharmacy:
		return true
	}
	return false
}

// ClaimStatus is the processing state of a claim.
// It is set by callers of the evaluation pipeline, never by the pipeline itself.
type ClaimStatus string

const (
	StatusPending      ClaimStatus = "PENDING"
	StatusApproved     ClaimStatus = "APPROVED"
	StatusRejected     ClaimStatus = "REJECTED"
	StatusFraudReview  ClaimStatus = "FRAUD_REVIEW"
	StatusManualReview ClaimStatus = "MANUAL_REVIEW"
)

// Valid reports whether s is a known status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFraudReview, StatusManualReview:
		return true
	}
	return false
}

// Claim is a submitted insurance request with its supporting evidence.
type Claim struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId"`
	ClaimantID   string `json:"claimantId,omitempty"`
	PolicyNumber string `json:"policyNumber,omitempty"`

	Type            ClaimType `json:"type,omitempty"`
	Amount          float64   `json:"amount,omitempty"`
	EstimatedAmount float64   `json:"estimatedAmount,omitempty"`
	Description     string    `json:"description,omitempty"`

	Documents    []Document   `json:"documents"`
	VoiceData    *VoiceData   `json:"voiceData,omitempty"`
	ClaimDetails ClaimDetails `json:"claimDetails"`

	// Simulation is the last evaluation result. Re-evaluation overwrites it.
	Simulation *SimulationResult `json:"simulation,omitempty"`
	Status     ClaimStatus       `json:"status"`

	SubmittedAt time.Time `json:"submittedAt,omitzero"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Document is an uploaded piece of evidence with its OCR result.
type Document struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Filename      string            `json:"filename,omitempty"`
	ContentType   string            `json:"contentType,omitempty"`
	Size          int64             `json:"size,omitempty"`
	Confidence    float64           `json:"confidence"`
	Fields        map[string]string `json:"fields,omitempty"`
	ExtractedText string            `json:"extractedText,omitempty"`
	UploadedAt    time.Time         `json:"uploadedAt,omitzero"`
}

// IsMedical reports whether the document was typed as medical evidence
// (e.g. "medical", "medical_report", "medical_bill").
func (d Document) IsMedical() bool {
	return strings.Contains(strings.ToLower(d.Type), "medical")
}

// VoiceData is the transcription of the claimant's voice statement.
type VoiceData struct {
	Transcript   string   `json:"transcript"`
	Keywords     []string `json:"keywords,omitempty"`
	Confidence   float64  `json:"confidence"`
	Language     string   `json:"language,omitempty"`
	DurationSecs float64  `json:"durationSecs,omitempty"`
}

// ClaimDetails holds incident metadata.
type ClaimDetails struct {
	IncidentDate *time.Time `json:"incidentDate,omitempty"`
	Severity     string     `json:"severity,omitempty"`
	Location     string     `json:"location,omitempty"`
}

// ClaimedAmount returns the estimated amount, falling back to the plain amount.
func (c *Claim) ClaimedAmount() float64 {
	if c == nil {
		return 0
	}
	if c.EstimatedAmount > 0 {
		return c.EstimatedAmount
	}
	if c.Amount > 0 {
		return c.Amount
	}
	return 0
}

// DocumentCount returns the number of attached documents.
func (c *Claim) DocumentCount() int {
	if c == nil {
		return 0
	}
	return len(c.Documents)
}

// Transcript returns the voice transcript, or "" when there is none.
func (c *Claim) Transcript() string {
	if c == nil || c.VoiceData == nil {
		return ""
	}
	return c.VoiceData.Transcript
}

// VoiceConfidence returns the voice recognition confidence and whether voice data exists.
func (c *Claim) VoiceConfidence() (float64, bool) {
	if c == nil || c.VoiceData == nil {
		return 0, false
	}
	return c.VoiceData.Confidence, true
}

// HasVoiceKeyword reports whether keyword appears in the extracted voice
// keywords or the transcript, case-insensitively.
func (c *Claim) HasVoiceKeyword(keyword string) bool {
	if c == nil || c.VoiceData == nil {
		return false
	}
	keyword = strings.ToLower(keyword)
	for _, k := range c.VoiceData.Keywords {
		if strings.ToLower(k) == keyword {
			return true
		}
	}
	return strings.Contains(strings.ToLower(c.VoiceData.Transcript), keyword)
}
