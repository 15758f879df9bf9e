package intake

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// ProviderMock names the deterministic providers.
const ProviderMock = "mock"

var cannedTranscripts = []domain.Transcription{
	{
		Transcript:   "I was in a car accident on the highway this morning. The other driver ran a red light and hit my passenger side. I went to the emergency room with neck pain.",
		Confidence:   0.93,
		Language:     "en",
		DurationSecs: 41,
	},
	{
		Transcript:   "I slipped on the wet floor at the pharmacy and injured my wrist. The doctor at the clinic gave me a prescription and a follow up appointment.",
		Confidence:   0.88,
		Language:     "en",
		DurationSecs: 33,
	},
	{
		Transcript:   "Um the the damage was uh I think it was last week maybe. I am not sure about the receipts, my cousin has them.",
		Confidence:   0.62,
		Language:     "en",
		DurationSecs: 19,
	},
}

var cannedExtractions = []domain.Extraction{
	{
		Text:       "CITY GENERAL HOSPITAL\nPatient discharge summary\nDiagnosis: cervical strain\nTotal charges: 4,850.00",
		Fields:     map[string]string{"provider": "City General Hospital", "total": "4850.00", "diagnosis": "cervical strain"},
		Confidence: 0.94,
	},
	{
		Text:       "POLICE INCIDENT REPORT\nReport no. 2291-A\nTwo vehicle collision at intersection\nOfficer: J. Ortiz",
		Fields:     map[string]string{"report_number": "2291-A", "officer": "J. Ortiz"},
		Confidence: 0.89,
	},
	{
		Text:       "RX RECEIPT\nAmoxicillin 500mg x30\nAmount paid 42.17",
		Fields:     map[string]string{"medication": "Amoxicillin 500mg", "total": "42.17"},
		Confidence: 0.71,
	},
}

// pick maps data onto one of n canned results.
func pick(data []byte, n int) int {
	sum := sha256.Sum256(data)
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(n))
}

// MockTranscriber returns canned transcripts chosen by content hash.
type MockTranscriber struct{}

// Transcribe implements domain.Transcriber.
func (MockTranscriber) Transcribe(ctx context.Context, audio domain.Audio) (*domain.Transcription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := cannedTranscripts[pick(audio.Data, len(cannedTranscripts))]
	t.Provider = ProviderMock
	return &t, nil
}

// MockExtractor returns canned OCR results chosen by content hash.
type MockExtractor struct{}

// ExtractText implements domain.Extractor.
func (MockExtractor) ExtractText(ctx context.Context, doc domain.Upload) (*domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := cannedExtractions[pick(doc.Data, len(cannedExtractions))]
	fields := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	e.Fields = fields
	e.Provider = ProviderMock
	return &e, nil
}
