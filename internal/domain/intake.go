package domain

import "context"

// Transcriber converts a voice recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (*Transcription, error)
}

// Extractor runs OCR over an uploaded document.
type Extractor interface {
	ExtractText(ctx context.Context, doc Upload) (*Extraction, error)
}

// Audio is an uploaded voice statement.
type Audio struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Upload is an uploaded supporting document.
type Upload struct {
	Filename    string
	ContentType string
	DocType     string
	Data        []byte
}

// Transcription is the result of speech recognition.
type Transcription struct {
	Transcript   string  `json:"transcript"`
	Confidence   float64 `json:"confidence"`
	Language     string  `json:"language,omitempty"`
	DurationSecs float64 `json:"durationSecs,omitempty"`
	Provider     string  `json:"provider"`
}

// Extraction is the result of document OCR.
type Extraction struct {
	Text       string            `json:"text"`
	Fields     map[string]string `json:"fields,omitempty"`
	Confidence float64           `json:"confidence"`
	Provider   string            `json:"provider"`
}
