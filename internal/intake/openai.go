package intake

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// ProviderOpenAI names the Whisper transcriber.
const ProviderOpenAI = "openai"

// defaultConfidence is reported when the response carries no segment detail.
const defaultConfidence = 0.9

// OpenAITranscriber transcribes voice statements with the Whisper API.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

// NewOpenAITranscriber creates a Whisper transcriber. baseURL may be empty.
func NewOpenAITranscriber(apiKey, model, baseURL string) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}

	return &OpenAITranscriber{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Transcribe implements domain.Transcriber.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio domain.Audio) (*domain.Transcription, error) {
	filename := audio.Filename
	if filename == "" {
		filename = "statement.wav"
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio.Data),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI transcription error: %w", err)
	}

	return &domain.Transcription{
		Transcript:   resp.Text,
		Confidence:   segmentConfidence(resp),
		Language:     resp.Language,
		DurationSecs: resp.Duration,
		Provider:     ProviderOpenAI,
	}, nil
}

// segmentConfidence is one minus the mean no-speech probability.
func segmentConfidence(resp openai.AudioResponse) float64 {
	if len(resp.Segments) == 0 {
		return defaultConfidence
	}
	var total float64
	for _, s := range resp.Segments {
		total += s.NoSpeechProb
	}
	c := 1 - total/float64(len(resp.Segments))
	if c < 0 {
		return 0
	}
	return c
}
