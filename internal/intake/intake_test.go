package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/claimhawk/internal/cache"
	"github.com/opensource-finance/claimhawk/internal/domain"
)

type countingTranscriber struct {
	calls atomic.Int32
}

func (c *countingTranscriber) Transcribe(ctx context.Context, audio domain.Audio) (*domain.Transcription, error) {
	c.calls.Add(1)
	return &domain.Transcription{Transcript: "Car accident, went to the hospital", Confidence: 0.9, Provider: "stub"}, nil
}

type failingExtractor struct{}

func (failingExtractor) ExtractText(ctx context.Context, doc domain.Upload) (*domain.Extraction, error) {
	return nil, errors.New("provider down")
}

func TestMockProvidersAreDeterministic(t *testing.T) {
	ctx := context.Background()
	audio := domain.Audio{Filename: "a.wav", Data: []byte("voice-bytes-1")}

	first, err := MockTranscriber{}.Transcribe(ctx, audio)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	second, _ := MockTranscriber{}.Transcribe(ctx, audio)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same audio produced different transcripts: %+v vs %+v", first, second)
	}
	if first.Provider != ProviderMock {
		t.Errorf("expected provider mock, got %s", first.Provider)
	}

	doc := domain.Upload{Filename: "r.pdf", Data: []byte("pdf-bytes")}
	e1, err := MockExtractor{}.ExtractText(ctx, doc)
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	e1.Fields["mutated"] = "yes"
	e2, _ := MockExtractor{}.ExtractText(ctx, doc)
	if _, ok := e2.Fields["mutated"]; ok {
		t.Error("canned extraction fields leaked between calls")
	}
	if e1.Text != e2.Text {
		t.Error("same document produced different text")
	}
}

func TestMockProvidersHonorContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (MockTranscriber{}).Transcribe(ctx, domain.Audio{Data: []byte("x")}); err == nil {
		t.Error("expected error for cancelled context")
	}
	if _, err := (MockExtractor{}).ExtractText(ctx, domain.Upload{Data: []byte("x")}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"none", "nothing relevant here", []string{}},
		{"ordered unique", "Accident! Then the hospital, then another accident.", []string{"accident", "hospital"}},
		{"punctuation", "pain,surgery;police", []string{"pain", "surgery", "police"}},
		{"whole words only", "accidental hospitality", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestServiceTranscribeCaches(t *testing.T) {
	memCache := cache.NewMemoryCache(time.Minute, time.Minute)
	defer memCache.Close()

	stub := &countingTranscriber{}
	svc := NewService(stub, MockExtractor{}, memCache, domain.IntakeConfig{})
	ctx := context.Background()
	audio := domain.Audio{Filename: "s.wav", Data: []byte("same audio")}

	for i := 0; i < 3; i++ {
		voice, err := svc.Transcribe(ctx, "tenant-001", audio)
		if err != nil {
			t.Fatalf("Transcribe failed: %v", err)
		}
		if !reflect.DeepEqual(voice.Keywords, []string{"accident", "hospital"}) {
			t.Errorf("unexpected keywords: %v", voice.Keywords)
		}
		if voice.Confidence != 0.9 {
			t.Errorf("expected confidence 0.9, got %v", voice.Confidence)
		}
	}
	if n := stub.calls.Load(); n != 1 {
		t.Errorf("expected 1 provider call, got %d", n)
	}

	// Cache keys are tenant scoped.
	if _, err := svc.Transcribe(ctx, "tenant-002", audio); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if n := stub.calls.Load(); n != 2 {
		t.Errorf("expected a provider call for the second tenant, got %d calls", n)
	}
}

func TestServiceWithoutCache(t *testing.T) {
	stub := &countingTranscriber{}
	svc := NewService(stub, MockExtractor{}, nil, domain.IntakeConfig{})
	audio := domain.Audio{Data: []byte("a")}

	svc.Transcribe(context.Background(), "t1", audio)
	svc.Transcribe(context.Background(), "t1", audio)
	if n := stub.calls.Load(); n != 2 {
		t.Errorf("expected 2 provider calls without a cache, got %d", n)
	}
}

func TestServiceExtract(t *testing.T) {
	svc := NewService(MockTranscriber{}, MockExtractor{}, nil, domain.IntakeConfig{})
	ctx := context.Background()

	doc, err := svc.Extract(ctx, "tenant-001", domain.Upload{
		Filename:    "bill.pdf",
		ContentType: "application/pdf",
		DocType:     "medical_bill",
		Data:        []byte("bill content"),
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if doc.ID == "" {
		t.Error("expected document ID")
	}
	if doc.Type != "medical_bill" || !doc.IsMedical() {
		t.Errorf("expected medical_bill type, got %s", doc.Type)
	}
	if doc.Size != int64(len("bill content")) {
		t.Errorf("unexpected size %d", doc.Size)
	}
	if doc.ExtractedText == "" || doc.Confidence == 0 {
		t.Errorf("expected OCR output, got %+v", doc)
	}

	untyped, _ := svc.Extract(ctx, "tenant-001", domain.Upload{Data: []byte("x")})
	if untyped.Type != "other" {
		t.Errorf("expected default type other, got %s", untyped.Type)
	}
}

func TestServiceErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(MockTranscriber{}, failingExtractor{}, nil, domain.IntakeConfig{})

	if _, err := svc.Transcribe(ctx, "t1", domain.Audio{}); !errors.Is(err, ErrEmptyUpload) {
		t.Errorf("expected ErrEmptyUpload, got %v", err)
	}
	if _, err := svc.Extract(ctx, "t1", domain.Upload{}); !errors.Is(err, ErrEmptyUpload) {
		t.Errorf("expected ErrEmptyUpload, got %v", err)
	}
	if _, err := svc.Extract(ctx, "t1", domain.Upload{Data: []byte("x")}); err == nil {
		t.Error("expected provider error")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := svc.Transcribe(cancelled, "t1", domain.Audio{Data: []byte("x")}); err == nil {
		t.Error("expected rate limiter to reject cancelled context")
	}
}

func TestNewFromConfig(t *testing.T) {
	if _, err := NewFromConfig(domain.IntakeConfig{}, nil); err != nil {
		t.Errorf("default providers: %v", err)
	}
	if _, err := NewFromConfig(domain.IntakeConfig{Transcriber: ProviderOpenAI}, nil); err == nil {
		t.Error("expected error for openai without API key")
	}
	if _, err := NewFromConfig(domain.IntakeConfig{Transcriber: ProviderOpenAI, OpenAIAPIKey: "k"}, nil); err != nil {
		t.Errorf("openai transcriber: %v", err)
	}
	if _, err := NewFromConfig(domain.IntakeConfig{Extractor: "google-vision"}, nil); err == nil {
		t.Error("expected error for unsupported extractor")
	}
}

func TestOpenAITranscriber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("Expected path /audio/transcriptions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "english",
			"duration": 12.5,
			"text":     "My car was stolen from the parking lot.",
			"segments": []map[string]any{
				{"id": 0, "text": "My car was stolen", "no_speech_prob": 0.1},
				{"id": 1, "text": "from the parking lot.", "no_speech_prob": 0.3},
			},
		})
	}))
	defer server.Close()

	tr, err := NewOpenAITranscriber("test-key", "", server.URL)
	if err != nil {
		t.Fatalf("Failed to create transcriber: %v", err)
	}

	got, err := tr.Transcribe(context.Background(), domain.Audio{Filename: "s.mp3", Data: []byte("audio")})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got.Transcript != "My car was stolen from the parking lot." {
		t.Errorf("unexpected transcript %q", got.Transcript)
	}
	if got.Provider != ProviderOpenAI {
		t.Errorf("expected provider openai, got %s", got.Provider)
	}
	if got.DurationSecs != 12.5 {
		t.Errorf("expected duration 12.5, got %v", got.DurationSecs)
	}
	if got.Confidence < 0.79 || got.Confidence > 0.81 {
		t.Errorf("expected confidence ~0.8, got %v", got.Confidence)
	}
}

func TestOpenAITranscriberError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	tr, _ := NewOpenAITranscriber("bad", "whisper-1", server.URL)
	if _, err := tr.Transcribe(context.Background(), domain.Audio{Data: []byte("a")}); err == nil {
		t.Error("expected error for unauthorized response")
	}
}

func TestNewFromConfigBaseURL(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":     "The pipe burst in the kitchen.",
			"language": "english",
		})
	}))
	defer server.Close()

	svc, err := NewFromConfig(domain.IntakeConfig{
		Transcriber:   ProviderOpenAI,
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: server.URL,
	}, nil)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}

	voice, err := svc.Transcribe(context.Background(), "tenant-001", domain.Audio{Data: []byte("audio")})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected the configured endpoint to be called once, got %d", hits.Load())
	}
	if voice.Transcript != "The pipe burst in the kitchen." {
		t.Errorf("unexpected transcript %q", voice.Transcript)
	}
}

func TestServiceQuota(t *testing.T) {
	memCache := cache.NewMemoryCache(time.Minute, time.Minute)
	defer memCache.Close()

	stub := &countingTranscriber{}
	svc := NewService(stub, MockExtractor{}, memCache, domain.IntakeConfig{HourlyQuota: 2})
	ctx := context.Background()

	for _, data := range []string{"first", "second"} {
		if _, err := svc.Transcribe(ctx, "tenant-001", domain.Audio{Data: []byte(data)}); err != nil {
			t.Fatalf("Transcribe %s failed: %v", data, err)
		}
	}

	t.Run("Exceeded", func(t *testing.T) {
		_, err := svc.Transcribe(ctx, "tenant-001", domain.Audio{Data: []byte("third")})
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
		if n := stub.calls.Load(); n != 2 {
			t.Errorf("expected 2 provider calls, got %d", n)
		}
	})

	t.Run("CacheHitsAreFree", func(t *testing.T) {
		if _, err := svc.Transcribe(ctx, "tenant-001", domain.Audio{Data: []byte("first")}); err != nil {
			t.Errorf("cached result refused: %v", err)
		}
	})

	t.Run("PerKind", func(t *testing.T) {
		if _, err := svc.Extract(ctx, "tenant-001", domain.Upload{Data: []byte("bill")}); err != nil {
			t.Errorf("extract counted against transcription quota: %v", err)
		}
	})

	t.Run("PerTenant", func(t *testing.T) {
		if _, err := svc.Transcribe(ctx, "tenant-002", domain.Audio{Data: []byte("third")}); err != nil {
			t.Errorf("other tenant refused: %v", err)
		}
	})
}
