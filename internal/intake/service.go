// Package intake turns uploaded evidence into claim data: OCR for documents
// and speech recognition for voice statements.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

var (
	// ErrEmptyUpload is returned for uploads without content.
	ErrEmptyUpload = errors.New("empty upload")

	// ErrQuotaExceeded is returned once a tenant has used its hourly
	// provider quota.
	ErrQuotaExceeded = errors.New("intake quota exceeded")
)

// quotaWindow is the fixed window HourlyQuota is counted over.
const quotaWindow = time.Hour

// DefaultResultTTL is how long provider results are cached.
const DefaultResultTTL = 24 * time.Hour

// Service runs the configured providers behind per-provider rate limits and
// caches their results by content hash.
type Service struct {
	transcriber domain.Transcriber
	extractor   domain.Extractor
	cache       domain.Cache

	transcribeLimiter *rate.Limiter
	extractLimiter    *rate.Limiter

	ttl    time.Duration
	quota  int64
	logger *slog.Logger
}

// NewService creates an intake service. cache may be nil.
func NewService(transcriber domain.Transcriber, extractor domain.Extractor, cache domain.Cache, cfg domain.IntakeConfig) *Service {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	ttl := cfg.ResultTTL
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}

	return &Service{
		transcriber:       transcriber,
		extractor:         extractor,
		cache:             cache,
		transcribeLimiter: rate.NewLimiter(limit, burst),
		extractLimiter:    rate.NewLimiter(limit, burst),
		ttl:               ttl,
		quota:             cfg.HourlyQuota,
		logger:            slog.Default(),
	}
}

// NewFromConfig builds the providers named in cfg.
func NewFromConfig(cfg domain.IntakeConfig, cache domain.Cache) (*Service, error) {
	var transcriber domain.Transcriber
	switch cfg.Transcriber {
	case "", ProviderMock:
		transcriber = MockTranscriber{}
	case ProviderOpenAI:
		t, err := NewOpenAITranscriber(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		transcriber = t
	default:
		return nil, fmt.Errorf("unsupported transcriber: %s", cfg.Transcriber)
	}

	var extractor domain.Extractor
	switch cfg.Extractor {
	case "", ProviderMock:
		extractor = MockExtractor{}
	default:
		return nil, fmt.Errorf("unsupported extractor: %s", cfg.Extractor)
	}

	return NewService(transcriber, extractor, cache, cfg), nil
}

// Transcribe converts a voice statement into claim voice data.
func (s *Service) Transcribe(ctx context.Context, tenantID string, audio domain.Audio) (*domain.VoiceData, error) {
	if len(audio.Data) == 0 {
		return nil, ErrEmptyUpload
	}

	key := cacheKey("transcribe", audio.Data)
	var result domain.Transcription
	if !s.cached(ctx, tenantID, key, &result) {
		if err := s.reserve(ctx, tenantID, "transcribe"); err != nil {
			return nil, err
		}
		if err := s.transcribeLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("transcription rate limit: %w", err)
		}
		t, err := s.transcriber.Transcribe(ctx, audio)
		if err != nil {
			return nil, fmt.Errorf("transcribe %s: %w", audio.Filename, err)
		}
		result = *t
		s.store(ctx, tenantID, key, result)
	}

	return &domain.VoiceData{
		Transcript:   result.Transcript,
		Keywords:     ExtractKeywords(result.Transcript),
		Confidence:   result.Confidence,
		Language:     result.Language,
		DurationSecs: result.DurationSecs,
	}, nil
}

// Extract runs OCR over an uploaded document and returns it ready to attach.
func (s *Service) Extract(ctx context.Context, tenantID string, upload domain.Upload) (*domain.Document, error) {
	if len(upload.Data) == 0 {
		return nil, ErrEmptyUpload
	}

	key := cacheKey("extract", upload.Data)
	var result domain.Extraction
	if !s.cached(ctx, tenantID, key, &result) {
		if err := s.reserve(ctx, tenantID, "extract"); err != nil {
			return nil, err
		}
		if err := s.extractLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("extraction rate limit: %w", err)
		}
		e, err := s.extractor.ExtractText(ctx, upload)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", upload.Filename, err)
		}
		result = *e
		s.store(ctx, tenantID, key, result)
	}

	docType := upload.DocType
	if docType == "" {
		docType = "other"
	}

	return &domain.Document{
		ID:            uuid.New().String(),
		Type:          docType,
		Filename:      upload.Filename,
		ContentType:   upload.ContentType,
		Size:          int64(len(upload.Data)),
		Confidence:    result.Confidence,
		Fields:        result.Fields,
		ExtractedText: result.Text,
		UploadedAt:    time.Now().UTC(),
	}, nil
}

// reserve counts one provider call against the tenant's hourly quota. The
// counter lives in the shared cache, so without one there is no quota.
func (s *Service) reserve(ctx context.Context, tenantID, kind string) error {
	if s.quota <= 0 || s.cache == nil {
		return nil
	}
	n, err := s.cache.IncrementCounter(ctx, tenantID, "intake:quota:"+kind, quotaWindow)
	if err != nil {
		s.logger.Warn("intake quota check failed", "tenant_id", tenantID, "error", err)
		return nil
	}
	if n > s.quota {
		s.logger.Warn("intake quota exceeded", "tenant_id", tenantID, "kind", kind, "quota", s.quota)
		return fmt.Errorf("%w: %d %s calls per hour", ErrQuotaExceeded, s.quota, kind)
	}
	return nil
}

func cacheKey(kind string, data []byte) string {
	sum := sha256.Sum256(data)
	return "intake:v1:" + kind + ":" + hex.EncodeToString(sum[:])
}

// cached loads key into v. Cache failures are logged and treated as misses.
func (s *Service) cached(ctx context.Context, tenantID, key string, v any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, tenantID, key)
	if err != nil {
		s.logger.Warn("intake cache read failed", "tenant_id", tenantID, "error", err)
		return false
	}
	if data == nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (s *Service) store(ctx context.Context, tenantID, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, tenantID, key, data, s.ttl); err != nil {
		s.logger.Warn("intake cache write failed", "tenant_id", tenantID, "error", err)
	}
}
