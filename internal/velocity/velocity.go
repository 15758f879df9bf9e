// Package velocity provides claimant claim-frequency lookups.
package velocity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-finance/claimhawk/internal/domain"
	"github.com/opensource-finance/claimhawk/internal/rules"
)

// DefaultTTL is how long a computed count is memoized.
const DefaultTTL = time.Minute

// Service counts recent claims per claimant.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates a new velocity service. cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
}

// GetClaimCount returns the number of claims a claimant filed within the window.
// This is the VelocityGetter function signature expected by the rule engine.
func (s *Service) GetClaimCount(ctx context.Context, tenantID, claimantID string, windowSecs int) (int64, error) {
	if tenantID == "" || claimantID == "" {
		return 0, fmt.Errorf("tenantID and claimantID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	key := cacheKey(claimantID, windowSecs)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, tenantID, key); err == nil && data != nil {
			if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
				return n, nil
			}
		}
	}

	since := s.now().Add(-time.Duration(windowSecs) * time.Second)
	count, err := s.repo.CountClaimsByClaimant(ctx, tenantID, claimantID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, tenantID, key, []byte(strconv.FormatInt(count, 10)), s.ttl); err != nil {
			slog.Warn("failed to cache claim count", "tenant_id", tenantID, "error", err)
		}
	}
	return count, nil
}

// Invalidate drops the memoized count so the next lookup sees a new claim.
func (s *Service) Invalidate(ctx context.Context, tenantID, claimantID string, windowSecs int) {
	if s.cache == nil || claimantID == "" {
		return
	}
	_ = s.cache.Delete(ctx, tenantID, cacheKey(claimantID, windowSecs))
}

// Getter returns the count lookup for the rule engine.
func (s *Service) Getter() rules.VelocityGetter {
	return s.GetClaimCount
}

func cacheKey(claimantID string, windowSecs int) string {
	return fmt.Sprintf("velocity:%s:%d", claimantID, windowSecs)
}
