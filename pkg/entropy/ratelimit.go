package entropy

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedSource bounds the request rate against a metered source.
// Every fetch waits for one limiter token; a cancelled wait is returned as
// the fetch error.
type RateLimitedSource struct {
	source  Source
	limiter *rate.Limiter
}

// NewRateLimitedSource wraps source with limiter
func NewRateLimitedSource(source Source, limiter *rate.Limiter) *RateLimitedSource {
	return &RateLimitedSource{source: source, limiter: limiter}
}

// Integers implements Source
func (s *RateLimitedSource) Integers(ctx context.Context, low, high int64, count int) ([]int64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.source.Integers(ctx, low, high, count)
}

// Floats implements Source
func (s *RateLimitedSource) Floats(ctx context.Context, low, high float64, count int) ([]float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.source.Floats(ctx, low, high, count)
}
