// Package entropy buffers random draws from an expensive source so that
// consumers asking for a handful of values at a time cause as few source
// round-trips as possible.
package entropy

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrInvalidRange = errors.New("entropy: low must be below high")
	ErrShortFetch   = errors.New("entropy: source returned fewer values than requested")
)

// Kind identifies the value distribution a buffer holds
type Kind uint8

const (
	KindInteger Kind = iota
	KindFloat
)

// String returns the metric/log label for the kind
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Source produces uniformly distributed random values.
// Implementations may block (e.g. a network appliance) and may fail; callers
// must not assume any retry.
type Source interface {
	// Integers returns count values in [low, high)
	Integers(ctx context.Context, low, high int64, count int) ([]int64, error)
	// Floats returns count values in [low, high)
	Floats(ctx context.Context, low, high float64, count int) ([]float64, error)
}
