package entropy

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"
)

// PCGSource is an in-process pseudo-random Source. It stands in for a remote
// appliance in tests and offline runs.
type PCGSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPCGSource creates a PCG-backed source. seed 0 picks a random seed.
func NewPCGSource(seed uint64) *PCGSource {
	var rng *rand.Rand
	if seed == 0 {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	} else {
		rng = rand.New(rand.NewPCG(seed, seed))
	}
	return &PCGSource{rng: rng}
}

// Integers implements Source
func (s *PCGSource) Integers(ctx context.Context, low, high int64, count int) ([]int64, error) {
	if low >= high {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, low, high)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	span := uint64(high - low)
	out := make([]int64, count)
	for i := range out {
		out[i] = low + int64(s.rng.Uint64N(span))
	}
	return out, nil
}

// Floats implements Source
func (s *PCGSource) Floats(ctx context.Context, low, high float64, count int) ([]float64, error) {
	if !(low < high) {
		return nil, fmt.Errorf("%w: [%g, %g)", ErrInvalidRange, low, high)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float64, count)
	for i := range out {
		out[i] = scaleUnit(s.rng.Float64(), low, high)
	}
	return out, nil
}

// CryptoSource draws from the operating system CSPRNG
type CryptoSource struct{}

// Integers implements Source
func (CryptoSource) Integers(ctx context.Context, low, high int64, count int) ([]int64, error) {
	if low >= high {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, low, high)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span := new(big.Int).SetUint64(uint64(high - low))
	out := make([]int64, count)
	for i := range out {
		v, err := cryptorand.Int(cryptorand.Reader, span)
		if err != nil {
			return nil, fmt.Errorf("entropy: crypto read: %w", err)
		}
		out[i] = low + int64(v.Uint64())
	}
	return out, nil
}

// Floats implements Source
func (CryptoSource) Floats(ctx context.Context, low, high float64, count int) ([]float64, error) {
	if !(low < high) {
		return nil, fmt.Errorf("%w: [%g, %g)", ErrInvalidRange, low, high)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, 8*count)
	if _, err := cryptorand.Read(buf); err != nil {
		return nil, fmt.Errorf("entropy: crypto read: %w", err)
	}

	out := make([]float64, count)
	for i := range out {
		// 53 bits => [0, 1)
		u := binary.BigEndian.Uint64(buf[8*i:]) >> 11
		out[i] = scaleUnit(float64(u)/(1<<53), low, high)
	}
	return out, nil
}

// scaleUnit maps u in [0, 1) onto [low, high), guarding the upper bound
// against rounding
func scaleUnit(u, low, high float64) float64 {
	v := low + u*(high-low)
	if v >= high {
		v = low
	}
	return v
}
