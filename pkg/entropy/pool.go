package entropy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kasuganosora/qevo/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPoolSize is the number of extra values requested on every refill
const DefaultPoolSize = 1000

var tracer = otel.Tracer("github.com/kasuganosora/qevo/pkg/entropy")

type intKey struct {
	low, high int64
}

type floatKey struct {
	low, high float64
}

// PoolStats is a snapshot of pool activity
type PoolStats struct {
	Fetches       int64 // successful source fetches
	FetchErrors   int64 // failed source fetches
	ValuesFetched int64 // values received from the source
	ValuesServed  int64 // values handed out to callers
}

// Pool serves draws from per-(kind, low, high) FIFO buffers and refills a
// buffer with exactly one source fetch of count+poolSize values when it
// cannot satisfy a request.
type Pool struct {
	source   Source
	poolSize int
	logger   logger.Logger

	mu     sync.Mutex
	ints   map[intKey][]int64
	floats map[floatKey][]float64
	stats  PoolStats
}

// Option configures a Pool
type Option func(*Pool)

// WithPoolSize sets the refill surplus. Non-positive values are ignored.
func WithPoolSize(size int) Option {
	return func(p *Pool) {
		if size > 0 {
			p.poolSize = size
		}
	}
}

// WithLogger sets the pool logger
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool creates a pool over source
func NewPool(source Source, opts ...Option) (*Pool, error) {
	if source == nil {
		return nil, fmt.Errorf("entropy: nil source")
	}

	p := &Pool{
		source:   source,
		poolSize: DefaultPoolSize,
		logger:   logger.NewNoOpLogger(),
		ints:     make(map[intKey][]int64),
		floats:   make(map[floatKey][]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PoolSize returns the refill surplus
func (p *Pool) PoolSize() int {
	return p.poolSize
}

// Integers returns count buffered integers in [low, high), refilling once if needed
func (p *Pool) Integers(ctx context.Context, low, high int64, count int) ([]int64, error) {
	if low >= high {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, low, high)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.Int64("entropy.low", low),
		attribute.Int64("entropy.high", high),
	}
	return take(ctx, p, p.ints, intKey{low, high}, KindInteger, count, attrs,
		func(ctx context.Context, n int) ([]int64, error) {
			return p.source.Integers(ctx, low, high, n)
		})
}

// Floats returns count buffered floats in [low, high), refilling once if needed
func (p *Pool) Floats(ctx context.Context, low, high float64, count int) ([]float64, error) {
	if !(low < high) {
		return nil, fmt.Errorf("%w: [%g, %g)", ErrInvalidRange, low, high)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.Float64("entropy.low", low),
		attribute.Float64("entropy.high", high),
	}
	return take(ctx, p, p.floats, floatKey{low, high}, KindFloat, count, attrs,
		func(ctx context.Context, n int) ([]float64, error) {
			return p.source.Floats(ctx, low, high, n)
		})
}

// BufferedIntegers returns the number of integers held for [low, high)
func (p *Pool) BufferedIntegers(low, high int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ints[intKey{low, high}])
}

// BufferedFloats returns the number of floats held for [low, high)
func (p *Pool) BufferedFloats(low, high float64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.floats[floatKey{low, high}])
}

// Stats returns a snapshot of pool counters
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// take serves count values from buffers[key]. Must be called with p.mu held.
func take[K comparable, T any](
	ctx context.Context,
	p *Pool,
	buffers map[K][]T,
	key K,
	kind Kind,
	count int,
	attrs []attribute.KeyValue,
	fetch func(ctx context.Context, n int) ([]T, error),
) ([]T, error) {
	if count <= 0 {
		return []T{}, nil
	}

	buf := buffers[key]
	if len(buf) < count {
		n := count + p.poolSize
		values, err := p.refill(ctx, kind, n, attrs, func(ctx context.Context) (int, error) {
			v, err := fetch(ctx, n)
			if err != nil {
				return 0, err
			}
			if len(v) < n {
				return len(v), fmt.Errorf("%w: got %d of %d", ErrShortFetch, len(v), n)
			}
			buf = append(buf, v[:n]...)
			return n, nil
		})
		if err != nil {
			return nil, err
		}
		p.logger.Debug("entropy pool refilled %s buffer %v with %d values (%d buffered)",
			kind, key, values, len(buf))
	}

	out := make([]T, count)
	copy(out, buf[:count])
	buffers[key] = buf[count:]

	p.stats.ValuesServed += int64(count)
	servedValues.WithLabelValues(kind.String()).Add(float64(count))
	return out, nil
}

// refill runs one source fetch with tracing and metrics around it
func (p *Pool) refill(
	ctx context.Context,
	kind Kind,
	n int,
	attrs []attribute.KeyValue,
	fetch func(ctx context.Context) (int, error),
) (int, error) {
	ctx, span := tracer.Start(ctx, "entropy.Pool.refill",
		trace.WithAttributes(append(attrs,
			attribute.String("entropy.kind", kind.String()),
			attribute.Int("entropy.count", n),
		)...))
	defer span.End()

	start := time.Now()
	got, err := fetch(ctx)
	fetchDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		p.stats.FetchErrors++
		fetchTotal.WithLabelValues(kind.String(), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("entropy fetch of %d %s values failed: %v", n, kind, err)
		return 0, err
	}

	p.stats.Fetches++
	p.stats.ValuesFetched += int64(got)
	fetchTotal.WithLabelValues(kind.String(), "ok").Inc()
	fetchValues.WithLabelValues(kind.String()).Add(float64(got))
	return got, nil
}
