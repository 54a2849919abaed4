package entropy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kasuganosora/qevo/pkg/entropy"
	"github.com/kasuganosora/qevo/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newCountingPool(t *testing.T, opts ...entropy.Option) (*entropy.Pool, *testutils.CountingSource) {
	t.Helper()
	src := testutils.NewCountingSource(&testutils.SequenceSource{})
	pool, err := entropy.NewPool(src, opts...)
	require.NoError(t, err)
	return pool, src
}

func TestNewPool_NilSource(t *testing.T) {
	_, err := entropy.NewPool(nil)
	assert.Error(t, err)
}

func TestNewPool_DefaultPoolSize(t *testing.T) {
	pool, _ := newCountingPool(t)
	assert.Equal(t, entropy.DefaultPoolSize, pool.PoolSize())

	pool, _ = newCountingPool(t, entropy.WithPoolSize(-5))
	assert.Equal(t, entropy.DefaultPoolSize, pool.PoolSize())
}

func TestPool_SingleFetchThenServe(t *testing.T) {
	ctx := context.Background()
	pool, src := newCountingPool(t)

	first, err := pool.Integers(ctx, 0, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 0, 1, 0}, first)

	calls := src.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testutils.Call{Kind: entropy.KindInteger, Low: 0, High: 2, Count: 5 + entropy.DefaultPoolSize}, calls[0])

	second, err := pool.Integers(ctx, 0, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0, 1}, second, "next values in fetch order")
	assert.Len(t, src.Calls(), 1, "no fetch while buffered values remain")
	assert.Equal(t, entropy.DefaultPoolSize-3, pool.BufferedIntegers(0, 2))
}

func TestPool_RefillIsOneFetchSizedRequestPlusPool(t *testing.T) {
	ctx := context.Background()
	pool, src := newCountingPool(t, entropy.WithPoolSize(4))

	_, err := pool.Integers(ctx, 0, 10, 2) // fetch 6, keep 4
	require.NoError(t, err)
	assert.Equal(t, 4, pool.BufferedIntegers(0, 10))

	_, err = pool.Integers(ctx, 0, 10, 7) // 4 < 7: fetch 11 once
	require.NoError(t, err)

	calls := src.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 6, calls[0].Count)
	assert.Equal(t, 11, calls[1].Count)
	assert.Equal(t, 4+11-7, pool.BufferedIntegers(0, 10))
}

func TestPool_FIFOAcrossRefill(t *testing.T) {
	ctx := context.Background()
	pool, _ := newCountingPool(t, entropy.WithPoolSize(1))

	a, err := pool.Integers(ctx, 0, 100, 2) // fetch 0,1,2 -> serve 0,1
	require.NoError(t, err)
	b, err := pool.Integers(ctx, 0, 100, 3) // buffered 2; fetch 3,4,5,6 -> serve 2,3,4
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1}, a)
	assert.Equal(t, []int64{2, 3, 4}, b)
}

func TestPool_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	pool, src := newCountingPool(t, entropy.WithPoolSize(10))

	_, err := pool.Integers(ctx, 0, 2, 1)
	require.NoError(t, err)
	_, err = pool.Integers(ctx, 0, 3, 1)
	require.NoError(t, err)
	_, err = pool.Floats(ctx, 0, 2, 1)
	require.NoError(t, err)
	_, err = pool.Floats(ctx, 0, 1, 1)
	require.NoError(t, err)
	_, err = pool.Integers(ctx, 0, 2, 1)
	require.NoError(t, err)

	calls := src.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, entropy.KindInteger, calls[0].Kind)
	assert.Equal(t, 3.0, calls[1].High)
	assert.Equal(t, entropy.KindFloat, calls[2].Kind)
	assert.Equal(t, 1.0, calls[3].High)
}

func TestPool_FailurePropagatesAndKeepsBuffer(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("appliance unreachable")
	pool, src := newCountingPool(t, entropy.WithPoolSize(2))

	_, err := pool.Floats(ctx, 0, 1, 1) // buffer 2
	require.NoError(t, err)
	require.Equal(t, 2, pool.BufferedFloats(0, 1))

	src.Err = boom
	_, err = pool.Floats(ctx, 0, 1, 5)
	require.Error(t, err)
	assert.Same(t, boom, err, "source error is returned unmodified")
	assert.Equal(t, 2, pool.BufferedFloats(0, 1), "buffer untouched on failure")
	assert.Len(t, src.Calls(), 2, "no retry")

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Fetches)
	assert.Equal(t, int64(1), stats.FetchErrors)

	// buffered values are still served once the source recovers
	src.Err = nil
	vals, err := pool.Floats(ctx, 0, 1, 2)
	require.NoError(t, err)
	assert.Len(t, vals, 2)
	assert.Len(t, src.Calls(), 2)
}

func TestPool_ShortFetchIsAnError(t *testing.T) {
	script := testutils.NewScriptedSource().PushIntegers(0, 5, 1, 2, 3)
	short := shortSource{script}
	pool, err := entropy.NewPool(short, entropy.WithPoolSize(1))
	require.NoError(t, err)

	_, err = pool.Integers(context.Background(), 0, 5, 3)
	assert.ErrorIs(t, err, entropy.ErrShortFetch)
	assert.Zero(t, pool.BufferedIntegers(0, 5))
}

// shortSource returns at most what the script holds
type shortSource struct {
	*testutils.ScriptedSource
}

func (s shortSource) Integers(ctx context.Context, low, high int64, count int) ([]int64, error) {
	n := s.Remaining(entropy.KindInteger, float64(low), float64(high))
	if n > count {
		n = count
	}
	return s.ScriptedSource.Integers(ctx, low, high, n)
}

func TestPool_ZeroCountAndInvalidRange(t *testing.T) {
	ctx := context.Background()
	pool, src := newCountingPool(t)

	vals, err := pool.Integers(ctx, 0, 2, 0)
	require.NoError(t, err)
	assert.Empty(t, vals)

	_, err = pool.Integers(ctx, 3, 3, 1)
	assert.ErrorIs(t, err, entropy.ErrInvalidRange)

	_, err = pool.Floats(ctx, 1, 0, 1)
	assert.ErrorIs(t, err, entropy.ErrInvalidRange)

	assert.Empty(t, src.Calls())
}

func TestPool_ReturnedSlicesDoNotAlias(t *testing.T) {
	ctx := context.Background()
	pool, _ := newCountingPool(t, entropy.WithPoolSize(4))

	a, err := pool.Integers(ctx, 0, 100, 1)
	require.NoError(t, err)
	a[0] = 99

	b, err := pool.Integers(ctx, 0, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b[0])
}

func TestPool_Stats(t *testing.T) {
	ctx := context.Background()
	pool, _ := newCountingPool(t, entropy.WithPoolSize(10))

	_, err := pool.Floats(ctx, 0, 1, 3)
	require.NoError(t, err)
	_, err = pool.Floats(ctx, 0, 1, 3)
	require.NoError(t, err)

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Fetches)
	assert.Equal(t, int64(13), stats.ValuesFetched)
	assert.Equal(t, int64(6), stats.ValuesServed)
}

func TestPool_RefillSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	src := testutils.NewCountingSource(&testutils.SequenceSource{})
	pool, err := entropy.NewPool(src, entropy.WithPoolSize(1))
	require.NoError(t, err)

	_, err = pool.Integers(context.Background(), 0, 4, 2)
	require.NoError(t, err)

	src.Err = errors.New("down")
	_, err = pool.Integers(context.Background(), 0, 4, 5)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "entropy.Pool.refill", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
