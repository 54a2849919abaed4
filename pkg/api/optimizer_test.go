package api

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/qevo/pkg/config"
	"github.com/kasuganosora/qevo/pkg/logger"
	"github.com/kasuganosora/qevo/pkg/optimizer/genetic"
	"github.com/kasuganosora/qevo/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneMax(_ int, c genetic.Chromosome) (float64, error) {
	sum := 0.0
	for _, g := range c {
		sum += float64(g)
	}
	return sum, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.GA.ChromosomeSize = 10
	cfg.GA.PopulationSize = 12
	cfg.GA.NumberOfGenerations = 15
	cfg.GA.Seed = 7
	cfg.GA.SaveBestSolutions = true
	cfg.Entropy.Seed = 11
	cfg.Entropy.PoolSize = 50
	return cfg
}

func newTestOptimizer(t *testing.T, cfg *config.Config, opts ...Option) *Optimizer {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewNoOpLogger())}, opts...)
	opt, err := NewOptimizer(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = opt.Close() })
	return opt
}

func TestRun_Defaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "error"

	best, fitness, err := Run(context.Background(), cfg, oneMax, nil)
	require.NoError(t, err)
	assert.Len(t, best, cfg.GA.ChromosomeSize)
	assert.GreaterOrEqual(t, fitness, 0.0)
	assert.LessOrEqual(t, fitness, float64(cfg.GA.ChromosomeSize))
}

func TestRun_InvalidConfiguration(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.GA.SelectionType = "boltzmann-selection"

	_, _, err := Run(context.Background(), cfg, oneMax, nil)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeConfiguration))
	assert.ErrorIs(t, err, genetic.ErrConfiguration)
}

func TestOptimizer_Run(t *testing.T) {
	opt := newTestOptimizer(t, testConfig())

	var gens []int
	res, err := opt.Run(context.Background(), oneMax, func(gen int, best genetic.Chromosome, fitness float64) int {
		gens = append(gens, gen)
		return 0
	})
	require.NoError(t, err)

	assert.Equal(t, genetic.StopCompleted, res.Reason)
	assert.Equal(t, 15, res.Generations)
	assert.Equal(t, 16*12, res.Evaluations)
	assert.Equal(t, 15, res.History.Len())
	assert.Len(t, res.BestSolutions, 15)
	assert.Len(t, gens, 15)
	assert.NotEqual(t, uuid.Nil, res.RunID)

	got, err := oneMax(0, res.Best)
	require.NoError(t, err)
	assert.Equal(t, got, res.Fitness)

	m := opt.Metrics()
	assert.Equal(t, int64(1), m.GetRuns())
	assert.Equal(t, int64(15), m.GetGenerations())
	assert.Equal(t, genetic.StopCompleted, m.GetLastStopReason())
	assert.Positive(t, opt.PoolStats().Fetches)
}

func TestOptimizer_NilFitness(t *testing.T) {
	opt := newTestOptimizer(t, testConfig())

	_, err := opt.Run(context.Background(), nil, nil)
	assert.True(t, IsErrorCode(err, ErrCodeConfiguration))
}

func TestOptimizer_FitnessFailure(t *testing.T) {
	opt := newTestOptimizer(t, testConfig())
	boom := errors.New("simulation diverged")

	_, err := opt.Run(context.Background(), func(i int, _ genetic.Chromosome) (float64, error) {
		if i == 4 {
			return 0, boom
		}
		return 1, nil
	}, nil)

	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeFitnessFunction))
	assert.ErrorIs(t, err, boom)
	var fe *genetic.FitnessError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 4, fe.Index)
	assert.Equal(t, genetic.StopFailed, opt.Metrics().GetLastStopReason())
}

func TestOptimizer_EntropyFailure(t *testing.T) {
	src := testutils.NewCountingSource(&testutils.SequenceSource{})
	src.Err = errors.New("appliance unreachable")
	opt := newTestOptimizer(t, testConfig(), WithSource(src))

	_, err := opt.Run(context.Background(), oneMax, nil)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeEntropySource))
	assert.ErrorIs(t, err, src.Err)
	assert.Len(t, src.Calls(), 1, "no retry")
}

func TestOptimizer_Canceled(t *testing.T) {
	opt := newTestOptimizer(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	_, err := opt.Run(ctx, oneMax, func(gen int, _ genetic.Chromosome, _ float64) int {
		if gen == 1 {
			cancel()
		}
		return 0
	})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeCanceled))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizer_ClosedRejectsRuns(t *testing.T) {
	opt := newTestOptimizer(t, testConfig())
	require.NoError(t, opt.Close())
	require.NoError(t, opt.Close())

	_, err := opt.Run(context.Background(), oneMax, nil)
	assert.True(t, IsErrorCode(err, ErrCodeClosed))
}

func TestOptimizer_SlowGenerations(t *testing.T) {
	cfg := testConfig()
	cfg.Monitor.SlowGeneration.Threshold = 0
	assert.Nil(t, newTestOptimizer(t, cfg).SlowGenerations())

	cfg = testConfig()
	cfg.Monitor.SlowGeneration.Threshold = 1 // every generation takes at least 1ns
	cfg.Monitor.SlowGeneration.MaxEntries = 5
	opt := newTestOptimizer(t, cfg)

	res, err := opt.Run(context.Background(), oneMax, nil)
	require.NoError(t, err)
	slow := opt.SlowGenerations()
	require.NotNil(t, slow)
	assert.Equal(t, 5, slow.Count())
	assert.Len(t, slow.ByRun(res.RunID), 5)
}

func TestOptimizer_RateLimitedSource(t *testing.T) {
	cfg := testConfig()
	cfg.Entropy.RateLimit = 1000
	cfg.Entropy.Burst = 100
	opt := newTestOptimizer(t, cfg)

	_, err := opt.Run(context.Background(), oneMax, nil)
	assert.NoError(t, err)
}

func TestOptimizer_RecordAndReplay(t *testing.T) {
	dir := t.TempDir()

	cfg := testConfig()
	cfg.Entropy.Record = true
	cfg.Entropy.TapeDir = dir
	recorder := newTestOptimizer(t, cfg)

	recorded, err := recorder.Run(context.Background(), oneMax, nil)
	require.NoError(t, err)
	id, ok := recorder.TapeID()
	require.True(t, ok)
	require.NoError(t, recorder.Close())

	cfg = testConfig()
	cfg.Entropy.Source = config.SourceReplay
	cfg.Entropy.Seed = 0 // ignored on replay
	cfg.Entropy.TapeDir = dir
	cfg.Entropy.ReplayTape = id.String()
	player := newTestOptimizer(t, cfg)

	_, ok = player.TapeID()
	assert.False(t, ok)

	replayed, err := player.Run(context.Background(), oneMax, nil)
	require.NoError(t, err)
	assert.Equal(t, recorded.Best, replayed.Best)
	assert.Equal(t, recorded.Fitness, replayed.Fitness)
	assert.Equal(t, recorded.History.Maxes(), replayed.History.Maxes())
	assert.Equal(t, recorded.BestSolutions, replayed.BestSolutions)
}

func TestOptimizer_ReplayUnknownTape(t *testing.T) {
	cfg := testConfig()
	cfg.Entropy.Source = config.SourceReplay
	cfg.Entropy.TapeInMemory = true
	cfg.Entropy.ReplayTape = "6f1c1d8e-8a53-4a55-9a0c-1f3a0c1f2b10"
	opt := newTestOptimizer(t, cfg)

	_, err := opt.Run(context.Background(), oneMax, nil)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeTape))
}
