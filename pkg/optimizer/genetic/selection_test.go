package genetic

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/kasuganosora/qevo/pkg/entropy"
	"github.com/kasuganosora/qevo/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexedPopulation(n int) Population {
	pop := make(Population, n)
	for i := range pop {
		pop[i] = Chromosome{uint32(i), uint32(i)}
	}
	return pop
}

func TestParseSelectionType(t *testing.T) {
	for _, name := range []string{
		"steady-state-selection", "rank-selection", "random-selection",
		"tournament-selection", "roulette-wheel-selection", "stochastic-universal-selection",
	} {
		st, err := ParseSelectionType(name)
		require.NoError(t, err)
		assert.Equal(t, SelectionType(name), st)
	}

	_, err := ParseSelectionType("boltzmann-selection")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRankSelector(t *testing.T) {
	pop := indexedPopulation(4)
	fitness := FitnessVector{1, 3, 3, 2}

	for _, st := range []SelectionType{SteadyStateSelection, RankSelection} {
		t.Run(string(st), func(t *testing.T) {
			sel, err := newSelector(st, DefaultConfig(), testutils.NewScriptedSource(), rand.New(rand.NewPCG(1, 1)))
			require.NoError(t, err)

			parents, err := sel.Select(context.Background(), fitness, pop, 3)
			require.NoError(t, err)
			assert.Equal(t, Population{{1, 1}, {2, 2}, {3, 3}}, parents)

			parents[0][0] = 99
			assert.Equal(t, uint32(1), pop[1][0], "parents must not alias the population")
		})
	}
}

func TestRandomSelector_PopulationOfOne(t *testing.T) {
	pop := Population{{1, 0, 1, 1}}
	sel := randomSelector{rng: rand.New(rand.NewPCG(3, 3))}

	for i := 0; i < 20; i++ {
		parents, err := sel.Select(context.Background(), FitnessVector{0.5}, pop, 1)
		require.NoError(t, err)
		require.Len(t, parents, 1)
		assert.Equal(t, pop[0], parents[0])
	}
}

func TestRandomSelector_Shape(t *testing.T) {
	pop := indexedPopulation(10)
	sel := randomSelector{rng: rand.New(rand.NewPCG(5, 5))}

	parents, err := sel.Select(context.Background(), make(FitnessVector, 10), pop, 5)
	require.NoError(t, err)
	require.Len(t, parents, 5)
	for _, p := range parents {
		assert.Len(t, p, 2)
		assert.Less(t, p[0], uint32(10))
	}
}

func TestTournamentSelector(t *testing.T) {
	pop := indexedPopulation(2)
	sel := tournamentSelector{rng: rand.New(rand.NewPCG(9, 9)), size: 64}

	parents, err := sel.Select(context.Background(), FitnessVector{0, 1}, pop, 4)
	require.NoError(t, err)
	require.Len(t, parents, 4)
	for _, p := range parents {
		assert.Equal(t, Chromosome{1, 1}, p)
	}
}

func TestIntervals_Partition(t *testing.T) {
	fitness := FitnessVector{1, 2, 3, 4}
	ivs := Intervals(fitness)
	require.Len(t, ivs, 4)

	want := []Interval{{0, 0.1}, {0.1, 0.3}, {0.3, 0.6}, {0.6, 1.0}}
	total := 0.0
	for i, iv := range ivs {
		assert.InDelta(t, want[i].Start, iv.Start, 1e-12)
		assert.InDelta(t, want[i].End, iv.End, 1e-12)
		total += iv.Width()
	}
	assert.InDelta(t, 1.0, total, 1e-12)
}

func TestIntervals_TiesPlacedInIndexOrder(t *testing.T) {
	ivs := Intervals(FitnessVector{2, 1, 2})

	assert.InDelta(t, 0.0, ivs[1].Start, 1e-12)
	assert.InDelta(t, 0.2, ivs[0].Start, 1e-12)
	assert.InDelta(t, 0.6, ivs[2].Start, 1e-12)
	assert.InDelta(t, 1.0, ivs[2].End, 1e-12)
}

func TestIntervals_ZeroSum(t *testing.T) {
	ivs := Intervals(FitnessVector{0, 0, 0})
	for _, iv := range ivs {
		assert.False(t, math.IsNaN(iv.Start))
		assert.Zero(t, iv.Width())
	}
}

func TestRouletteSelector(t *testing.T) {
	pop := indexedPopulation(4)
	src := testutils.NewScriptedSource().PushFloats(0, 1, 0.05, 0.95, 0.35, 0.25)
	sel := rouletteSelector{rnd: src}

	parents, err := sel.Select(context.Background(), FitnessVector{1, 2, 3, 4}, pop, 4)
	require.NoError(t, err)
	assert.Equal(t, Population{{0, 0}, {3, 3}, {2, 2}, {1, 1}}, parents)
	assert.Zero(t, src.Remaining(entropy.KindFloat, 0, 1), "one draw per parent")
}

func TestRouletteSelector_ZeroSumFallsToLastPlaced(t *testing.T) {
	pop := indexedPopulation(3)
	src := testutils.NewScriptedSource().PushFloats(0, 1, 0.5)
	sel := rouletteSelector{rnd: src}

	parents, err := sel.Select(context.Background(), FitnessVector{0, 0, 0}, pop, 1)
	require.NoError(t, err)
	assert.Equal(t, Chromosome{2, 2}, parents[0])
}

func TestRouletteSelector_EntropyFailure(t *testing.T) {
	sel := rouletteSelector{rnd: testutils.NewScriptedSource()}
	_, err := sel.Select(context.Background(), FitnessVector{1, 1}, indexedPopulation(2), 1)
	assert.Error(t, err)
}

func TestSUSSelector(t *testing.T) {
	pop := indexedPopulation(4)
	src := testutils.NewScriptedSource().PushFloats(0, 0.5, 0.2)
	sel := susSelector{rnd: src, pointers: 2}

	// pointers 0.2, 0.7 and 1.2 wrapped to 0.2
	parents, err := sel.Select(context.Background(), FitnessVector{1, 2, 3, 4}, pop, 3)
	require.NoError(t, err)
	assert.Equal(t, Population{{1, 1}, {3, 3}, {1, 1}}, parents)
}

func TestSUSSelector_SingleDraw(t *testing.T) {
	src := testutils.NewCountingSource(&testutils.SequenceSource{})
	sel := susSelector{rnd: src, pointers: 4}

	parents, err := sel.Select(context.Background(), FitnessVector{1, 1, 1, 1, 1}, indexedPopulation(5), 4)
	require.NoError(t, err)
	assert.Len(t, parents, 4)

	calls := src.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testutils.Call{Kind: entropy.KindFloat, Low: 0, High: 0.25, Count: 1}, calls[0])
}
