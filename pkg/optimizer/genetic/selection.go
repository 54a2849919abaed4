package genetic

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// SelectionType names a parent selection strategy
type SelectionType string

const (
	SteadyStateSelection         SelectionType = "steady-state-selection"
	RankSelection                SelectionType = "rank-selection"
	RandomSelection              SelectionType = "random-selection"
	TournamentSelection          SelectionType = "tournament-selection"
	RouletteWheelSelection       SelectionType = "roulette-wheel-selection"
	StochasticUniversalSelection SelectionType = "stochastic-universal-selection"
)

// ParseSelectionType resolves a selection tag, rejecting unknown values
func ParseSelectionType(s string) (SelectionType, error) {
	switch t := SelectionType(s); t {
	case SteadyStateSelection, RankSelection, RandomSelection, TournamentSelection,
		RouletteWheelSelection, StochasticUniversalSelection:
		return t, nil
	default:
		return "", configErrorf("unknown selection type %q", s)
	}
}

// selector picks numParents independent parent copies from pop
type selector interface {
	Select(ctx context.Context, fitness FitnessVector, pop Population, numParents int) (Population, error)
}

func newSelector(t SelectionType, cfg *Config, rnd Entropy, rng *rand.Rand) (selector, error) {
	switch t {
	case SteadyStateSelection, RankSelection:
		return rankSelector{}, nil
	case RandomSelection:
		return randomSelector{rng: rng}, nil
	case TournamentSelection:
		return tournamentSelector{rng: rng, size: cfg.TournamentSize}, nil
	case RouletteWheelSelection:
		return rouletteSelector{rnd: rnd}, nil
	case StochasticUniversalSelection:
		return susSelector{rnd: rnd, pointers: cfg.NumberParentsMating}, nil
	default:
		return nil, configErrorf("unknown selection type %q", t)
	}
}

// rankSelector takes the top numParents by fitness; equal fitness keeps
// index order. Steady-state and rank selection share it.
type rankSelector struct{}

func (rankSelector) Select(_ context.Context, fitness FitnessVector, pop Population, numParents int) (Population, error) {
	order := make([]int, len(fitness))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(fitness[b], fitness[a])
	})

	parents := make(Population, numParents)
	for i := range parents {
		parents[i] = pop[order[i%len(order)]].Clone()
	}
	return parents, nil
}

// randomSelector draws indices uniformly with replacement
type randomSelector struct {
	rng *rand.Rand
}

func (s randomSelector) Select(_ context.Context, _ FitnessVector, pop Population, numParents int) (Population, error) {
	parents := make(Population, numParents)
	for i := range parents {
		parents[i] = pop[s.rng.IntN(len(pop))].Clone()
	}
	return parents, nil
}

// tournamentSelector keeps the fittest of size uniform draws per slot;
// the earliest draw wins ties
type tournamentSelector struct {
	rng  *rand.Rand
	size int
}

func (s tournamentSelector) Select(_ context.Context, fitness FitnessVector, pop Population, numParents int) (Population, error) {
	parents := make(Population, numParents)
	for i := range parents {
		best := s.rng.IntN(len(pop))
		for j := 1; j < s.size; j++ {
			idx := s.rng.IntN(len(pop))
			if fitness[idx] > fitness[best] {
				best = idx
			}
		}
		parents[i] = pop[best].Clone()
	}
	return parents, nil
}

// rouletteSelector maps one fresh pool draw in [0,1) per slot onto the
// probability intervals
type rouletteSelector struct {
	rnd Entropy
}

func (s rouletteSelector) Select(ctx context.Context, fitness FitnessVector, pop Population, numParents int) (Population, error) {
	wheel := newWheel(fitness)
	parents := make(Population, numParents)
	for i := range parents {
		draw, err := s.rnd.Floats(ctx, 0, 1, 1)
		if err != nil {
			return nil, fmt.Errorf("roulette draw: %w", err)
		}
		parents[i] = pop[wheel.locate(draw[0])].Clone()
	}
	return parents, nil
}

// susSelector places evenly spaced pointers from a single pool draw in
// [0, 1/pointers). Pointers past 1 wrap around the wheel.
type susSelector struct {
	rnd      Entropy
	pointers int
}

func (s susSelector) Select(ctx context.Context, fitness FitnessVector, pop Population, numParents int) (Population, error) {
	wheel := newWheel(fitness)
	distance := 1.0 / float64(s.pointers)

	start, err := s.rnd.Floats(ctx, 0, distance, 1)
	if err != nil {
		return nil, fmt.Errorf("stochastic universal draw: %w", err)
	}

	parents := make(Population, numParents)
	for i := range parents {
		pointer := math.Mod(start[0]+float64(i)*distance, 1)
		parents[i] = pop[wheel.locate(pointer)].Clone()
	}
	return parents, nil
}

// Interval is the half-open share [Start, End) of the selection wheel owned
// by one individual
type Interval struct {
	Start float64
	End   float64
}

// Width returns End - Start
func (iv Interval) Width() float64 {
	return iv.End - iv.Start
}

// Contains reports whether p falls inside the interval
func (iv Interval) Contains(p float64) bool {
	return iv.Start <= p && p < iv.End
}

// Intervals normalizes fitness to probabilities and lays them out on [0,1)
// in ascending probability order; equal probabilities are placed in index
// order. A zero fitness sum is replaced by machine epsilon. The result is
// index-aligned with fitness.
func Intervals(fitness FitnessVector) []Interval {
	return newWheel(fitness).intervals
}

type wheel struct {
	intervals []Interval
	last      int // index placed last, owner of the highest probability
}

func newWheel(fitness FitnessVector) wheel {
	sum := fitness.Sum()
	if sum == 0 {
		sum = epsilon
	}
	probs := make([]float64, len(fitness))
	for i, f := range fitness {
		probs[i] = f / sum
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(probs[a], probs[b])
	})

	w := wheel{intervals: make([]Interval, len(probs))}
	current := 0.0
	for _, idx := range order {
		w.intervals[idx] = Interval{Start: current, End: current + probs[idx]}
		current += probs[idx]
	}
	if len(order) > 0 {
		w.last = order[len(order)-1]
	}
	return w
}

// locate returns the individual whose interval holds p. Rounding can leave
// p just past the final boundary, and degenerate weights can leave it
// uncovered; both fall to the individual placed last.
func (w wheel) locate(p float64) int {
	for idx, iv := range w.intervals {
		if iv.Contains(p) {
			return idx
		}
	}
	return w.last
}

// epsilon is the float64 machine epsilon
var epsilon = math.Nextafter(1, 2) - 1
