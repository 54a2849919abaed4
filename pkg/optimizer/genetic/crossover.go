package genetic

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// CrossoverType names a recombination strategy
type CrossoverType string

const (
	SinglePointCrossover CrossoverType = "single-point"
	TwoPointCrossover    CrossoverType = "2-point"
	UniformCrossover     CrossoverType = "uniform"
	ScatteredCrossover   CrossoverType = "scattered"
)

// ParseCrossoverType resolves a crossover tag, rejecting unknown values
func ParseCrossoverType(s string) (CrossoverType, error) {
	switch t := CrossoverType(s); t {
	case SinglePointCrossover, TwoPointCrossover, UniformCrossover, ScatteredCrossover:
		return t, nil
	default:
		return "", configErrorf("unknown crossover type %q", s)
	}
}

// crossover recombines parent pairs into offspring. Gates, loci and uniform
// flags come from the pool; parent picks and scattered flags come from rng.
type crossover struct {
	kind CrossoverType
	rate *float64
	rnd  Entropy
	rng  *rand.Rand
}

func newCrossover(t CrossoverType, rate *float64, rnd Entropy, rng *rand.Rand) (*crossover, error) {
	if _, err := ParseCrossoverType(string(t)); err != nil {
		return nil, err
	}
	return &crossover{kind: t, rate: rate, rnd: rnd, rng: rng}, nil
}

// Apply produces numOffsprings chromosomes of length size
func (c *crossover) Apply(ctx context.Context, parents Population, numOffsprings, size int) (Population, error) {
	offspring := make(Population, numOffsprings)
	for k := range offspring {
		p1, p2, mate, err := c.pickParents(ctx, parents, k)
		if err != nil {
			return nil, err
		}
		if !mate {
			offspring[k] = parents[p1].Clone()
			continue
		}

		child, err := c.combine(ctx, parents[p1], parents[p2], size)
		if err != nil {
			return nil, err
		}
		offspring[k] = child
	}
	return offspring, nil
}

// pickParents returns the pair for offspring k. mate is false when no parent
// passed its gate and the offspring is a plain copy of parents[p1].
func (c *crossover) pickParents(ctx context.Context, parents Population, k int) (p1, p2 int, mate bool, err error) {
	n := len(parents)
	if c.rate == nil {
		return k % n, (k + 1) % n, true, nil
	}

	gates, err := c.rnd.Floats(ctx, 0, 1, n)
	if err != nil {
		return 0, 0, false, fmt.Errorf("crossover gate: %w", err)
	}
	eligible := make([]int, 0, n)
	for i, g := range gates {
		if g <= *c.rate {
			eligible = append(eligible, i)
		}
	}

	switch len(eligible) {
	case 0:
		return k % n, k % n, false, nil
	case 1:
		return eligible[0], eligible[0], true, nil
	default:
		a := c.rng.IntN(len(eligible))
		b := c.rng.IntN(len(eligible) - 1)
		if b >= a {
			b++
		}
		return eligible[a], eligible[b], true, nil
	}
}

func (c *crossover) combine(ctx context.Context, p1, p2 Chromosome, size int) (Chromosome, error) {
	switch c.kind {
	case SinglePointCrossover:
		locus, err := c.rnd.Integers(ctx, 0, int64(size), 1)
		if err != nil {
			return nil, fmt.Errorf("crossover point: %w", err)
		}
		return SinglePointAt(p1, p2, int(locus[0])), nil

	case TwoPointCrossover:
		first := 0
		if size > 1 {
			locus, err := c.rnd.Integers(ctx, 0, int64((size+1)/2+1), 1)
			if err != nil {
				return nil, fmt.Errorf("crossover point: %w", err)
			}
			first = int(locus[0])
		}
		return twoPointAt(p1, p2, first, first+size/2), nil

	case UniformCrossover:
		flags, err := c.rnd.Integers(ctx, 0, 2, size)
		if err != nil {
			return nil, fmt.Errorf("uniform crossover flags: %w", err)
		}
		return mixByFlags(p1, p2, flags), nil

	case ScatteredCrossover:
		flags := make([]int64, size)
		for i := range flags {
			flags[i] = int64(c.rng.IntN(2))
		}
		return mixByFlags(p1, p2, flags), nil
	}
	return nil, configErrorf("unknown crossover type %q", c.kind)
}

// SinglePointAt returns p1's genes before locus followed by p2's genes from
// locus on. locus 0 copies p2 and locus len(p1) copies p1.
func SinglePointAt(p1, p2 Chromosome, locus int) Chromosome {
	child := make(Chromosome, len(p1))
	copy(child[:locus], p1[:locus])
	copy(child[locus:], p2[locus:])
	return child
}

// twoPointAt takes p2 inside [first, second) and p1 elsewhere
func twoPointAt(p1, p2 Chromosome, first, second int) Chromosome {
	child := p1.Clone()
	copy(child[first:second], p2[first:second])
	return child
}

// mixByFlags takes gene i from p1 when flags[i] is 0 and from p2 otherwise
func mixByFlags(p1, p2 Chromosome, flags []int64) Chromosome {
	child := make(Chromosome, len(p1))
	for i := range child {
		if flags[i] == 0 {
			child[i] = p1[i]
		} else {
			child[i] = p2[i]
		}
	}
	return child
}
