package genetic

import (
	"context"
	"fmt"
)

// mutator flips at most one gene per offspring. It assumes binary genes:
// a 0 becomes 1 and any other value becomes 0.
type mutator struct {
	rate float64
	rnd  Entropy
}

// Apply returns mutated copies of offspring
func (m *mutator) Apply(ctx context.Context, offspring Population, size int) (Population, error) {
	mutants := make(Population, len(offspring))
	for i, child := range offspring {
		mutants[i] = child.Clone()

		gate, err := m.rnd.Floats(ctx, 0, 1, 1)
		if err != nil {
			return nil, fmt.Errorf("mutation gate: %w", err)
		}
		if gate[0] > m.rate {
			continue
		}

		locus, err := m.rnd.Integers(ctx, 0, int64(size), 1)
		if err != nil {
			return nil, fmt.Errorf("mutation locus: %w", err)
		}
		flip(mutants[i], int(locus[0]))
	}
	return mutants, nil
}

func flip(c Chromosome, locus int) {
	if c[locus] == 0 {
		c[locus] = 1
	} else {
		c[locus] = 0
	}
}
