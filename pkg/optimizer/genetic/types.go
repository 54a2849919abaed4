package genetic

import (
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Chromosome is one candidate solution: a fixed-length gene sequence
type Chromosome []uint32

// Clone returns an independent full-length copy
func (c Chromosome) Clone() Chromosome {
	if c == nil {
		return nil
	}
	cloned := make(Chromosome, len(c))
	copy(cloned, c)
	return cloned
}

// Population is an ordered set of equal-length chromosomes
type Population []Chromosome

// Size returns the number of individuals
func (p Population) Size() int {
	return len(p)
}

// Clone deep copies every chromosome
func (p Population) Clone() Population {
	cloned := make(Population, len(p))
	for i, c := range p {
		cloned[i] = c.Clone()
	}
	return cloned
}

// FitnessVector holds one fitness value per individual, index-aligned with
// the population it was computed from
type FitnessVector []float64

// Best returns the index of the first maximum, or -1 when empty
func (f FitnessVector) Best() int {
	if len(f) == 0 {
		return -1
	}
	return floats.MaxIdx(f)
}

// Max returns the largest fitness (0 when empty)
func (f FitnessVector) Max() float64 {
	if len(f) == 0 {
		return 0
	}
	return floats.Max(f)
}

// Mean returns the average fitness (0 when empty)
func (f FitnessVector) Mean() float64 {
	if len(f) == 0 {
		return 0
	}
	return stat.Mean(f, nil)
}

// Sum returns the total fitness
func (f FitnessVector) Sum() float64 {
	return floats.Sum(f)
}

// Clone returns an independent copy
func (f FitnessVector) Clone() FitnessVector {
	cloned := make(FitnessVector, len(f))
	copy(cloned, f)
	return cloned
}

// BestRecord is the best individual of one generation
type BestRecord struct {
	Chromosome Chromosome
	Fitness    float64
}

// History is the append-only record of every generation's fitness
type History struct {
	generations []FitnessVector
}

// Append records one generation
func (h *History) Append(f FitnessVector) {
	h.generations = append(h.generations, f.Clone())
}

// Len returns the number of recorded generations
func (h *History) Len() int {
	return len(h.generations)
}

// At returns a copy of generation i
func (h *History) At(i int) FitnessVector {
	return h.generations[i].Clone()
}

// Means returns the mean fitness per generation
func (h *History) Means() []float64 {
	out := make([]float64, len(h.generations))
	for i, f := range h.generations {
		out[i] = f.Mean()
	}
	return out
}

// Maxes returns the max fitness per generation
func (h *History) Maxes() []float64 {
	out := make([]float64, len(h.generations))
	for i, f := range h.generations {
		out[i] = f.Max()
	}
	return out
}

// WriteSummary writes a generation/mean/max table with numbers formatted
// for the given locale
func (h *History) WriteSummary(w io.Writer, tag language.Tag) error {
	p := message.NewPrinter(tag)
	if _, err := p.Fprintf(w, "%-12s %14s %14s\n", "generation", "mean", "max"); err != nil {
		return fmt.Errorf("failed to write history summary: %w", err)
	}
	for i, f := range h.generations {
		if _, err := p.Fprintf(w, "%-12d %14.4f %14.4f\n", i, f.Mean(), f.Max()); err != nil {
			return fmt.Errorf("failed to write history summary: %w", err)
		}
	}
	return nil
}
