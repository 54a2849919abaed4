package genetic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FitnessFunc scores one individual. index is its position in the current
// population; c is a copy the function may keep.
type FitnessFunc func(index int, c Chromosome) (float64, error)

// GenerationFunc is called after every generation's replacement step.
// A non-zero return stops the run.
type GenerationFunc func(generation int, best Chromosome, fitness float64) int

// Disabled is the sentinel for the saturation and target stop criteria
const Disabled = -1

// Config configures one genetic algorithm run
type Config struct {
	ChromosomeSize      int      `json:"chromosome_size" yaml:"chromosome_size" env:"CHROMOSOME_SIZE" validate:"gt=0"`
	// genes are uint32, so [GeneLow, GeneHigh) must fit inside [0, 2^32)
	GeneLow             int64    `json:"gene_low" yaml:"gene_low" env:"GENE_LOW" validate:"gte=0"`
	GeneHigh            int64    `json:"gene_high" yaml:"gene_high" env:"GENE_HIGH" validate:"gtfield=GeneLow,lte=4294967296"`
	PopulationSize      int      `json:"population_size" yaml:"population_size" env:"POPULATION_SIZE" validate:"gt=0"`
	MutationRate        float64  `json:"mutation_rate" yaml:"mutation_rate" env:"MUTATION_RATE" validate:"gte=0,lte=1"`
	CrossoverRate       *float64 `json:"crossover_rate,omitempty" yaml:"crossover_rate,omitempty" env:"CROSSOVER_RATE" validate:"omitempty,gte=0,lte=1"`
	NumberOfGenerations int      `json:"number_of_generations" yaml:"number_of_generations" env:"NUMBER_OF_GENERATIONS" validate:"gt=0"`

	CrossoverType       CrossoverType `json:"crossover_type" yaml:"crossover_type" env:"CROSSOVER_TYPE"`
	SelectionType       SelectionType `json:"selection_type" yaml:"selection_type" env:"SELECTION_TYPE"`
	TournamentSize      int           `json:"tournament_size" yaml:"tournament_size" env:"TOURNAMENT_SIZE" validate:"gt=0"`
	NumberParentsMating int           `json:"number_parents_mating" yaml:"number_parents_mating" env:"NUMBER_PARENTS_MATING" validate:"gt=0"`

	SaveBestSolutions bool `json:"save_best_solutions" yaml:"save_best_solutions" env:"SAVE_BEST_SOLUTIONS"`
	SaveSolutions     bool `json:"save_solutions" yaml:"save_solutions" env:"SAVE_SOLUTIONS"`

	StopCriteriaSaturate   int     `json:"stop_criteria_saturate" yaml:"stop_criteria_saturate" env:"STOP_CRITERIA_SATURATE" validate:"gte=-1"`
	StopFitnessTargetValue float64 `json:"stop_fitness_target_value" yaml:"stop_fitness_target_value" env:"STOP_FITNESS_TARGET_VALUE"`

	// Seed seeds the general-purpose RNG (random, tournament and scattered
	// draws). 0 picks a random seed.
	Seed uint64 `json:"seed" yaml:"seed" env:"SEED"`

	FitnessFunc  FitnessFunc    `json:"-" yaml:"-"`
	OnGeneration GenerationFunc `json:"-" yaml:"-"`
}

// DefaultConfig returns a binary-gene configuration with the documented
// defaults for the optional fields
func DefaultConfig() *Config {
	return &Config{
		ChromosomeSize:         8,
		GeneLow:                0,
		GeneHigh:               2,
		PopulationSize:         20,
		MutationRate:           0.1,
		NumberOfGenerations:    100,
		CrossoverType:          SinglePointCrossover,
		SelectionType:          RandomSelection,
		TournamentSize:         3,
		NumberParentsMating:    2,
		StopCriteriaSaturate:   Disabled,
		StopFitnessTargetValue: Disabled,
	}
}

var configValidate = validator.New()

// Validate checks every serializable field. It does not require FitnessFunc,
// so a Config loaded from a file can be validated before the function is
// attached.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (%s)", fe.Field(), fe.Tag(), fe.Param()))
			}
			return configErrorf("%s", strings.Join(msgs, "; "))
		}
		return configErrorf("%v", err)
	}
	if _, err := ParseCrossoverType(string(c.CrossoverType)); err != nil {
		return err
	}
	if _, err := ParseSelectionType(string(c.SelectionType)); err != nil {
		return err
	}
	return nil
}

// Rate returns a pointer for CrossoverRate
func Rate(r float64) *float64 {
	return &r
}
