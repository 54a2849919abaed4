package genetic

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/qevo/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/kasuganosora/qevo/pkg/optimizer/genetic")

// Entropy supplies pooled random draws. *entropy.Pool implements it.
type Entropy interface {
	Integers(ctx context.Context, low, high int64, count int) ([]int64, error)
	Floats(ctx context.Context, low, high float64, count int) ([]float64, error)
}

// StopReason records why a run ended
type StopReason string

const (
	StopCompleted     StopReason = "completed"
	StopSaturated     StopReason = "saturated"
	StopTargetReached StopReason = "target_reached"
	StopCallback      StopReason = "callback"
	StopCanceled      StopReason = "canceled"
	StopFailed        StopReason = "failed"
)

// GenerationStats describes one evaluated generation
type GenerationStats struct {
	RunID       uuid.UUID
	Generation  int
	Evaluations int
	Best        BestRecord
	Mean        float64
	Elapsed     time.Duration
}

// RunStats describes a finished run
type RunStats struct {
	RunID       uuid.UUID
	Generations int
	Evaluations int
	Reason      StopReason
	Best        BestRecord
	Elapsed     time.Duration
}

// Observer receives progress from an Engine. Calls are made synchronously
// from Run.
type Observer interface {
	ObserveGeneration(GenerationStats)
	ObserveRun(RunStats)
}

// Engine runs the generation loop. An Engine is not safe for concurrent use;
// each Run starts from a freshly synthesized population.
type Engine struct {
	cfg       Config
	rnd       Entropy
	rng       *rand.Rand
	logger    logger.Logger
	observers []Observer

	selector  selector
	crossover *crossover
	mutator   *mutator

	numParents    int
	numOffsprings int

	// per-run state
	runID         uuid.UUID
	history       History
	bestSolutions []Chromosome
	solutions     []Population
	best          BestRecord
	generations   int
	evaluations   int
	reason        StopReason
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver adds a progress observer
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithRand replaces the general-purpose RNG seeded from Config.Seed
func WithRand(rng *rand.Rand) EngineOption {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// NewEngine validates cfg and builds the strategies it names. Every
// configuration problem is reported here as ErrConfiguration.
func NewEngine(cfg *Config, rnd Entropy, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, configErrorf("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FitnessFunc == nil {
		return nil, configErrorf("fitness function is required")
	}
	if rnd == nil {
		return nil, configErrorf("entropy source is required")
	}

	e := &Engine{
		cfg:    *cfg,
		rnd:    rnd,
		logger: logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = newRand(cfg.Seed)
	}

	var err error
	if e.selector, err = newSelector(cfg.SelectionType, cfg, rnd, e.rng); err != nil {
		return nil, err
	}
	if e.crossover, err = newCrossover(cfg.CrossoverType, cfg.CrossoverRate, rnd, e.rng); err != nil {
		return nil, err
	}
	e.mutator = &mutator{rate: cfg.MutationRate, rnd: rnd}

	e.numParents = max(1, cfg.PopulationSize/2)
	e.numOffsprings = cfg.PopulationSize - e.numParents

	if cfg.GeneLow != 0 || cfg.GeneHigh != 2 {
		e.logger.Warn("gene domain [%d, %d) is not binary; mutation only flips between 0 and 1",
			cfg.GeneLow, cfg.GeneHigh)
	}
	return e, nil
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Run evolves the population and returns the best individual of a final
// evaluation of the last population. Entropy and fitness failures abort the
// run; ctx is checked between generations.
func (e *Engine) Run(ctx context.Context) (Chromosome, float64, error) {
	e.reset()
	started := time.Now()

	ctx, span := tracer.Start(ctx, "genetic.Engine.Run", trace.WithAttributes(
		attribute.String("genetic.run_id", e.runID.String()),
		attribute.Int("genetic.population_size", e.cfg.PopulationSize),
		attribute.Int("genetic.chromosome_size", e.cfg.ChromosomeSize),
		attribute.String("genetic.selection", string(e.cfg.SelectionType)),
		attribute.String("genetic.crossover", string(e.cfg.CrossoverType)),
	))
	defer span.End()

	e.logger.Info("genetic run %s started: population=%d chromosome=%d generations=%d selection=%s crossover=%s",
		e.runID, e.cfg.PopulationSize, e.cfg.ChromosomeSize, e.cfg.NumberOfGenerations,
		e.cfg.SelectionType, e.cfg.CrossoverType)

	best, fitness, reason, err := e.run(ctx)
	e.reason = reason

	span.SetAttributes(
		attribute.Int("genetic.generations", e.generations),
		attribute.String("genetic.stop_reason", string(reason)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("genetic run %s stopped after %d generations: %v", e.runID, e.generations, err)
	} else {
		span.SetAttributes(attribute.Float64("genetic.best_fitness", fitness))
		e.logger.Info("genetic run %s finished (%s) after %d generations, best fitness %g",
			e.runID, reason, e.generations, fitness)
	}

	stats := RunStats{
		RunID:       e.runID,
		Generations: e.generations,
		Evaluations: e.evaluations,
		Reason:      reason,
		Best:        BestRecord{Chromosome: best.Clone(), Fitness: fitness},
		Elapsed:     time.Since(started),
	}
	for _, o := range e.observers {
		o.ObserveRun(stats)
	}

	if err != nil {
		return nil, 0, err
	}
	return best, fitness, nil
}

func (e *Engine) run(ctx context.Context) (Chromosome, float64, StopReason, error) {
	pop, err := e.initialize(ctx)
	if err != nil {
		return nil, 0, stopReasonFor(ctx, err), fmt.Errorf("initialize population: %w", err)
	}

	reason := StopCompleted
	var (
		prevBest   float64
		havePrev   bool
		saturation int
	)

	for gen := 0; gen < e.cfg.NumberOfGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, StopCanceled, err
		}
		started := time.Now()
		e.generations = gen + 1

		fitness, err := e.evaluate(pop)
		if err != nil {
			return nil, 0, StopFailed, err
		}
		idx := fitness.Best()
		e.best = BestRecord{Chromosome: pop[idx].Clone(), Fitness: fitness[idx]}
		e.history.Append(fitness)
		if e.cfg.SaveBestSolutions {
			e.bestSolutions = append(e.bestSolutions, e.best.Chromosome.Clone())
		}
		if e.cfg.SaveSolutions {
			e.solutions = append(e.solutions, pop.Clone())
		}

		if e.cfg.StopCriteriaSaturate != Disabled {
			if havePrev && e.best.Fitness == prevBest {
				saturation++
			} else {
				prevBest, havePrev, saturation = e.best.Fitness, true, 0
			}
			if saturation == e.cfg.StopCriteriaSaturate {
				e.logger.Info("genetic run %s saturated at generation %d (fitness %g unchanged for %d generations)",
					e.runID, gen, e.best.Fitness, saturation)
				e.observeGeneration(gen, fitness, started)
				reason = StopSaturated
				break
			}
		}
		if e.cfg.StopFitnessTargetValue != Disabled && e.best.Fitness == e.cfg.StopFitnessTargetValue {
			e.logger.Info("genetic run %s reached target fitness %g at generation %d",
				e.runID, e.best.Fitness, gen)
			e.observeGeneration(gen, fitness, started)
			reason = StopTargetReached
			break
		}

		pop, err = e.breed(ctx, gen, fitness, pop)
		if err != nil {
			return nil, 0, stopReasonFor(ctx, err), err
		}
		e.observeGeneration(gen, fitness, started)

		if e.cfg.OnGeneration != nil {
			if ret := e.cfg.OnGeneration(gen, e.best.Chromosome.Clone(), e.best.Fitness); ret != 0 {
				e.logger.Info("genetic run %s stopped by callback at generation %d (returned %d)",
					e.runID, gen, ret)
				reason = StopCallback
				break
			}
		}
	}

	fitness, err := e.evaluate(pop)
	if err != nil {
		return nil, 0, StopFailed, err
	}
	idx := fitness.Best()
	e.best = BestRecord{Chromosome: pop[idx].Clone(), Fitness: fitness[idx]}
	return e.best.Chromosome.Clone(), e.best.Fitness, reason, nil
}

// initialize draws every gene of every individual from the pool
func (e *Engine) initialize(ctx context.Context) (Population, error) {
	pop := make(Population, e.cfg.PopulationSize)
	for i := range pop {
		genes, err := e.rnd.Integers(ctx, e.cfg.GeneLow, e.cfg.GeneHigh, e.cfg.ChromosomeSize)
		if err != nil {
			return nil, err
		}
		c := make(Chromosome, len(genes))
		for j, g := range genes {
			c[j] = uint32(g)
		}
		pop[i] = c
	}
	return pop, nil
}

// evaluate scores every individual in index order
func (e *Engine) evaluate(pop Population) (FitnessVector, error) {
	fitness := make(FitnessVector, len(pop))
	for i, c := range pop {
		f, err := e.cfg.FitnessFunc(i, c.Clone())
		if err != nil {
			return nil, &FitnessError{Index: i, Err: err}
		}
		fitness[i] = f
	}
	e.evaluations += len(pop)
	return fitness, nil
}

// breed builds the next population: selected parents followed by mutated
// offspring
func (e *Engine) breed(ctx context.Context, gen int, fitness FitnessVector, pop Population) (Population, error) {
	parents, err := e.selector.Select(ctx, fitness, pop, e.numParents)
	if err != nil {
		return nil, fmt.Errorf("generation %d: select parents: %w", gen, err)
	}
	offspring, err := e.crossover.Apply(ctx, parents, e.numOffsprings, e.cfg.ChromosomeSize)
	if err != nil {
		return nil, fmt.Errorf("generation %d: crossover: %w", gen, err)
	}
	mutants, err := e.mutator.Apply(ctx, offspring, e.cfg.ChromosomeSize)
	if err != nil {
		return nil, fmt.Errorf("generation %d: mutate: %w", gen, err)
	}

	next := make(Population, 0, e.cfg.PopulationSize)
	next = append(next, parents...)
	next = append(next, mutants...)
	return next, nil
}

func (e *Engine) observeGeneration(gen int, fitness FitnessVector, started time.Time) {
	if len(e.observers) == 0 {
		return
	}
	stats := GenerationStats{
		RunID:       e.runID,
		Generation:  gen,
		Evaluations: len(fitness),
		Best:        BestRecord{Chromosome: e.best.Chromosome.Clone(), Fitness: e.best.Fitness},
		Mean:        fitness.Mean(),
		Elapsed:     time.Since(started),
	}
	for _, o := range e.observers {
		o.ObserveGeneration(stats)
	}
}

func (e *Engine) reset() {
	e.runID = uuid.New()
	e.history = History{}
	e.bestSolutions = nil
	e.solutions = nil
	e.best = BestRecord{}
	e.generations = 0
	e.evaluations = 0
	e.reason = ""
}

func stopReasonFor(ctx context.Context, err error) StopReason {
	if ctx.Err() != nil {
		return StopCanceled
	}
	return StopFailed
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// RunID identifies the most recent run
func (e *Engine) RunID() uuid.UUID {
	return e.runID
}

// History returns the per-generation fitness record of the most recent run
func (e *Engine) History() *History {
	h := &History{generations: make([]FitnessVector, len(e.history.generations))}
	for i, f := range e.history.generations {
		h.generations[i] = f.Clone()
	}
	return h
}

// BestSolutions returns each generation's best chromosome when
// SaveBestSolutions is set
func (e *Engine) BestSolutions() []Chromosome {
	out := make([]Chromosome, len(e.bestSolutions))
	for i, c := range e.bestSolutions {
		out[i] = c.Clone()
	}
	return out
}

// Solutions returns each generation's full population when SaveSolutions
// is set
func (e *Engine) Solutions() []Population {
	out := make([]Population, len(e.solutions))
	for i, p := range e.solutions {
		out[i] = p.Clone()
	}
	return out
}

// Generations returns the number of generations evaluated before the loop
// ended
func (e *Engine) Generations() int {
	return e.generations
}

// Evaluations returns the number of fitness calls made, the final
// evaluation included
func (e *Engine) Evaluations() int {
	return e.evaluations
}

// Best returns the best individual of the final evaluation
func (e *Engine) Best() BestRecord {
	return BestRecord{Chromosome: e.best.Chromosome.Clone(), Fitness: e.best.Fitness}
}

// StopReason returns why the last run ended
func (e *Engine) StopReason() StopReason {
	return e.reason
}

// NumParents returns the number of parents kept each generation
func (e *Engine) NumParents() int {
	return e.numParents
}
