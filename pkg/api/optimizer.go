// Package api wires configuration, entropy, monitoring and the genetic engine
// into a single entry point.
package api

import (
	"context"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/kasuganosora/qevo/pkg/config"
	"github.com/kasuganosora/qevo/pkg/entropy"
	"github.com/kasuganosora/qevo/pkg/entropy/tape"
	"github.com/kasuganosora/qevo/pkg/logger"
	"github.com/kasuganosora/qevo/pkg/monitor"
	"github.com/kasuganosora/qevo/pkg/optimizer/genetic"
	"golang.org/x/time/rate"
)

// Result summarises one optimizer run
type Result struct {
	RunID         uuid.UUID
	Best          genetic.Chromosome
	Fitness       float64
	Reason        genetic.StopReason
	Generations   int
	Evaluations   int
	History       *genetic.History
	BestSolutions []genetic.Chromosome
	Solutions     []genetic.Population
}

// Optimizer owns the entropy pool and tape store shared by its runs. The pool
// outlives individual runs, so buffered draws carry over from one run to the
// next.
type Optimizer struct {
	cfg       config.Config
	logger    logger.Logger
	observers []genetic.Observer

	store    *tape.Store
	recorder *tape.Recorder
	pool     *entropy.Pool
	metrics  *monitor.RunMetrics
	slow     *monitor.SlowGenerationLog

	mu     sync.Mutex
	closed bool
}

type options struct {
	logger    logger.Logger
	source    entropy.Source
	observers []genetic.Observer
}

// Option configures an Optimizer
type Option func(*options)

// WithLogger overrides the logger built from the log configuration
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSource replaces the configured pcg or crypto source, e.g. with a
// client for a remote entropy appliance. Replay ignores it.
func WithSource(src entropy.Source) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithObserver adds an engine observer next to the built-in monitors
func WithObserver(obs genetic.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// NewOptimizer validates cfg and builds the entropy pipeline:
// source, optional rate limit, optional tape recording, then the pool.
// Replaying a tape requires the pool size it was recorded with.
func NewOptimizer(cfg *config.Config, opts ...Option) (*Optimizer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(err, ErrCodeConfiguration, "invalid configuration")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	log := o.logger
	if log == nil {
		level, err := logger.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, WrapError(err, ErrCodeConfiguration, "invalid log level")
		}
		log = logger.NewDefaultLoggerWithOutput(level, os.Stderr, cfg.Log.Format)
	}

	opt := &Optimizer{
		cfg:       *cfg,
		logger:    log,
		observers: o.observers,
		metrics:   monitor.NewRunMetrics(),
	}
	if t := cfg.Monitor.SlowGeneration.Threshold; t > 0 {
		opt.slow = monitor.NewSlowGenerationLog(t, cfg.Monitor.SlowGeneration.MaxEntries)
	}

	src, err := opt.buildSource(o.source)
	if err != nil {
		_ = opt.Close()
		return nil, err
	}

	opt.pool, err = entropy.NewPool(src,
		entropy.WithPoolSize(cfg.Entropy.PoolSize),
		entropy.WithLogger(log))
	if err != nil {
		_ = opt.Close()
		return nil, WrapError(err, ErrCodeInternal, "create entropy pool")
	}
	return opt, nil
}

func (o *Optimizer) buildSource(override entropy.Source) (entropy.Source, error) {
	ec := o.cfg.Entropy

	if ec.UsesTape() {
		store, err := tape.Open(tape.Options{
			Dir:      ec.TapeDir,
			InMemory: ec.TapeInMemory,
			Logger:   o.logger,
		})
		if err != nil {
			return nil, WrapError(err, ErrCodeTape, "open tape store")
		}
		o.store = store
	}

	if ec.Source == config.SourceReplay {
		id, err := uuid.Parse(ec.ReplayTape)
		if err != nil {
			return nil, WrapError(err, ErrCodeConfiguration, "invalid replay tape id")
		}
		if ec.Record {
			o.logger.Warn("recording ignored while replaying tape %s", id)
		}
		o.logger.Info("replaying entropy tape %s", id)
		return o.store.Player(id), nil
	}

	var src entropy.Source
	switch {
	case override != nil:
		src = override
	case ec.Source == config.SourceCrypto:
		src = entropy.CryptoSource{}
	default:
		src = entropy.NewPCGSource(ec.Seed)
	}

	if ec.RateLimit > 0 {
		src = entropy.NewRateLimitedSource(src, rate.NewLimiter(rate.Limit(ec.RateLimit), ec.Burst))
	}

	if ec.Record {
		rec, err := o.store.Recorder(src, uuid.New())
		if err != nil {
			return nil, WrapError(err, ErrCodeTape, "start tape recording")
		}
		o.recorder = rec
		o.logger.Info("recording entropy to tape %s", rec.ID())
		src = rec
	}
	return src, nil
}

// Run evolves a population scored by fitness. onGeneration may be nil.
// Errors are *Error values coded by Classify; failures inside the engine
// that are not otherwise recognised come from the entropy source.
func (o *Optimizer) Run(ctx context.Context, fitness genetic.FitnessFunc, onGeneration genetic.GenerationFunc) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, NewError(ErrCodeClosed, "optimizer is closed", nil)
	}
	if fitness == nil {
		return nil, NewError(ErrCodeConfiguration, "fitness function is required", nil)
	}

	gaCfg := o.cfg.GA
	gaCfg.FitnessFunc = fitness
	gaCfg.OnGeneration = onGeneration

	engineOpts := []genetic.EngineOption{
		genetic.WithLogger(o.logger),
		genetic.WithObserver(o.metrics),
	}
	if o.slow != nil {
		engineOpts = append(engineOpts, genetic.WithObserver(o.slow))
	}
	for _, obs := range o.observers {
		engineOpts = append(engineOpts, genetic.WithObserver(obs))
	}

	engine, err := genetic.NewEngine(&gaCfg, o.pool, engineOpts...)
	if err != nil {
		return nil, WrapError(err, ErrCodeConfiguration, "create engine")
	}

	best, value, err := engine.Run(ctx)
	if err != nil {
		code := Classify(err)
		if code == ErrCodeInternal {
			code = ErrCodeEntropySource
		}
		return nil, WrapError(err, code, "genetic run failed")
	}

	return &Result{
		RunID:         engine.RunID(),
		Best:          best,
		Fitness:       value,
		Reason:        engine.StopReason(),
		Generations:   engine.Generations(),
		Evaluations:   engine.Evaluations(),
		History:       engine.History(),
		BestSolutions: engine.BestSolutions(),
		Solutions:     engine.Solutions(),
	}, nil
}

// Metrics returns the run metrics collector
func (o *Optimizer) Metrics() *monitor.RunMetrics {
	return o.metrics
}

// SlowGenerations returns the slow generation log, or nil when disabled
func (o *Optimizer) SlowGenerations() *monitor.SlowGenerationLog {
	return o.slow
}

// PoolStats returns the entropy pool counters
func (o *Optimizer) PoolStats() entropy.PoolStats {
	return o.pool.Stats()
}

// TapeID returns the id of the tape being recorded
func (o *Optimizer) TapeID() (uuid.UUID, bool) {
	if o.recorder == nil {
		return uuid.Nil, false
	}
	return o.recorder.ID(), true
}

// Close releases the tape store
func (o *Optimizer) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	if o.store != nil {
		if err := o.store.Close(); err != nil {
			return WrapError(err, ErrCodeTape, "close tape store")
		}
	}
	return nil
}

// Run builds an Optimizer from cfg, runs it once and closes it
func Run(ctx context.Context, cfg *config.Config, fitness genetic.FitnessFunc, onGeneration genetic.GenerationFunc) (genetic.Chromosome, float64, error) {
	opt, err := NewOptimizer(cfg)
	if err != nil {
		return nil, 0, err
	}
	defer opt.Close()

	res, err := opt.Run(ctx, fitness, onGeneration)
	if err != nil {
		return nil, 0, err
	}
	return res.Best, res.Fitness, nil
}
