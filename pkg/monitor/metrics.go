// Package monitor collects run statistics from the genetic engine and
// mirrors them to prometheus.
package monitor

import (
	"sync"
	"time"

	"github.com/kasuganosora/qevo/pkg/optimizer/genetic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qevo_ga_generations_total",
		Help: "Total generations evaluated",
	})

	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qevo_ga_evaluations_total",
		Help: "Total fitness function calls",
	})

	bestFitness = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qevo_ga_best_fitness",
		Help: "Best fitness of the most recent generation",
	})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qevo_ga_generation_duration_seconds",
		Help:    "Wall time of one generation in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qevo_ga_runs_total",
		Help: "Finished runs by stop reason",
	}, []string{"reason"})
)

// RunMetrics is a genetic.Observer that keeps totals across runs
type RunMetrics struct {
	mu                 sync.RWMutex
	runs               int64
	generations        int64
	evaluations        int64
	bestFitness        float64
	haveBest           bool
	generationDuration time.Duration
	lastReason         genetic.StopReason
	runsByReason       map[genetic.StopReason]int64
	startTime          time.Time
}

// NewRunMetrics creates an empty collector
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{
		runsByReason: make(map[genetic.StopReason]int64),
		startTime:    time.Now(),
	}
}

// ObserveGeneration implements genetic.Observer
func (m *RunMetrics) ObserveGeneration(s genetic.GenerationStats) {
	m.mu.Lock()
	m.generations++
	m.generationDuration += s.Elapsed
	m.bestFitness = s.Best.Fitness
	m.haveBest = true
	m.mu.Unlock()

	generationsTotal.Inc()
	bestFitness.Set(s.Best.Fitness)
	generationDuration.Observe(s.Elapsed.Seconds())
}

// ObserveRun implements genetic.Observer
func (m *RunMetrics) ObserveRun(s genetic.RunStats) {
	m.mu.Lock()
	m.runs++
	m.evaluations += int64(s.Evaluations)
	m.lastReason = s.Reason
	m.runsByReason[s.Reason]++
	if s.Reason != genetic.StopFailed && s.Reason != genetic.StopCanceled {
		m.bestFitness = s.Best.Fitness
		m.haveBest = true
	}
	m.mu.Unlock()

	evaluationsTotal.Add(float64(s.Evaluations))
	runsTotal.WithLabelValues(string(s.Reason)).Inc()
}

// GetRuns returns the number of finished runs
func (m *RunMetrics) GetRuns() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs
}

// GetGenerations returns the number of evaluated generations
func (m *RunMetrics) GetGenerations() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generations
}

// GetEvaluations returns the number of fitness calls of finished runs
func (m *RunMetrics) GetEvaluations() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evaluations
}

// GetBestFitness returns the latest best fitness and whether one was seen
func (m *RunMetrics) GetBestFitness() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bestFitness, m.haveBest
}

// GetAvgGenerationDuration returns the mean generation wall time
func (m *RunMetrics) GetAvgGenerationDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.generations == 0 {
		return 0
	}
	return m.generationDuration / time.Duration(m.generations)
}

// GetLastStopReason returns why the most recent run ended
func (m *RunMetrics) GetLastStopReason() genetic.StopReason {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReason
}

// GetRunsByReason returns a copy of the per-reason run counts
func (m *RunMetrics) GetRunsByReason() map[genetic.StopReason]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[genetic.StopReason]int64, len(m.runsByReason))
	for k, v := range m.runsByReason {
		result[k] = v
	}
	return result
}

// GetUptime returns the time since creation or the last Reset
func (m *RunMetrics) GetUptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.startTime)
}

// Reset clears all totals. Prometheus counters are not reset.
func (m *RunMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = 0
	m.generations = 0
	m.evaluations = 0
	m.bestFitness = 0
	m.haveBest = false
	m.generationDuration = 0
	m.lastReason = ""
	m.runsByReason = make(map[genetic.StopReason]int64)
	m.startTime = time.Now()
}
