package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/qevo/pkg/optimizer/genetic"
)

// SlowGeneration is one generation whose wall time reached the threshold
type SlowGeneration struct {
	ID          int64
	RunID       uuid.UUID
	Generation  int
	Duration    time.Duration
	Evaluations int
	BestFitness float64
	Timestamp   time.Time
}

// SlowGenerationLog is a genetic.Observer keeping the most recent slow
// generations, oldest dropped first once maxEntries is reached
type SlowGenerationLog struct {
	mu         sync.RWMutex
	entries    []*SlowGeneration
	threshold  time.Duration
	maxEntries int
	nextID     int64
}

// NewSlowGenerationLog creates a log. A non-positive maxEntries keeps 100.
func NewSlowGenerationLog(threshold time.Duration, maxEntries int) *SlowGenerationLog {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &SlowGenerationLog{
		entries:    make([]*SlowGeneration, 0, maxEntries),
		threshold:  threshold,
		maxEntries: maxEntries,
		nextID:     1,
	}
}

// IsSlow reports whether d reaches the threshold
func (s *SlowGenerationLog) IsSlow(d time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return d >= s.threshold
}

// ObserveGeneration implements genetic.Observer
func (s *SlowGenerationLog) ObserveGeneration(g genetic.GenerationStats) {
	if !s.IsSlow(g.Elapsed) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, &SlowGeneration{
		ID:          s.nextID,
		RunID:       g.RunID,
		Generation:  g.Generation,
		Duration:    g.Elapsed,
		Evaluations: g.Evaluations,
		BestFitness: g.Best.Fitness,
		Timestamp:   time.Now(),
	})
	s.nextID++

	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[1:]
	}
}

// ObserveRun implements genetic.Observer
func (s *SlowGenerationLog) ObserveRun(genetic.RunStats) {}

// All returns the recorded slow generations, oldest first
func (s *SlowGenerationLog) All() []*SlowGeneration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*SlowGeneration, len(s.entries))
	copy(result, s.entries)
	return result
}

// ByRun returns the slow generations of one run
func (s *SlowGenerationLog) ByRun(runID uuid.UUID) []*SlowGeneration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*SlowGeneration{}
	for _, e := range s.entries {
		if e.RunID == runID {
			result = append(result, e)
		}
	}
	return result
}

// Count returns the number of entries held
func (s *SlowGenerationLog) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SetThreshold changes the threshold for future generations
func (s *SlowGenerationLog) SetThreshold(threshold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
}

// Threshold returns the current threshold
func (s *SlowGenerationLog) Threshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// Clear drops every entry
func (s *SlowGenerationLog) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]*SlowGeneration, 0, s.maxEntries)
	s.nextID = 1
}

// SlowGenerationAnalysis summarizes the held entries
type SlowGenerationAnalysis struct {
	Count         int
	TotalDuration time.Duration
	AvgDuration   time.Duration
	MaxDuration   time.Duration
	MinDuration   time.Duration
	Runs          int
}

// Analyze summarizes the held entries
func (s *SlowGenerationLog) Analyze() SlowGenerationAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return SlowGenerationAnalysis{}
	}

	a := SlowGenerationAnalysis{
		Count:       len(s.entries),
		MaxDuration: s.entries[0].Duration,
		MinDuration: s.entries[0].Duration,
	}
	runs := make(map[uuid.UUID]struct{})
	for _, e := range s.entries {
		a.TotalDuration += e.Duration
		a.MaxDuration = max(a.MaxDuration, e.Duration)
		a.MinDuration = min(a.MinDuration, e.Duration)
		runs[e.RunID] = struct{}{}
	}
	a.AvgDuration = a.TotalDuration / time.Duration(len(s.entries))
	a.Runs = len(runs)
	return a
}
