// Package testutils holds entropy sources shared by package tests.
package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/kasuganosora/qevo/pkg/entropy"
)

// Call records one fetch made against a source
type Call struct {
	Kind  entropy.Kind
	Low   float64
	High  float64
	Count int
}

// CountingSource forwards to Source and records every call.
// When Err is set every call fails with it.
type CountingSource struct {
	Source entropy.Source
	Err    error

	mu    sync.Mutex
	calls []Call
}

// NewCountingSource wraps src
func NewCountingSource(src entropy.Source) *CountingSource {
	return &CountingSource{Source: src}
}

// Integers implements entropy.Source
func (s *CountingSource) Integers(ctx context.Context, low, high int64, count int) ([]int64, error) {
	s.record(Call{Kind: entropy.KindInteger, Low: float64(low), High: float64(high), Count: count})
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Source.Integers(ctx, low, high, count)
}

// Floats implements entropy.Source
func (s *CountingSource) Floats(ctx context.Context, low, high float64, count int) ([]float64, error) {
	s.record(Call{Kind: entropy.KindFloat, Low: low, High: high, Count: count})
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Source.Floats(ctx, low, high, count)
}

// Calls returns a copy of the recorded calls
func (s *CountingSource) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Reset forgets recorded calls
func (s *CountingSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *CountingSource) record(c Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

// SequenceSource returns a predictable stream: integers cycle through
// [low, high) and floats step through [low, high) in 1/Steps increments.
// Useful for checking FIFO ordering.
type SequenceSource struct {
	Steps int

	mu    sync.Mutex
	nextI int64
	nextF int
}

// Integers implements entropy.Source
func (s *SequenceSource) Integers(_ context.Context, low, high int64, count int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, count)
	for i := range out {
		out[i] = low + s.nextI%(high-low)
		s.nextI++
	}
	return out, nil
}

// Floats implements entropy.Source
func (s *SequenceSource) Floats(_ context.Context, low, high float64, count int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.Steps
	if steps <= 0 {
		steps = 10
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = low + (high-low)*float64(s.nextF%steps)/float64(steps)
		s.nextF++
	}
	return out, nil
}

type scriptKey struct {
	kind      entropy.Kind
	low, high float64
}

// ScriptedSource serves values queued per (kind, low, high). Keys with no
// queued values fall back to Fallback when set, otherwise the call fails.
// It satisfies the same method set as entropy.Pool, so tests can hand it
// straight to the engine to force gates, loci and pointers.
type ScriptedSource struct {
	Fallback entropy.Source

	mu     sync.Mutex
	queues map[scriptKey][]float64
}

// NewScriptedSource creates an empty script
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{queues: make(map[scriptKey][]float64)}
}

// PushIntegers queues integer values for [low, high)
func (s *ScriptedSource) PushIntegers(low, high int64, values ...int64) *ScriptedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scriptKey{entropy.KindInteger, float64(low), float64(high)}
	for _, v := range values {
		s.queues[k] = append(s.queues[k], float64(v))
	}
	return s
}

// PushFloats queues float values for [low, high)
func (s *ScriptedSource) PushFloats(low, high float64, values ...float64) *ScriptedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scriptKey{entropy.KindFloat, low, high}
	s.queues[k] = append(s.queues[k], values...)
	return s
}

// Remaining returns how many queued values are left for a key
func (s *ScriptedSource) Remaining(kind entropy.Kind, low, high float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[scriptKey{kind, low, high}])
}

// Integers implements entropy.Source
func (s *ScriptedSource) Integers(ctx context.Context, low, high int64, count int) ([]int64, error) {
	vals, ok := s.pop(scriptKey{entropy.KindInteger, float64(low), float64(high)}, count)
	if !ok {
		if s.Fallback != nil {
			return s.Fallback.Integers(ctx, low, high, count)
		}
		return nil, fmt.Errorf("testutils: no scripted integers for [%d, %d) x%d", low, high, count)
	}
	out := make([]int64, count)
	for i, v := range vals {
		out[i] = int64(v)
	}
	return out, nil
}

// Floats implements entropy.Source
func (s *ScriptedSource) Floats(ctx context.Context, low, high float64, count int) ([]float64, error) {
	vals, ok := s.pop(scriptKey{entropy.KindFloat, low, high}, count)
	if !ok {
		if s.Fallback != nil {
			return s.Fallback.Floats(ctx, low, high, count)
		}
		return nil, fmt.Errorf("testutils: no scripted floats for [%g, %g) x%d", low, high, count)
	}
	return vals, nil
}

func (s *ScriptedSource) pop(k scriptKey, count int) ([]float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[k]
	if len(q) < count {
		return nil, false
	}
	out := make([]float64, count)
	copy(out, q[:count])
	s.queues[k] = q[count:]
	return out, true
}
