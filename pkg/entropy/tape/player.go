package tape

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kasuganosora/qevo/pkg/entropy"
)

// Player is an entropy.Source that replays a tape batch by batch. Each
// request must match the next recorded batch exactly.
type Player struct {
	store *Store
	id    uuid.UUID

	mu  sync.Mutex
	seq uint64
}

// Player creates a player positioned at the start of tape id
func (s *Store) Player(id uuid.UUID) *Player {
	return &Player{store: s, id: id}
}

// Position returns the index of the next batch to replay
func (p *Player) Position() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// Integers implements entropy.Source
func (p *Player) Integers(ctx context.Context, low, high int64, count int) ([]int64, error) {
	rec, err := p.next(ctx, entropy.KindInteger, fmt.Sprintf("[%d, %d)", low, high), count,
		func(r Record) bool { return r.matchesIntegers(low, high, count) })
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(rec.Ints))
	copy(out, rec.Ints)
	return out, nil
}

// Floats implements entropy.Source
func (p *Player) Floats(ctx context.Context, low, high float64, count int) ([]float64, error) {
	rec, err := p.next(ctx, entropy.KindFloat, fmt.Sprintf("[%g, %g)", low, high), count,
		func(r Record) bool { return r.matchesFloats(low, high, count) })
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rec.Floats))
	copy(out, rec.Floats)
	return out, nil
}

// next returns the record at the play head when match accepts it. want
// describes the request for error messages.
func (p *Player) next(ctx context.Context, kind entropy.Kind, want string, count int, match func(Record) bool) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, found, err := p.store.get(p.id, p.seq)
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, fmt.Errorf("%w: tape %s at batch %d", ErrTapeExhausted, p.id, p.seq)
	}
	if !match(rec) {
		return Record{}, fmt.Errorf("%w: batch %d holds %d %s in %s, requested %d %s in %s",
			ErrTapeMismatch, p.seq, rec.Count(), rec.Kind, rec.bounds(), count, kind, want)
	}
	p.seq++
	return rec, nil
}
