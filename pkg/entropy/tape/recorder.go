package tape

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/kasuganosora/qevo/pkg/entropy"
)

// Recorder is an entropy.Source that forwards to another source and appends
// every successful batch to a tape. Source failures are returned unmodified
// and leave the tape untouched.
type Recorder struct {
	store  *Store
	source entropy.Source
	id     uuid.UUID

	mu  sync.Mutex
	seq uint64
}

// Recorder creates a recorder writing to tape id. Recording onto an existing
// tape appends after its last batch.
func (s *Store) Recorder(source entropy.Source, id uuid.UUID) (*Recorder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var seq uint64
	err := s.db.View(func(txn *badger.Txn) error {
		seq = uint64(countPrefix(txn, encodeTapePrefix(id)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tape %s: %w", id, err)
	}
	return &Recorder{store: s, source: source, id: id, seq: seq}, nil
}

// ID returns the tape id
func (r *Recorder) ID() uuid.UUID {
	return r.id
}

// Integers implements entropy.Source
func (r *Recorder) Integers(ctx context.Context, low, high int64, count int) ([]int64, error) {
	values, err := r.source.Integers(ctx, low, high, count)
	if err != nil {
		return nil, err
	}
	rec := Record{Kind: entropy.KindInteger.String(), IntLow: low, IntHigh: high, Ints: values}
	if err := r.append(rec); err != nil {
		return nil, err
	}
	return values, nil
}

// Floats implements entropy.Source
func (r *Recorder) Floats(ctx context.Context, low, high float64, count int) ([]float64, error) {
	values, err := r.source.Floats(ctx, low, high, count)
	if err != nil {
		return nil, err
	}
	rec := Record{Kind: entropy.KindFloat.String(), Low: low, High: high, Floats: values}
	if err := r.append(rec); err != nil {
		return nil, err
	}
	return values, nil
}

func (r *Recorder) append(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.put(r.id, r.seq, rec); err != nil {
		return fmt.Errorf("failed to record batch %d on tape %s: %w", r.seq, r.id, err)
	}
	r.seq++
	return nil
}
