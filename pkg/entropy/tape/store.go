// Package tape records entropy batches in a badger store and replays them
// as an entropy.Source, so a run's randomness can be inspected or repeated.
package tape

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/kasuganosora/qevo/pkg/logger"
)

// Common errors
var (
	ErrTapeMismatch  = errors.New("tape: request does not match recorded batch")
	ErrTapeExhausted = errors.New("tape: no more recorded batches")
	ErrClosed        = errors.New("tape: store is closed")
)

// Options configures the backing badger database
type Options struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
	Logger     logger.Logger
}

// Store owns the badger database holding all tapes
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) a tape store
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, fmt.Errorf("tape: directory required unless in-memory")
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(badgerLogger{opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open tape store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close tape store: %w", err)
	}
	return nil
}

// Tapes lists the ids of every recorded tape in key order
func (s *Store) Tapes() ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var ids []uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(PrefixTape)
		it := txn.NewIterator(opts)
		defer it.Close()

		var last uuid.UUID
		for it.Rewind(); it.Valid(); it.Next() {
			id, _, ok := decodeRecordKey(it.Item().Key())
			if !ok || (len(ids) > 0 && id == last) {
				continue
			}
			ids = append(ids, id)
			last = id
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tapes: %w", err)
	}
	return ids, nil
}

// Len returns the number of batches recorded on a tape
func (s *Store) Len(id uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		n = countPrefix(txn, encodeTapePrefix(id))
		return nil
	})
	return n, err
}

// Delete drops every record of a tape
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = encodeTapePrefix(id)
		it := txn.NewIterator(opts)

		keysToDelete := make([][]byte, 0)
		for it.Rewind(); it.Valid(); it.Next() {
			keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to delete tape record: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) put(id uuid.UUID, seq uint64, rec Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeRecordKey(id, seq), data)
	})
}

func (s *Store) get(id uuid.UUID, seq uint64) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, false, ErrClosed
	}

	var rec Record
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeRecordKey(id, seq))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			rec, err = DecodeRecord(val)
			return err
		})
	})
	return rec, found, err
}

func countPrefix(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

// badgerLogger routes badger's own logging through our logger
type badgerLogger struct {
	l logger.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{})   { b.l.Error("badger: "+format, args...) }
func (b badgerLogger) Warningf(format string, args ...interface{}) { b.l.Warn("badger: "+format, args...) }
func (b badgerLogger) Infof(format string, args ...interface{})    { b.l.Debug("badger: "+format, args...) }
func (b badgerLogger) Debugf(format string, args ...interface{})   { b.l.Debug("badger: "+format, args...) }
