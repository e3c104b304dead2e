package store

import (
	"fmt"
	"sync"
)

// BatchedStore buffers Puts in memory so parallel workers never contend
// on the SQLite writer. Reads pass through to the underlying Store.
//
// Thread safety: the mutex protects the pending slice. Commit must not
// run concurrently with Put.
type BatchedStore struct {
	store *Store
	mu    sync.Mutex

	pending []*Entry
}

// NewBatchedStore creates a BatchedStore backed by s.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{store: s}
}

// Get reads through to the database.
func (b *BatchedStore) Get(path, hash, engineKey string) (*Entry, bool, error) {
	b.mu.Lock()
	for i := len(b.pending) - 1; i >= 0; i-- {
		e := b.pending[i]
		if e.Path == path && e.Hash == hash && e.EngineKey == engineKey {
			b.mu.Unlock()
			return e, true, nil
		}
	}
	b.mu.Unlock()

	sum, ok, err := b.store.Get(path, hash, engineKey)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &Entry{Path: path, Hash: hash, EngineKey: engineKey, Summary: sum}, true, nil
}

// Put buffers e until Commit.
func (b *BatchedStore) Put(e *Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, e)
}

// Len reports the number of buffered entries.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Commit writes every buffered entry in a single transaction and clears
// the buffer. On error nothing is written and the buffer is kept.
func (b *BatchedStore) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}

	tx, err := b.store.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for _, e := range b.pending {
		if err := putTx(tx, e); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	b.pending = nil
	return nil
}
