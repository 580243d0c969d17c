// Package store persists finished analyses so repeated queries for the
// same position are answered from disk instead of re-searched.
package store

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "analysis:"

// Analysis is one cached search result for a position.
type Analysis struct {
	Move       string    `json:"move"`
	Score      int16     `json:"score"`
	Depth      uint8     `json:"depth"`
	Nodes      uint64    `json:"nodes"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Store wraps BadgerDB for persistent analysis storage.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the analysis database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func key(fen string) []byte {
	return []byte(keyPrefix + fen)
}

// Get returns the stored analysis for a FEN position, if any.
func (s *Store) Get(fen string) (*Analysis, error) {
	var a *Analysis

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(fen))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			a = &Analysis{}
			return json.Unmarshal(val, a)
		})
	})

	return a, err
}

// Put stores an analysis for a FEN position. A shallower result never
// overwrites a deeper one.
func (s *Store) Put(fen string, a Analysis) error {
	existing, err := s.Get(fen)
	if err != nil {
		return err
	}
	if existing != nil && existing.Depth >= a.Depth {
		return nil
	}

	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now()
	}

	data, err := json.Marshal(a)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(fen), data)
	})
}
