// Package storage persists small local records (the session record) under string keys.
package storage

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Storage is durable local key/value storage for small records.
type Storage interface {
	// Load returns the record stored under key or ErrNotFound.
	Load(key string) ([]byte, error)
	// Save replaces the record stored under key.
	Save(key string, value []byte) error
	// Delete removes the record; deleting a missing record is not an error.
	Delete(key string) error
	// Close releases underlying resources.
	Close() error
}

// Memory is an in-process Storage, used when nothing must survive a restart.
type Memory struct {
	mu   sync.Mutex
	recs map[string][]byte
}

// NewMemory returns an empty in-memory storage.
func NewMemory() *Memory { return &Memory{recs: map[string][]byte{}} }

func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.recs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Save(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, key)
	return nil
}

func (m *Memory) Close() error { return nil }
