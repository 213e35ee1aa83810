package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ManagedKey is a symmetric key held by a KeyStore
type ManagedKey struct {
	ID        string
	Algorithm Enum
	Length    int32
	Material  []byte
	CreatedAt time.Time
}

// KeyStore is the storage backend of the server's default handlers
type KeyStore interface {
	Add(key *ManagedKey) error
	Get(id string) (*ManagedKey, error)
	Remove(id string) error
}

// MemoryStore is an in-memory KeyStore. It remembers destroyed identifiers
// so that a Get after a Destroy can report what happened to the object.
type MemoryStore struct {
	mu        sync.Mutex
	keys      map[string]*ManagedKey
	destroyed []string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*ManagedKey),
	}
}

// Add stores a key under its identifier
func (s *MemoryStore) Add(key *ManagedKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key.ID]; ok {
		return errors.Errorf("key %q already exists", key.ID)
	}

	s.keys[key.ID] = key
	return nil
}

// Get returns the key with the given identifier
func (s *MemoryStore) Get(id string) (*ManagedKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[id]; ok {
		return key, nil
	}

	if ContainsString(s.destroyed, id) {
		return nil, errors.Errorf("key %q has been destroyed", id)
	}

	return nil, errors.Errorf("no key with identifier %q", id)
}

// Remove destroys the key with the given identifier
func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[id]; !ok {
		return errors.Errorf("no key with identifier %q", id)
	}

	delete(s.keys, id)
	s.destroyed = append(s.destroyed, id)
	return nil
}
