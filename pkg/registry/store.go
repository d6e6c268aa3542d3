package registry

import (
	"errors"
	"net/netip"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyExists is returned by Create when the id is already
	// registered. One id belongs to one live connection, so hitting
	// this means a caller bug rather than a client mistake.
	ErrAlreadyExists = errors.New("entry already exists")

	// ErrNotFound is returned by UpdatePlayers and Remove when the
	// entry is gone. Updates legitimately race with connection
	// teardown, so callers treat this as a no-op.
	ErrNotFound = errors.New("entry not found")
)

// Entry is the registry's record for one live, registered game server.
// All fields except Players are fixed at creation.
type Entry struct {
	Name     string
	IP       netip.Addr
	TLS      bool
	Port     uint16
	Official bool
	Players  uint32
}

// shardCount trades memory for write concurrency. Updates from
// unrelated connections only contend when their ids hash to the same
// shard.
const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

// Store is a sharded concurrent map from connection id to Entry. It is
// the sole owner of all entries; callers only ever see copies.
type Store struct {
	shards [shardCount]shard
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].entries = make(map[uuid.UUID]*Entry)
	}
	return s
}

// shardFor picks a shard by FNV-1a over the id bytes.
func (s *Store) shardFor(id uuid.UUID) *shard {
	h := uint32(2166136261)
	for _, b := range id {
		h ^= uint32(b)
		h *= 16777619
	}
	return &s.shards[h%shardCount]
}

// Create inserts a new entry under id. Returns ErrAlreadyExists if the
// id is taken.
func (s *Store) Create(id uuid.UUID, entry Entry) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.entries[id]; ok {
		return ErrAlreadyExists
	}
	e := entry
	sh.entries[id] = &e
	return nil
}

// UpdatePlayers atomically replaces the player count for id, returning
// the previous count. Returns ErrNotFound if the entry was already
// removed; a late update must never resurrect an entry.
func (s *Store) UpdatePlayers(id uuid.UUID, players uint32) (uint32, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[id]
	if !ok {
		return 0, ErrNotFound
	}
	prev := e.Players
	e.Players = players
	return prev, nil
}

// Remove deletes the entry for id and returns a copy of it. Removal is
// idempotent: a second call returns ErrNotFound.
func (s *Store) Remove(id uuid.UUID) (Entry, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	delete(sh.entries, id)
	return *e, nil
}

// Get returns a copy of the entry for id.
func (s *Store) Get(id uuid.UUID) (Entry, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of registered entries.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot returns a point-in-time copy of all entries. Each entry is
// internally consistent, but shards are locked one at a time, so
// creates and removes that run concurrently with a snapshot may or may
// not be reflected in it.
func (s *Store) Snapshot() []Entry {
	out := make([]Entry, 0, s.Len())
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, e := range sh.entries {
			out = append(out, *e)
		}
		sh.mu.RUnlock()
	}
	return out
}
