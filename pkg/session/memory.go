package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	raw     []byte
	ended   bool
	expires time.Time
}

// MemoryStore is a single-process Store for development and tests. Values
// are copied on the way in and out so callers never share history slices.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, callID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[callID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(e.expires) {
		delete(s.entries, callID)
		return nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal(e.raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	if e, ok := s.entries[sess.CallID]; ok && e.ended {
		return ErrEnded
	}

	sess.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.entries[sess.CallID] = memoryEntry{raw: raw, ended: sess.State == StateEnded, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) End(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(tombstone(callID, s.now().UTC()))
	if err != nil {
		return err
	}
	s.entries[callID] = memoryEntry{raw: raw, ended: true, expires: s.now().Add(TombstoneTTL)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, callID)
	return nil
}

// Len reports sessions that have not ended.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	n := 0
	for _, e := range s.entries {
		if !e.ended {
			n++
		}
	}
	return n
}

// sweep drops expired entries. Caller holds mu.
func (s *MemoryStore) sweep() {
	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, id)
		}
	}
}
