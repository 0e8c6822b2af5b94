package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/carportal/carportal/internal/portal/carform"
)

type memoryEntry struct {
	form    []byte
	images  map[string][]byte
	touched time.Time
}

// MemoryStore keeps drafts in process. Entries idle for longer than the TTL
// are invisible to readers and removed by Sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore constructs a MemoryStore. A nil clock uses time.Now.
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*carform.Form, error) {
	s.mu.RLock()
	entry, ok := s.live(sessionID)
	var raw []byte
	if ok {
		raw = entry.form
	}
	s.mu.RUnlock()

	if raw == nil {
		return nil, ErrNotFound
	}
	var form carform.Form
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, fmt.Errorf("drafts: decode draft: %w", err)
	}
	return &form, nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, form *carform.Form) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("drafts: encode draft: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entry(sessionID)
	entry.form = raw
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PutImage(_ context.Context, sessionID, imageID string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(sessionID).images[imageID] = buf
	return nil
}

func (s *MemoryStore) Image(_ context.Context, sessionID, imageID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.live(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := entry.images[imageID]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *MemoryStore) DeleteImages(_ context.Context, sessionID string, imageIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return nil
	}
	for _, id := range imageIDs {
		delete(entry.images, id)
	}
	return nil
}

// Sweep drops expired entries and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// entry returns the live entry for sessionID, creating it if needed. Caller holds the write lock.
func (s *MemoryStore) entry(sessionID string) *memoryEntry {
	now := s.now()
	entry, ok := s.entries[sessionID]
	if !ok || s.expired(entry, now) {
		entry = &memoryEntry{images: make(map[string][]byte)}
		s.entries[sessionID] = entry
	}
	entry.touched = now
	return entry
}

func (s *MemoryStore) live(sessionID string) (*memoryEntry, bool) {
	entry, ok := s.entries[sessionID]
	if !ok || s.expired(entry, s.now()) {
		return nil, false
	}
	return entry, true
}

func (s *MemoryStore) expired(entry *memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(entry.touched) > s.ttl
}
