package wizard

import (
	"context"
	"strings"
	"sync"
	"time"
)

// SnapshotStore persists run snapshots by key. Load returns nil, nil when no
// snapshot exists.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snap Snapshot) error
	Delete(ctx context.Context, key string) error
}

// Pruner removes snapshots last updated before a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

// Load returns a copy of the snapshot under key.
func (s *MemoryStore) Load(_ context.Context, key string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	out := snap.clone()
	return &out, nil
}

// Save stores a copy of snap under key.
func (s *MemoryStore) Save(_ context.Context, key string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snaps == nil {
		s.snaps = make(map[string]Snapshot)
	}
	s.snaps[strings.TrimSpace(key)] = snap.clone()
	return nil
}

// Delete removes the snapshot under key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, strings.TrimSpace(key))
	return nil
}

// Prune drops snapshots updated before the cutoff.
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, snap := range s.snaps {
		if snap.UpdatedAt.Before(before) {
			delete(s.snaps, key)
			n++
		}
	}
	return n, nil
}

// Keys lists the stored keys.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.snaps))
	for key := range s.snaps {
		out = append(out, key)
	}
	return out
}
