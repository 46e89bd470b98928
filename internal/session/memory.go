package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InMemoryStore is the default session store. It keeps all records in
// process memory, which also means the daemon must run as a single
// instance (see the lockfile package).
type InMemoryStore struct {
	*store
	m *memoryBackend
}

type memoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]*ConversationState
}

// NewInMemoryStore creates an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	b := &memoryBackend{sessions: make(map[string]*ConversationState)}
	return &InMemoryStore{store: newStore(b), m: b}
}

func (b *memoryBackend) load(ctx context.Context, userID string) (*ConversationState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[userID].Clone(), nil
}

func (b *memoryBackend) save(ctx context.Context, state *ConversationState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[state.UserID] = state.Clone()
	return nil
}

func (b *memoryBackend) delete(ctx context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, userID)
	return nil
}

// Len returns the number of stored session records, expired ones included.
func (s *InMemoryStore) Len() int {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	return len(s.m.sessions)
}

// StartSweeper launches a background loop that reclaims memory held by
// expired sessions. Correctness does not depend on it: expiry is lazy and
// expired records are already ignored on access.
func (s *InMemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Debug("session.InMemoryStore: sweeper stopped")
				return
			case <-ticker.C:
				removed := s.sweep(s.store.now())
				if removed > 0 {
					slog.Info("session.InMemoryStore: swept expired sessions", "removed", removed)
				}
			}
		}
	}()
}

func (s *InMemoryStore) sweep(now time.Time) int {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	removed := 0
	for userID, state := range s.m.sessions {
		if state.IsExpired(now) {
			delete(s.m.sessions, userID)
			removed++
		}
	}
	return removed
}
