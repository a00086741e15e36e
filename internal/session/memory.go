package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/photolabel/internal/workflow"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore keeps sessions in-process. Sessions round-trip through JSON
// so the store behaves exactly like the Redis one, callers never share a
// pointer with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	logger  *zap.Logger

	// OnEvict runs for each session the janitor expires, letting the
	// owner release the session's spooled image.
	OnEvict func(s *workflow.Session)
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		logger:  logger.Named("memory_store"),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, s *workflow.Session, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s.ID] = memoryEntry{payload: payload, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, id string) (*workflow.Session, error) {
	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	var s workflow.Session
	if err := json.Unmarshal(entry.payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Janitor sweeps expired sessions until ctx is done. Run it in its own
// goroutine.
func (m *MemoryStore) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryStore) sweep() {
	now := time.Now()

	m.mu.Lock()
	var evicted []memoryEntry
	for id, entry := range m.entries {
		if now.After(entry.expiresAt) {
			evicted = append(evicted, entry)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	if len(evicted) > 0 {
		m.logger.Info("swept expired sessions", zap.Int("count", len(evicted)))
	}
	if m.OnEvict == nil {
		return
	}
	for _, entry := range evicted {
		var s workflow.Session
		if err := json.Unmarshal(entry.payload, &s); err != nil {
			continue
		}
		m.OnEvict(&s)
	}
}
