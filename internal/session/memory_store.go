package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore keeps tokens in process. ttl <= 0 keeps them forever.
func NewMemoryStore(ttl time.Duration) TokenStore {
	return &memoryStore{entries: map[string]memoryEntry{}, ttl: ttl, now: time.Now}
}

func (m *memoryStore) Get(ctx context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return "", ErrTokenNotFound
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, sessionID)
		return "", ErrTokenNotFound
	}
	return e.token, nil
}

func (m *memoryStore) Put(ctx context.Context, sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{token: token}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[sessionID] = e
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}
