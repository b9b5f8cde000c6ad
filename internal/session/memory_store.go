package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process store for tests and single-node deployments
// without Redis. Expired sessions are dropped on read and by Sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || sess.Expired(time.Now().UTC()) {
		return nil, ErrNotFound
	}
	copied := *sess
	copied.Answers = copyMap(sess.Answers)
	copied.ExtractionMisses = copyMap(sess.ExtractionMisses)
	copied.Transcript = append([]Turn(nil), sess.Transcript...)
	return &copied, nil
}

func (m *MemoryStore) Put(ctx context.Context, sess *Session) error {
	copied := *sess
	copied.Answers = copyMap(sess.Answers)
	copied.ExtractionMisses = copyMap(sess.ExtractionMisses)
	copied.Transcript = append([]Turn(nil), sess.Transcript...)

	m.mu.Lock()
	m.sessions[sess.ID] = &copied
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// StartSweeper runs Sweep on the given interval until the returned stop
// function is called.
func (m *MemoryStore) StartSweeper(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep(time.Now().UTC())
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// Sweep removes expired sessions and returns how many were dropped.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sess := range m.sessions {
		if sess.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func copyMap[V any](src map[string]V) map[string]V {
	if src == nil {
		return nil
	}
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
