package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tutorchat/internal/models"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Sessions idle for longer
// than ttl are dropped by Sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]entry
	ttl      time.Duration

	lockMu sync.Mutex
	locks  map[uuid.UUID]chan struct{}

	now func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]entry),
		locks:    make(map[uuid.UUID]chan struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a private copy of the session; mutate it and Put it back.
func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || (m.ttl > 0 && m.now().After(e.expiresAt)) {
		return nil, ErrNotFound
	}

	var s models.Session
	if err := json.Unmarshal(e.data, &s); err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrCorrupt, id, err)
	}
	return &s, nil
}

func (m *MemoryStore) Put(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = entry{data: data, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Lock blocks until no other caller holds the session or ctx is done.
func (m *MemoryStore) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	for {
		m.lockMu.Lock()
		held, busy := m.locks[id]
		if !busy {
			ch := make(chan struct{})
			m.locks[id] = ch
			m.lockMu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					m.lockMu.Lock()
					delete(m.locks, id)
					m.lockMu.Unlock()
					close(ch)
				})
			}, nil
		}
		m.lockMu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Sweep removes expired sessions and reports how many were dropped.
func (m *MemoryStore) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.sessions {
		if now.After(e.expiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len reports the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
