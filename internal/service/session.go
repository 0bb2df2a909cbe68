package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stihelp/orchestrator/internal/domain"
)

// SessionStore holds the ephemeral dialogue state. Sessions are in memory
// only; after the TTL the dialogue must be restarted explicitly, it is never
// re-attached to its durable conversation record.
type SessionStore interface {
	Create(sess *domain.Session)
	Get(sessionID string) (*domain.Session, bool)
	Put(sess *domain.Session)
	Delete(sessionID string)
}

type memorySessionStore struct {
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*domain.Session

	now func() time.Time
}

// NewMemorySessionStore creates the in-memory session store. Expiry is
// checked lazily on access; there is no background sweeper.
func NewMemorySessionStore(ttl time.Duration) SessionStore {
	return &memorySessionStore{
		ttl:      ttl,
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

func (m *memorySessionStore) Create(sess *domain.Session) {
	now := m.now()
	sess.CreatedAt = now
	sess.LastSeen = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.SessionID] = sess
}

func (m *memorySessionStore) Get(sessionID string) (*domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if m.now().Sub(sess.LastSeen) > m.ttl {
		delete(m.sessions, sessionID)
		return nil, false
	}
	return sess, true
}

func (m *memorySessionStore) Put(sess *domain.Session) {
	sess.Touch(m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.SessionID] = sess
}

func (m *memorySessionStore) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// newSessionID issues the opaque session handle given to the client.
func newSessionID() string {
	return "s_" + uuid.New().String()
}
