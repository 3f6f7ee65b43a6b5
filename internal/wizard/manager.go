package wizard

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager keeps wizard sessions in memory, keyed by session id.
type Manager struct {
	// IdleTimeout evicts sessions unused for longer. Zero keeps sessions
	// until they are ended.
	IdleTimeout time.Duration
	Clock       func() time.Time

	mu       sync.Mutex
	sessions map[string]*managed
	newID    func() string
}

type managed struct {
	session  *Session
	lastUsed time.Time
}

func NewManager() *Manager {
	return &Manager{
		Clock:    time.Now,
		sessions: make(map[string]*managed),
		newID:    func() string { return uuid.NewString() },
	}
}

// Start opens a session for a logged-in user and returns its id. Idle
// sessions are evicted first.
func (m *Manager) Start(flow Flow, username, companyName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock()
	m.evictLocked(now)
	id := m.newID()
	m.sessions[id] = &managed{session: NewSession(id, flow, username, companyName), lastUsed: now}
	return id
}

// Do runs fn on the session with the manager lock held. A session idle past
// IdleTimeout is dropped and reported as not found.
func (m *Manager) Do(id string, fn func(*Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock()
	e, ok := m.sessions[id]
	if ok && m.expired(e, now) {
		delete(m.sessions, id)
		ok = false
	}
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	e.lastUsed = now
	return fn(e.session)
}

// Snapshot returns a copy of the session state.
func (m *Manager) Snapshot(id string) (State, error) {
	var st State
	err := m.Do(id, func(s *Session) error {
		st = s.Snapshot()
		return nil
	})
	return st, err
}

// End drops the session. Unknown ids are ignored.
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Evict drops every idle session and returns how many were dropped.
func (m *Manager) Evict() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked(m.Clock())
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) expired(e *managed, now time.Time) bool {
	return m.IdleTimeout > 0 && now.Sub(e.lastUsed) > m.IdleTimeout
}

func (m *Manager) evictLocked(now time.Time) int {
	n := 0
	for id, e := range m.sessions {
		if m.expired(e, now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
