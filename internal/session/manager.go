package session

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cloudcompute/webclient/internal/page"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultMaxSessions limits concurrent pages to prevent memory exhaustion
const DefaultMaxSessions = 256

// SessionKeepAliveWindow is how long a recently touched page is protected from eviction
const SessionKeepAliveWindow = 5 * time.Minute

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the limit is reached and nothing can be evicted.
	ErrTooManySessions = errors.New("too many sessions")
)

// Factory builds the page controller for a new session id.
type Factory func(id string) *page.Controller

// Manager tracks the open page sessions.
type Manager struct {
	sessions    *xsync.MapOf[string, *SessionState]
	newPage     Factory
	maxSessions int
	logger      *slog.Logger
}

// SessionState holds a page and its last access time.
type SessionState struct {
	Page         *page.Controller
	lastAccessed atomic.Int64
}

// LastAccessed returns the last time the session was used.
func (s *SessionState) LastAccessed() time.Time {
	return time.Unix(0, s.lastAccessed.Load())
}

func (s *SessionState) touch(now time.Time) {
	s.lastAccessed.Store(now.UnixNano())
}

// NewManager creates a session manager. maxSessions <= 0 uses DefaultMaxSessions.
func NewManager(newPage Factory, maxSessions int, logger *slog.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		sessions:    xsync.NewMapOf[string, *SessionState](),
		newPage:     newPage,
		maxSessions: maxSessions,
		logger:      logger.With("component", "session"),
	}
}

// Open creates a new page session.
func (m *Manager) Open() (*page.Controller, error) {
	if m.sessions.Size() >= m.maxSessions {
		m.evictOldest()
		if m.sessions.Size() >= m.maxSessions {
			return nil, ErrTooManySessions
		}
	}

	id := uuid.New().String()
	state := &SessionState{Page: m.newPage(id)}
	state.touch(time.Now())
	m.sessions.Store(id, state)

	m.logger.Info("session opened", "session", shortID(id), "active", m.sessions.Size())
	return state.Page, nil
}

// Get returns the page for id and marks it as used.
func (m *Manager) Get(id string) (*page.Controller, bool) {
	state, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	state.touch(time.Now())
	return state.Page, true
}

// TouchSession updates the last access time without returning the page.
func (m *Manager) TouchSession(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// Close tears down a session.
func (m *Manager) Close(id string) error {
	state, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return ErrNotFound
	}
	m.logger.Info("session closed", "session", shortID(id))
	return state.Page.Close()
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	return m.sessions.Size()
}

// CleanupOldSessions closes sessions not accessed within maxAge and returns how many were closed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	var stale []string
	m.sessions.Range(func(id string, state *SessionState) bool {
		if state.LastAccessed().Before(cutoff) {
			stale = append(stale, id)
		}
		return true
	})

	closed := 0
	for _, id := range stale {
		state, ok := m.sessions.LoadAndDelete(id)
		if !ok {
			continue
		}
		if err := state.Page.Close(); err != nil {
			m.logger.Warn("closing aged session", "session", shortID(id), "error", err)
		}
		closed++
		m.logger.Info("cleaned up aged session", "session", shortID(id),
			"idle", time.Since(state.LastAccessed()).Round(time.Second))
	}
	return closed
}

// CloseAll tears down every session, used on shutdown.
func (m *Manager) CloseAll() {
	var ids []string
	m.sessions.Range(func(id string, _ *SessionState) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		_ = m.Close(id)
	}
}

// evictOldest closes the least recently used session outside the keep-alive window.
func (m *Manager) evictOldest() {
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	var (
		oldestID string
		oldest   time.Time
	)
	m.sessions.Range(func(id string, state *SessionState) bool {
		at := state.LastAccessed()
		if at.After(keepAliveCutoff) {
			return true
		}
		if oldestID == "" || at.Before(oldest) {
			oldestID, oldest = id, at
		}
		return true
	})
	if oldestID == "" {
		return
	}
	if err := m.Close(oldestID); err == nil {
		m.logger.Info("evicted session to free memory", "session", shortID(oldestID))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
