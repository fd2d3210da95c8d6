package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/metrics"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/model"
)

// Manager is the in-memory registry of live sessions.
type Manager struct {
	defaults model.Settings
	ttl      time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Sessions idle for longer than ttl are
// removed by Sweep; ttl <= 0 disables expiry.
func NewManager(defaults model.Settings, ttl time.Duration) *Manager {
	return &Manager{
		defaults: defaults,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Defaults returns the settings new sessions start with.
func (m *Manager) Defaults() model.Settings {
	return m.defaults
}

// Create registers a new initialized session for owner.
func (m *Manager) Create(owner string) *Session {
	s := NewSession(owner, m.defaults)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	slog.Info("session created", "session_id", s.ID, "user_id", owner)
	return s
}

// Get returns the session with id. Sessions belonging to another owner are
// reported as not found.
func (m *Manager) Get(id, owner string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || s.Owner != owner {
		return nil, ErrSessionNotFound
	}
	s.Touch()
	return s, nil
}

// Delete destroys the session with id.
func (m *Manager) Delete(id, owner string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.Owner != owner {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	metrics.SessionsActive.Dec()
	slog.Info("session deleted", "session_id", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the ttl. Sessions with an
// answer in flight or an open websocket are kept. It returns the number removed.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.State() == StateIdle && !s.Attached() && s.LastActive().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		metrics.SessionsActive.Sub(float64(len(expired)))
		slog.Info("expired idle sessions", "count", len(expired), "ttl", m.ttl.String())
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}
	interval := m.ttl / 4
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
