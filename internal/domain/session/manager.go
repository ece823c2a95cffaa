package session

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/bastion/internal/infrastructure/logging"
	"github.com/GriffinCanCode/bastion/internal/shared/id"
	"github.com/GriffinCanCode/bastion/internal/shared/paths"
	"go.uber.org/zap"
)

// KeySource supplies a stored threat-scan key for new sessions.
type KeySource interface {
	VTKey() (string, error)
}

// Manager tracks live sessions.
type Manager struct {
	deps Deps
	opts Options
	keys KeySource

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager that builds sessions from deps and opts.
func NewManager(deps Deps, opts Options) *Manager {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Manager{
		deps:     deps,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// WithKeySource makes new sessions prefer the stored threat-scan key over
// the configured one.
func (m *Manager) WithKeySource(keys KeySource) *Manager {
	m.keys = keys
	return m
}

// Open starts a session. requestedID resumes a client chosen id when it is
// valid and not in use; otherwise a fresh id is assigned. The ticket is
// released when the session closes, or immediately if Open fails.
func (m *Manager) Open(ctx context.Context, requestedID string, out Outbound, ticket Ticket) (*Session, error) {
	opts := m.opts
	if m.keys != nil {
		if key, err := m.keys.VTKey(); err == nil && key != "" {
			opts.VTKey = key
		} else if err != nil {
			m.deps.Logger.Warn("Failed to read stored threat-scan key", zap.Error(err))
		}
	}

	m.mu.Lock()
	sid := m.pickID(requestedID)
	s := New(sid, out, ticket, m.deps, opts)
	s.onClose = m.remove
	m.sessions[sid] = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		m.remove(s)
		return nil, err
	}
	return s, nil
}

func (m *Manager) pickID(requested string) string {
	if clean, err := paths.SessionID(requested); err == nil {
		if _, taken := m.sessions[clean]; !taken {
			return clean
		}
	}
	for {
		sid := string(id.NewSessionID())
		if _, taken := m.sessions[sid]; !taken {
			return sid
		}
	}
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll tears down every session and waits for each teardown.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range live {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Close(); err != nil {
				m.deps.Logger.Debug("Session teardown reported errors", zap.String("session_id", s.id), zap.Error(err))
			}
		}(s)
	}
	wg.Wait()
}
