package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"go-face-analyzer/internal/logger"
	"go-face-analyzer/internal/observer"
)

// Session is one user's hand-off scope.
type Session struct {
	ID        string
	CreatedAt time.Time

	store *MemoryStore

	mu       sync.Mutex
	lastSeen time.Time
	onEnd    []func()
	ended    bool
}

// Store returns the session's hand-off store.
func (s *Session) Store() Store {
	return s.store
}

// OnEnd registers fn to run once when the session ends or expires.
func (s *Session) OnEnd(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnd = append(s.onEnd, fn)
}

// LastSeen returns the last time the session was looked up.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) end() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	hooks := s.onEnd
	s.onEnd = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	s.store.Clear()
}

// Manager is the registry of live sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	events   observer.Subject
	log      *logrus.Logger
	cron     *cron.Cron
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithEvents publishes session_expired events to s.
func WithEvents(s observer.Subject) ManagerOption {
	return func(m *Manager) {
		m.events = s
	}
}

// NewManager creates a registry whose sessions expire after ttl without a
// lookup. A non-positive ttl disables expiry.
func NewManager(ttl time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		log:      logger.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens a new session with an empty store.
func (m *Manager) Create() *Session {
	now := m.now()
	s := &Session{
		ID:        xid.New().String(),
		CreatedAt: now,
		store:     NewMemoryStore(),
		lastSeen:  now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logger.WithSession(s.ID).Debug("Session created")
	return s
}

// Get looks up a live session and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, bool) {
	if _, err := xid.FromString(id); err != nil {
		return nil, false
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.touch(m.now())
	return s, true
}

// End removes a session, runs its end hooks and clears its store. It reports
// whether the session existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.end()
	logger.WithSession(id).Debug("Session ended")
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep ends every session idle for longer than the ttl and returns how many
// were ended.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.end()
		observer.Emit(context.Background(), m.events, observer.AnalysisEvent{
			EventType: observer.SessionExpired,
			SessionID: s.ID,
			Success:   true,
			Metadata:  map[string]interface{}{"idle": m.now().Sub(s.LastSeen()).String()},
		})
	}
	if len(expired) > 0 {
		m.log.WithField("expired", len(expired)).Info("Expired idle sessions")
	}
	return len(expired)
}

// StartSweeper runs Sweep on a cron schedule such as "@every 1m".
func (m *Manager) StartSweeper(schedule string) error {
	cronLog := cron.PrintfLogger(m.log)
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if _, err := c.AddFunc(schedule, func() { m.Sweep() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()

	c.Start()
	return nil
}

// Stop halts the sweeper and waits for a running sweep to finish or ctx to
// expire, then ends every remaining session.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.End(id)
	}
}
