package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"agent_workbench/internal/calltasks/scheduler"
	"agent_workbench/internal/events"
	"agent_workbench/internal/leads/tracker"
	"agent_workbench/internal/outcome"
	"agent_workbench/internal/remote"
	"agent_workbench/internal/workset"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/logger"
	"agent_workbench/platform/metrics"
	"agent_workbench/platform/phone"
	"agent_workbench/platform/validator"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Settings configure every session the manager opens.
type Settings struct {
	IdleTTL          time.Duration
	Location         *time.Location
	ClosedLeadPolicy string
	CancelEnabled    bool
}

// Manager owns the live sessions of this process, keyed by a hash of their token.
type Manager struct {
	client   *remote.Client
	eventBus events.Bus
	val      *validator.Validator
	phones   phone.Normalizer
	settings Settings
	log      *logger.Logger
	now      func() time.Time

	mu       sync.RWMutex
	byKey    map[string]*Session
	byID     map[string]*Session
	resolves singleflight.Group
}

// NewManager creates a session manager.
func NewManager(client *remote.Client, eventBus events.Bus, val *validator.Validator, phones phone.Normalizer, settings Settings, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Manager{
		client:   client,
		eventBus: eventBus,
		val:      val,
		phones:   phones,
		settings: settings,
		log:      log,
		now:      time.Now,
		byKey:    make(map[string]*Session),
		byID:     make(map[string]*Session),
	}
}

// Credentials are what an agent signs in with. Timezone optionally overrides
// the deployment default for the session's calendar day.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Timezone string `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

// Login signs in through the auth collaborator and opens a session for the
// returned token.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*Session, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := m.val.Check(creds, "invalid credentials"); err != nil {
		return nil, err
	}
	res, err := m.client.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		if st := remote.StatusOf(err); st == http.StatusBadRequest || st == http.StatusUnauthorized || st == http.StatusForbidden {
			return nil, apperr.Wrap(apperr.KindUnauthorized, "invalid email or password", err)
		}
		return nil, err
	}
	if res.Token == "" {
		return nil, apperr.RemoteWrite("login returned no token", http.StatusOK, nil)
	}
	loc := m.settings.Location
	if creds.Timezone != "" {
		if l, err := time.LoadLocation(creds.Timezone); err == nil {
			loc = l
		}
	}
	sess := m.open(res.Token, res.Agent, loc)
	m.log.AuthEvent("login", res.Email, true, "")
	return sess, nil
}

// Resolve returns the session for token, opening one through the auth
// collaborator's /auth/me when this process has not seen the token yet.
// Concurrent first requests with the same token open a single session.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	key := tokenKey(token)
	if sess, ok := m.lookup(key); ok {
		sess.touch(m.now())
		return sess, nil
	}

	// The open outlives any one waiting request.
	shared := context.WithoutCancel(ctx)
	ch := m.resolves.DoChan(key, func() (interface{}, error) {
		if sess, ok := m.lookup(key); ok {
			return sess, nil
		}
		agent, err := m.client.As(token).Me(shared)
		if err != nil {
			if st := remote.StatusOf(err); st == http.StatusUnauthorized || st == http.StatusForbidden {
				return nil, apperr.Wrap(apperr.KindUnauthorized, "session expired", err)
			}
			return nil, err
		}
		return m.open(token, agent, m.settings.Location), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		sess := res.Val.(*Session)
		sess.touch(m.now())
		return sess, nil
	}
}

func (m *Manager) lookup(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.byKey[key]
	return sess, ok
}

// Logout ends the session for token and tells the auth collaborator.
func (m *Manager) Logout(ctx context.Context, token string) error {
	key := tokenKey(token)
	m.mu.Lock()
	sess, ok := m.byKey[key]
	if ok {
		m.removeLocked(sess)
	}
	m.mu.Unlock()

	if ok {
		m.log.AuthEvent("logout", sess.Email, true, "")
	}
	if err := m.client.As(token).Logout(ctx); err != nil && !remote.IsNotFound(err) {
		m.log.Warn("remote logout failed", "error", err)
	}
	return nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.byID[id]
	return sess, ok
}

// SessionSnapshot copies a live session's working set.
func (m *Manager) SessionSnapshot(ctx context.Context, id string) (workset.Snapshot, *time.Location, error) {
	sess, ok := m.Get(id)
	if !ok {
		return workset.Snapshot{}, nil, apperr.NotFound("session not found")
	}
	snap, err := sess.Snapshot(ctx)
	return snap, sess.Location, err
}

// Sessions lists the live sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	return out
}

// Sweep ends sessions idle for longer than the idle timeout.
func (m *Manager) Sweep() int {
	if m.settings.IdleTTL <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.byID {
		if s.idleSince(now) > m.settings.IdleTTL {
			m.removeLocked(s)
			n++
		}
	}
	return n
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.Info("idle sessions closed", "count", n)
			}
		}
	}
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		m.removeLocked(s)
	}
}

func (m *Manager) open(token string, agent remote.Agent, loc *time.Location) *Session {
	key := tokenKey(token)
	role := strings.ToUpper(strings.TrimPrefix(strings.ToUpper(agent.Role), "ROLE_"))
	if role == "" {
		role = RoleAgent
	}

	sess := &Session{
		ID:       uuid.New().String(),
		AgentID:  agent.ID,
		Name:     agent.Name,
		Email:    agent.Email,
		Role:     role,
		Location: loc,
		Conn:     m.client.As(token),
		Store:    workset.NewStore(),
		token:    token,
		key:      key,
		lastSeen: m.now(),
	}
	log := m.log
	recorder := outcome.NewRecorder(outcome.Actor{SessionID: sess.ID, AgentID: agent.ID}, m.eventBus, log)
	sess.Outcomes = recorder
	sess.Leads = tracker.New(sess.Conn, sess.Store, m.eventBus, recorder, m.val, m.phones, log)
	sess.Calls = scheduler.New(sess.Conn, sess.Store, sess.Leads, m.eventBus, recorder, m.val, scheduler.Settings{
		AgentID:          agent.ID,
		Location:         loc,
		ClosedLeadPolicy: m.settings.ClosedLeadPolicy,
		CancelEnabled:    m.settings.CancelEnabled,
	}, log)

	m.mu.Lock()
	if old, ok := m.byKey[key]; ok {
		m.removeLocked(old)
	}
	m.byKey[key] = sess
	m.byID[sess.ID] = sess
	m.mu.Unlock()

	metrics.SessionOpened()
	return sess
}

func (m *Manager) removeLocked(s *Session) {
	if _, ok := m.byID[s.ID]; !ok {
		return
	}
	delete(m.byID, s.ID)
	delete(m.byKey, s.key)
	s.Store.Close()
	metrics.SessionClosed()
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
