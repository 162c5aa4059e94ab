// Package session holds the per-agent working state of the workbench: the
// signed-in identity, the remote connection bound to its token, the working
// set and the commands that operate on it.
package session

import (
	"context"
	"sync"
	"time"

	"agent_workbench/internal/calltasks/scheduler"
	"agent_workbench/internal/leads/tracker"
	"agent_workbench/internal/outcome"
	"agent_workbench/internal/remote"
	"agent_workbench/internal/workset"
)

// Roles issued by the auth collaborator.
const (
	RoleAgent = "AGENT"
	RoleAdmin = "ADMIN"
)

// Session is one signed-in agent. It is created at sign-in, or on the first
// authenticated request that carries an unknown token, and ends at sign-out
// or after the idle timeout.
type Session struct {
	ID       string
	AgentID  int64
	Name     string
	Email    string
	Role     string
	Location *time.Location

	Conn  *remote.Conn
	Store *workset.Store
	Leads *tracker.Service
	Calls *scheduler.Service

	// Outcomes reports commands that do not belong to the tracker or scheduler.
	Outcomes *outcome.Recorder

	token string
	key   string

	mu       sync.Mutex
	lastSeen time.Time
}

// Token returns the bearer token the session forwards to the system of record.
func (s *Session) Token() string { return s.token }

// IsAdmin reports whether the agent has the ADMIN role.
func (s *Session) IsAdmin() bool { return s.Role == RoleAdmin }

// Roles returns the session's roles for request identity.
func (s *Session) Roles() []string { return []string{s.Role} }

// Snapshot copies the session's working set.
func (s *Session) Snapshot(ctx context.Context) (workset.Snapshot, error) {
	return s.Store.Snapshot(ctx)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Profile is the public description of a session.
type Profile struct {
	SessionID string `json:"sessionId"`
	AgentID   int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Timezone  string `json:"timezone"`
}

// Profile describes the session for API responses.
func (s *Session) Profile() Profile {
	return Profile{
		SessionID: s.ID,
		AgentID:   s.AgentID,
		Name:      s.Name,
		Email:     s.Email,
		Role:      s.Role,
		Timezone:  s.Location.String(),
	}
}
