// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	calldomain "agent_workbench/internal/calltasks/domain"
	leaddomain "agent_workbench/internal/leads/domain"
	"agent_workbench/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// Origin tells subscribers where a change was observed.
type Origin string

const (
	// OriginLocal changes were confirmed by a command in this process.
	OriginLocal Origin = "local"
	// OriginPeer changes were announced by another replica.
	OriginPeer Origin = "peer"
)

// =============================================================================
// Lead Events
// =============================================================================

// LeadChanged is published when a session's copy of a lead changes:
// created, edited, moved, or rolled back after a rejected move.
type LeadChanged struct {
	BaseEvent
	SessionID string          `json:"sessionId"`
	AgentID   int64           `json:"agentId"`
	Lead      leaddomain.Lead `json:"lead"`
	SyncState string          `json:"syncState"`
	Origin    Origin          `json:"origin"`
}

func (e LeadChanged) EventName() string { return "leads.lead.changed" }

// OrderingKey keeps a session's events in publish order.
func (e LeadChanged) OrderingKey() string { return e.SessionID }

// LeadStatusChanged is published after the system of record confirms a status move.
type LeadStatusChanged struct {
	BaseEvent
	SessionID string            `json:"sessionId"`
	AgentID   int64             `json:"agentId"`
	LeadID    int64             `json:"leadId"`
	OldStatus leaddomain.Status `json:"oldStatus"`
	NewStatus leaddomain.Status `json:"newStatus"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

func (e LeadStatusChanged) OrderingKey() string { return e.SessionID }

// =============================================================================
// Call Task Events
// =============================================================================

// CallTaskChanged is published when a session's copy of a call task changes.
type CallTaskChanged struct {
	BaseEvent
	SessionID string          `json:"sessionId"`
	AgentID   int64           `json:"agentId"`
	Task      calldomain.Task `json:"task"`
	Origin    Origin          `json:"origin"`
}

func (e CallTaskChanged) EventName() string { return "calltasks.task.changed" }

func (e CallTaskChanged) OrderingKey() string { return e.SessionID }

// =============================================================================
// Command Events
// =============================================================================

// CommandOutcome is published once per mutating command, whatever its result.
type CommandOutcome struct {
	BaseEvent
	SessionID    string `json:"sessionId"`
	AgentID      int64  `json:"agentId"`
	Command      string `json:"command"`
	Entity       string `json:"entity"`
	EntityID     int64  `json:"entityId"`
	Outcome      string `json:"outcome"`
	ErrorKind    string `json:"errorKind,omitempty"`
	RemoteStatus int    `json:"remoteStatus,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

func (e CommandOutcome) EventName() string { return "commands.outcome" }

func (e CommandOutcome) OrderingKey() string { return e.SessionID }

// Command outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeNoop      = "noop"
	OutcomeRejected  = "rejected"
	OutcomeInvalid   = "invalid"
	OutcomeAbandoned = "abandoned"
)
