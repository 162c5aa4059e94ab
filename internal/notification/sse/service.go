// Package sse provides Server-Sent Events support for live workbench updates.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"agent_workbench/platform/logger"

	"github.com/gin-gonic/gin"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventLeadChanged     EventType = "lead_changed"
	EventTaskChanged     EventType = "task_changed"
	EventDashboard       EventType = "dashboard"
	EventCommandRejected EventType = "command_rejected"
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType   `json:"type"`
	LeadID  int64       `json:"leadId,omitempty"`
	TaskID  int64       `json:"taskId,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// client represents a connected SSE client
type client struct {
	agentID int64
	events  chan Event
}

// Service manages SSE connections and event broadcasting
type Service struct {
	mu      sync.RWMutex
	clients map[int64][]*client // agentID -> clients
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		clients: make(map[int64][]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[c.agentID] = append(s.clients[c.agentID], c)
}

// removeClient unregisters a client connection. Clients already dropped by
// Close are left alone.
func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.agentID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.agentID] = append(clients[:i], clients[i+1:]...)
			if len(s.clients[c.agentID]) == 0 {
				delete(s.clients, c.agentID)
			}
			close(c.events)
			return
		}
	}
}

// Publish sends an event to every stream the agent has open.
func (s *Service) Publish(agentID int64, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients[agentID] {
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse buffer full", "agentId", agentID, "type", event.Type)
		}
	}
}

// Connected reports how many streams the agent has open.
func (s *Service) Connected(agentID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[agentID])
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler(getAgentID func(*gin.Context) (int64, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID, ok := getAgentID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "UNAUTHORIZED"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			agentID: agentID,
			events:  make(chan Event, 32),
		}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"agentId": agentID})
		c.Writer.Flush()
		s.log.Debug("sse client connected", "agentId", agentID)

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Debug("sse client disconnected", "agentId", agentID)
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					s.log.Error("sse encode failed", "error", err, "type", event.Type)
					continue
				}
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close ends every open stream.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[int64][]*client)
}
