// Package notification delivers workbench changes to agents: republished
// leads and tasks, recomputed dashboards and rejected commands are streamed
// over SSE to every browser tab the agent has open.
package notification

import (
	"agent_workbench/internal/events"
	apphttp "agent_workbench/internal/http"
	"agent_workbench/internal/notification/sse"
	"agent_workbench/internal/session"
	"agent_workbench/internal/views"
	"agent_workbench/platform/logger"
)

// Module owns the SSE streams and the publisher that feeds them.
type Module struct {
	sse       *sse.Service
	publisher *views.Publisher
	log       *logger.Logger
}

// New creates the notification module.
func New(sessions *session.Manager, log *logger.Logger) *Module {
	stream := sse.New(log)
	return &Module{
		sse:       stream,
		publisher: views.NewPublisher(stream, sessions, log),
		log:       log,
	}
}

// RegisterHandlers subscribes the publisher to domain events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.publisher.RegisterHandlers(bus)
	m.log.Info("notification module registered event handlers")
}

// SSE returns the stream service.
func (m *Module) SSE() *sse.Service {
	return m.sse
}

func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts the event stream. Browsers pass the token as a query
// parameter because EventSource cannot set headers.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/events", m.sse.Handler(session.AgentID))
}

// Close ends every open stream.
func (m *Module) Close() {
	m.sse.Close()
}

var _ apphttp.Module = (*Module)(nil)
