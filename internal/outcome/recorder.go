// Package outcome reports the result of every mutating command to the log,
// the metrics registry and the event bus.
package outcome

import (
	"context"

	"agent_workbench/internal/events"
	"agent_workbench/internal/remote"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/logger"
	"agent_workbench/platform/metrics"
)

// Actor identifies who issued a command.
type Actor struct {
	SessionID string
	AgentID   int64
}

// Recorder publishes command outcomes for one actor.
type Recorder struct {
	actor Actor
	bus   events.Bus
	log   *logger.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(actor Actor, bus events.Bus, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Discard()
	}
	return &Recorder{actor: actor, bus: bus, log: log}
}

// Actor returns the actor the recorder reports for.
func (r *Recorder) Actor() Actor { return r.actor }

// Record reports one command result. err decides the outcome unless outcome is set.
func (r *Recorder) Record(ctx context.Context, command, entity string, entityID int64, outcome string, err error) {
	if outcome == "" {
		outcome = Classify(err)
	}

	evt := events.CommandOutcome{
		BaseEvent: events.NewBaseEvent(),
		SessionID: r.actor.SessionID,
		AgentID:   r.actor.AgentID,
		Command:   command,
		Entity:    entity,
		EntityID:  entityID,
		Outcome:   outcome,
	}
	if err != nil {
		evt.Detail = err.Error()
		if e, ok := apperr.As(err); ok {
			evt.ErrorKind = e.Kind.Code()
			evt.RemoteStatus = e.Status
		}
	}

	metrics.RecordCommand(command, outcome)
	r.log.WithContext(ctx).CommandOutcome(command, entity, entityID, outcome, err)
	if r.bus != nil {
		r.bus.Publish(ctx, evt)
	}
}

// Classify maps an error to a command outcome.
func Classify(err error) string {
	switch {
	case err == nil:
		return events.OutcomeConfirmed
	case remote.IsAbandoned(err):
		return events.OutcomeAbandoned
	case apperr.Is(err, apperr.KindRemoteWrite), apperr.Is(err, apperr.KindRemoteFetch):
		return events.OutcomeRejected
	default:
		return events.OutcomeInvalid
	}
}
