package domain

// TransitionOutcome classifies a requested status change.
type TransitionOutcome int

const (
	// TransitionAllowed means the move may be sent to the system of record.
	TransitionAllowed TransitionOutcome = iota
	// TransitionNoop means the lead already has the requested status.
	TransitionNoop
	// TransitionTerminal means the lead is CONVERTED or LOST and cannot move.
	TransitionTerminal
	// TransitionUnknownStatus means the requested status is not a funnel status.
	TransitionUnknownStatus
)

// CheckTransition decides whether a lead in current may move to next.
// Any non-terminal status may move to any other status, backwards included.
// Setting the current status again is always a no-op, even when terminal.
func CheckTransition(current, next Status) TransitionOutcome {
	if !next.IsKnown() {
		return TransitionUnknownStatus
	}
	if current == next {
		return TransitionNoop
	}
	if current.IsTerminal() {
		return TransitionTerminal
	}
	return TransitionAllowed
}
