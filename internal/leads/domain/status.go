// Package domain provides core business rules for the leads bounded context.
package domain

import "strings"

// Status is a lead's position in the sales funnel.
type Status string

const (
	StatusNew          Status = "NEW"
	StatusContacted    Status = "CONTACTED"
	StatusQualified    Status = "QUALIFIED"
	StatusProposalSent Status = "PROPOSAL_SENT"
	StatusConverted    Status = "CONVERTED"
	StatusLost         Status = "LOST"
)

// Statuses lists every status in funnel order.
var Statuses = []Status{
	StatusNew,
	StatusContacted,
	StatusQualified,
	StatusProposalSent,
	StatusConverted,
	StatusLost,
}

// terminalStatuses are statuses an agent cannot move a lead out of.
var terminalStatuses = map[Status]bool{
	StatusConverted: true,
	StatusLost:      true,
}

var statusTitles = map[Status]string{
	StatusNew:          "New",
	StatusContacted:    "Contacted",
	StatusQualified:    "Qualified",
	StatusProposalSent: "Proposal Sent",
	StatusConverted:    "Converted",
	StatusLost:         "Lost",
}

// ParseStatus accepts a status name in any case.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.IsKnown()
}

// IsKnown reports whether s is one of the six funnel statuses.
func (s Status) IsKnown() bool {
	_, ok := statusTitles[s]
	return ok
}

// IsTerminal reports whether s is CONVERTED or LOST.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// Title is the human label of the status.
func (s Status) Title() string {
	if t, ok := statusTitles[s]; ok {
		return t
	}
	return string(s)
}

// Position is the funnel index of s, -1 when unknown.
func (s Status) Position() int {
	for i, candidate := range Statuses {
		if candidate == s {
			return i
		}
	}
	return -1
}
