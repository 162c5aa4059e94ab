package scheduler

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/hibiken/asynq"
)

const TaskProspectusRequest = "prospectus.request"

// ProspectusRequestPayload is forwarded to the document service as-is.
type ProspectusRequestPayload struct {
	LeadID     int64   `json:"leadId"`
	AgentID    int64   `json:"agentId"`
	ProductIDs []int64 `json:"productIds"`
}

// NewProspectusRequestTask builds the queue task. Product ids are sorted and
// deduplicated so the same selection always produces the same payload.
func NewProspectusRequestTask(payload ProspectusRequestPayload) (*asynq.Task, error) {
	ids := slices.Clone(payload.ProductIDs)
	slices.Sort(ids)
	payload.ProductIDs = slices.Compact(ids)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProspectusRequest, data), nil
}

func ParseProspectusRequestPayload(task *asynq.Task) (ProspectusRequestPayload, error) {
	var payload ProspectusRequestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProspectusRequestPayload{}, fmt.Errorf("%s payload: %w", TaskProspectusRequest, err)
	}
	if payload.LeadID <= 0 || payload.AgentID <= 0 || len(payload.ProductIDs) == 0 {
		return ProspectusRequestPayload{}, fmt.Errorf("%s payload: lead, agent and products are required", TaskProspectusRequest)
	}
	return payload, nil
}
