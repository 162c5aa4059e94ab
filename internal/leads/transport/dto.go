package transport

import "agent_workbench/internal/leads/domain"

// ListLeadsQuery is the query string of GET /leads and GET /leads/my.
type ListLeadsQuery struct {
	Status string `form:"status"`
	Search string `form:"search"`
	Page   int    `form:"page"`
	Size   int    `form:"size"`
}

// Filter converts the query into a tracker filter. ok is false when the
// status is not a known lead status.
func (q ListLeadsQuery) Filter(mine bool) (domain.Filter, bool) {
	f := domain.Filter{Search: q.Search, Page: q.Page, PageSize: q.Size, Mine: mine}
	if q.Status != "" {
		status, ok := domain.ParseStatus(q.Status)
		if !ok {
			return f, false
		}
		f.Status = &status
	}
	return f, true
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

type LeadResponse struct {
	domain.Lead
	SyncState string `json:"syncState,omitempty"`
}
