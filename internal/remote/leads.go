package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	leaddomain "agent_workbench/internal/leads/domain"
)

// ListLeads fetches one page of leads. Page numbers are zero-based.
func (cn *Conn) ListLeads(ctx context.Context, f leaddomain.Filter) (leaddomain.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(f.Page))
	q.Set("size", strconv.Itoa(f.PageSize))

	req := call{op: "list_leads", method: http.MethodGet, path: "/leads", query: q}
	if f.Mine {
		req.op, req.path = "list_my_leads", "/leads/my"
	} else {
		if f.Status != nil {
			q.Set("status", string(*f.Status))
		}
		if f.Search != "" {
			q.Set("search", f.Search)
		}
	}

	var page wirePage
	if err := cn.do(ctx, req, &page); err != nil {
		return leaddomain.Page{}, err
	}

	loc := cn.client.location
	items := make([]leaddomain.Lead, 0, len(page.Content))
	for _, w := range page.Content {
		items = append(items, w.toDomain(loc))
	}
	size := page.Size
	if size == 0 {
		size = f.PageSize
	}
	return leaddomain.Page{
		Items:      items,
		Page:       page.Number,
		PageSize:   size,
		TotalItems: page.TotalElements,
		TotalPages: page.TotalPages,
	}, nil
}

// GetLead fetches one lead.
func (cn *Conn) GetLead(ctx context.Context, id int64) (leaddomain.Lead, error) {
	var w wireLead
	err := cn.do(ctx, call{op: "get_lead", method: http.MethodGet, path: "/leads/" + strconv.FormatInt(id, 10)}, &w)
	if err != nil {
		return leaddomain.Lead{}, err
	}
	return w.toDomain(cn.client.location), nil
}

// CreateLead creates a lead with status NEW.
func (cn *Conn) CreateLead(ctx context.Context, in leaddomain.CreateInput) (leaddomain.Lead, error) {
	body := createLeadRequest{
		Name:       in.Name,
		Email:      in.Email,
		Phone:      in.Phone,
		Status:     string(leaddomain.StatusNew),
		LeadSource: in.LeadSource,
		Notes:      in.Notes,
	}
	var w wireLead
	if err := cn.do(ctx, call{op: "create_lead", method: http.MethodPost, path: "/leads", body: body}, &w); err != nil {
		return leaddomain.Lead{}, err
	}
	return w.toDomain(cn.client.location), nil
}

// UpdateLead sends a partial update of editable fields.
func (cn *Conn) UpdateLead(ctx context.Context, id int64, patch leaddomain.Patch) (leaddomain.Lead, error) {
	var w wireLead
	err := cn.do(ctx, call{op: "update_lead", method: http.MethodPatch, path: "/leads/" + strconv.FormatInt(id, 10), body: patch}, &w)
	if err != nil {
		return leaddomain.Lead{}, err
	}
	return w.toDomain(cn.client.location), nil
}

// UpdateLeadStatus moves a lead to status.
func (cn *Conn) UpdateLeadStatus(ctx context.Context, id int64, status leaddomain.Status) (leaddomain.Lead, error) {
	var w wireLead
	req := call{
		op:     "update_lead_status",
		method: http.MethodPatch,
		path:   "/leads/" + strconv.FormatInt(id, 10) + "/status",
		body:   statusRequest{Status: string(status)},
	}
	if err := cn.do(ctx, req, &w); err != nil {
		return leaddomain.Lead{}, err
	}
	return w.toDomain(cn.client.location), nil
}
