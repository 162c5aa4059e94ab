package transport

// ListTasksQuery is the query string of GET /tasks. From and To are RFC 3339.
type ListTasksQuery struct {
	AgentID *int64 `form:"agentId"`
	From    string `form:"from"`
	To      string `form:"to"`
}

type CompleteTaskRequest struct {
	Notes *string `json:"notes,omitempty"`
}
