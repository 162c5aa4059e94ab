// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Identity represents the authenticated agent's identity.
// Handlers read it without depending on how the token was verified.
type Identity interface {
	// Subject returns the token subject (the agent's login email).
	Subject() string
	// AgentID returns the agent's id in the system of record, 0 before the session resolves it.
	AgentID() int64
	// Roles returns the agent's roles.
	Roles() []string
	// HasRole checks if the agent has a specific role.
	HasRole(role string) bool
	// Token returns the raw bearer token forwarded to the system of record.
	Token() string
	// IsAuthenticated returns true if the token was verified.
	IsAuthenticated() bool
}

type identity struct {
	subject       string
	agentID       int64
	roles         []string
	token         string
	authenticated bool
}

func (i *identity) Subject() string { return i.subject }
func (i *identity) AgentID() int64  { return i.agentID }
func (i *identity) Roles() []string { return i.roles }
func (i *identity) Token() string   { return i.token }

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if no verified token is present.
func GetIdentity(c *gin.Context) Identity {
	subject := c.GetString(ContextSubjectKey)
	token := c.GetString(ContextTokenKey)
	if subject == "" || token == "" {
		return &identity{authenticated: false}
	}

	var roleList []string
	if roles, ok := c.Get(ContextRolesKey); ok {
		roleList, _ = roles.([]string)
	}

	return &identity{
		subject:       subject,
		agentID:       c.GetInt64(ContextAgentIDKey),
		roles:         roleList,
		token:         token,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the agent is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "UNAUTHORIZED"})
		return nil
	}
	return id
}

// SetAgent records the agent id and roles resolved for the request.
func SetAgent(c *gin.Context, agentID int64, roles []string) {
	c.Set(ContextAgentIDKey, agentID)
	c.Set(ContextRolesKey, roles)
}
