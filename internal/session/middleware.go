package session

import (
	"net/http"
	"strings"

	"agent_workbench/platform/httpkit"
	"agent_workbench/platform/logger"

	"github.com/gin-gonic/gin"
)

const contextSessionKey = "session"

// Middleware binds the verified token to its session. It must run after
// httpkit.AuthRequired.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := httpkit.GetIdentity(c)
		if !id.IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpkit.ErrorResponse{Error: "unauthorized", Code: "UNAUTHORIZED"})
			return
		}

		sess, err := m.Resolve(c.Request.Context(), id.Token())
		if err != nil {
			httpkit.HandleError(c, err)
			c.Abort()
			return
		}
		if sess.Email != "" && !strings.EqualFold(sess.Email, id.Subject()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpkit.ErrorResponse{Error: "token subject does not match session", Code: "UNAUTHORIZED"})
			return
		}

		httpkit.SetAgent(c, sess.AgentID, sess.Roles())
		c.Set(contextSessionKey, sess)
		ctx := logger.WithSession(c.Request.Context(), sess.ID, sess.AgentID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// FromContext returns the request's session.
func FromContext(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(contextSessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*Session)
	return sess, ok
}

// MustFromContext returns the request's session or aborts with 401.
func MustFromContext(c *gin.Context) *Session {
	sess, ok := FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, httpkit.ErrorResponse{Error: "unauthorized", Code: "UNAUTHORIZED"})
		return nil
	}
	return sess
}

// AgentID reports the agent id of the request's session, for SSE streams.
func AgentID(c *gin.Context) (int64, bool) {
	sess, ok := FromContext(c)
	if !ok {
		return 0, false
	}
	return sess.AgentID, true
}
