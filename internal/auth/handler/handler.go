package handler

import (
	"net/http"

	"agent_workbench/internal/auth/transport"
	"agent_workbench/internal/session"
	"agent_workbench/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	sessions *session.Manager
}

const msgInvalidRequest = "invalid request"

func New(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes mounts the public auth routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.SignIn)
}

func (h *Handler) SignIn(c *gin.Context) {
	var req transport.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	sess, err := h.sessions.Login(c.Request.Context(), session.Credentials{
		Email:    req.Email,
		Password: req.Password,
		Timezone: req.Timezone,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.AuthResponse{
		AccessToken: sess.Token(),
		Agent:       sess.Profile(),
	})
}

func (h *Handler) SignOut(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	if httpkit.HandleError(c, h.sessions.Logout(c.Request.Context(), id.Token())) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetMe(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}
	httpkit.OK(c, sess.Profile())
}
