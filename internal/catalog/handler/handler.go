package handler

import (
	"net/http"

	"agent_workbench/internal/collaborators"
	"agent_workbench/internal/session"
	"agent_workbench/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	collab *collaborators.Service
}

func New(collab *collaborators.Service) *Handler {
	return &Handler{collab: collab}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListProducts)
}

// ListProducts returns the product catalog as the catalog service sends it.
func (h *Handler) ListProducts(c *gin.Context) {
	sess := session.MustFromContext(c)
	if sess == nil {
		return
	}

	raw, err := h.collab.Products(c.Request.Context(), sess.Conn)
	if httpkit.HandleError(c, err) {
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}
