package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphmem/pkg/server/dto"
	"github.com/soundprediction/graphmem/pkg/store"
)

// BackendHandler handles backend inspection and switching
type BackendHandler struct {
	mgr      *store.Manager
	registry *store.Registry
}

// NewBackendHandler creates a new backend handler
func NewBackendHandler(mgr *store.Manager, registry *store.Registry) *BackendHandler {
	return &BackendHandler{mgr: mgr, registry: registry}
}

// Status handles GET /backend - active backend and its pool counters
func (h *BackendHandler) Status(c *gin.Context) {
	status, err := h.mgr.PoolStatus()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":      h.mgr.Active(),
		"registered":  h.registry.Backends(),
		"pool_status": status,
	})
}

// Switch handles POST /backend/switch - atomic switch of the active backend
func (h *BackendHandler) Switch(c *gin.Context) {
	var req dto.SwitchBackendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	if err := h.mgr.Switch(c.Request.Context(), req.Backend); err != nil {
		respondError(c, err)
		return
	}
	if err := h.mgr.Initialize(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	status, err := h.mgr.PoolStatus()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active":      h.mgr.Active(),
		"pool_status": status,
	})
}
