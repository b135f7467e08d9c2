package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphmem/pkg/graph"
	"github.com/soundprediction/graphmem/pkg/server/dto"
)

// GraphHandler handles knowledge-graph requests
type GraphHandler struct {
	store *graph.Store
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(store *graph.Store) *GraphHandler {
	return &GraphHandler{store: store}
}

// ReadGraph handles GET /graph
func (h *GraphHandler) ReadGraph(c *gin.Context) {
	g, err := h.store.ReadGraph(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// ReadGraphFlat handles GET /graph/flat - one tagged record stream
func (h *GraphHandler) ReadGraphFlat(c *gin.Context) {
	g, err := h.store.ReadGraph(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph.FlattenGraph(g))
}

// Search handles GET /graph/search?q=
func (h *GraphHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: "q is required"})
		return
	}

	g, err := h.store.SearchNodes(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// Stats handles GET /graph/stats
func (h *GraphHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// OpenNodes handles POST /graph/open
func (h *GraphHandler) OpenNodes(c *gin.Context) {
	var req dto.OpenNodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	g, err := h.store.OpenNodes(c.Request.Context(), req.Names)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// CreateEntities handles POST /entities
func (h *GraphHandler) CreateEntities(c *gin.Context) {
	var req dto.CreateEntitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	inputs := make([]graph.EntityInput, 0, len(req.Entities))
	for _, e := range req.Entities {
		if err := e.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
			return
		}
		inputs = append(inputs, graph.EntityInput{
			Name:         e.Name,
			EntityType:   e.EntityType,
			Observations: e.Observations,
		})
	}

	created, err := h.store.CreateEntities(c.Request.Context(), inputs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Result{Success: true, Data: created})
}

// DeleteEntities handles DELETE /entities
func (h *GraphHandler) DeleteEntities(c *gin.Context) {
	var req dto.DeleteEntitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	if err := h.store.DeleteEntities(c.Request.Context(), req.Names); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true})
}

// AddObservations handles POST /observations
func (h *GraphHandler) AddObservations(c *gin.Context) {
	var req dto.ObservationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	result, err := h.store.AddObservations(c.Request.Context(), req.EntityName, req.Contents)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true, Data: result})
}

// DeleteObservations handles DELETE /observations
func (h *GraphHandler) DeleteObservations(c *gin.Context) {
	var req dto.ObservationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	if err := h.store.DeleteObservations(c.Request.Context(), req.EntityName, req.Contents); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true})
}

// CreateRelations handles POST /relations
func (h *GraphHandler) CreateRelations(c *gin.Context) {
	var req dto.RelationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	inputs := make([]graph.RelationInput, 0, len(req.Relations))
	for _, r := range req.Relations {
		inputs = append(inputs, graph.RelationInput{
			From:         r.From,
			To:           r.To,
			RelationType: r.RelationType,
		})
	}

	created, err := h.store.CreateRelations(c.Request.Context(), inputs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Result{Success: true, Data: created})
}

// DeleteRelations handles DELETE /relations
func (h *GraphHandler) DeleteRelations(c *gin.Context) {
	var req dto.RelationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	inputs := make([]graph.RelationInput, 0, len(req.Relations))
	for _, r := range req.Relations {
		inputs = append(inputs, graph.RelationInput{
			From:         r.From,
			To:           r.To,
			RelationType: r.RelationType,
		})
	}

	if err := h.store.DeleteRelations(c.Request.Context(), inputs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true})
}
