package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphmem/pkg/server/dto"
	"github.com/soundprediction/graphmem/pkg/sessions"
)

// SessionsHandler handles user accounts and thinking-session history
type SessionsHandler struct {
	store *sessions.Store
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(store *sessions.Store) *SessionsHandler {
	return &SessionsHandler{store: store}
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// RegisterUser handles POST /users
func (h *SessionsHandler) RegisterUser(c *gin.Context) {
	var req dto.RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), req.Username, hashPassword(req.Password))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Result{Success: true, Data: user})
}

// UpdatePassword handles PUT /users/password
func (h *SessionsHandler) UpdatePassword(c *gin.Context) {
	var req dto.UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	if err := h.store.UpdatePassword(c.Request.Context(), req.Username, hashPassword(req.Password)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true})
}

// RecordInvocation handles POST /sessions
func (h *SessionsHandler) RecordInvocation(c *gin.Context) {
	var req dto.RecordInvocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	inv := &sessions.Invocation{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		ToolName:   req.ToolName,
		MethodName: req.MethodName,
		Parameters: req.Parameters,
	}
	id, err := h.store.RecordInvocation(c.Request.Context(), inv)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Result{Success: true, Data: gin.H{"id": id}})
}

// AttachResult handles PUT /invocations/:id/result
func (h *SessionsHandler) AttachResult(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: "invalid invocation id"})
		return
	}

	var req dto.AttachResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	if err := h.store.AttachResult(c.Request.Context(), id, req.Result, req.ExecutionMS, req.Success, req.ErrorMsg); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true})
}

// ListBySession handles GET /sessions/:session_id
func (h *SessionsHandler) ListBySession(c *gin.Context) {
	invocations, err := h.store.ListBySession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invocations)
}

// ListByTool handles GET /tools/:tool_name/invocations
func (h *SessionsHandler) ListByTool(c *gin.Context) {
	invocations, err := h.store.ListByTool(c.Request.Context(), c.Param("tool_name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invocations)
}
