package dto

import (
	"errors"
	"strings"
)

// CreateEntitiesRequest is the payload for POST /entities.
type CreateEntitiesRequest struct {
	Entities []EntityInput `json:"entities" binding:"required"`
}

// EntityInput describes one entity to create.
type EntityInput struct {
	Name         string   `json:"name" binding:"required"`
	EntityType   string   `json:"entityType" binding:"required"`
	Observations []string `json:"observations,omitempty"`
}

// Validate performs validation on EntityInput
func (e *EntityInput) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("name cannot be empty")
	}
	if strings.TrimSpace(e.EntityType) == "" {
		return errors.New("entityType cannot be empty")
	}
	return nil
}

// DeleteEntitiesRequest is the payload for DELETE /entities.
type DeleteEntitiesRequest struct {
	Names []string `json:"names" binding:"required"`
}

// ObservationsRequest is the payload for POST and DELETE /observations.
type ObservationsRequest struct {
	EntityName string   `json:"entityName" binding:"required"`
	Contents   []string `json:"contents" binding:"required"`
}

// RelationsRequest is the payload for POST and DELETE /relations.
type RelationsRequest struct {
	Relations []RelationInput `json:"relations" binding:"required"`
}

// RelationInput describes one relation by its endpoints and type.
type RelationInput struct {
	From         string `json:"from" binding:"required"`
	To           string `json:"to" binding:"required"`
	RelationType string `json:"relationType" binding:"required"`
}

// OpenNodesRequest is the payload for POST /graph/open.
type OpenNodesRequest struct {
	Names []string `json:"names" binding:"required"`
}

// SwitchBackendRequest is the payload for POST /backend/switch.
type SwitchBackendRequest struct {
	Backend string `json:"backend" binding:"required"`
}

// RegisterUserRequest is the payload for POST /users.
type RegisterUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdatePasswordRequest is the payload for PUT /users/password.
type UpdatePasswordRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RecordInvocationRequest is the payload for POST /sessions.
type RecordInvocationRequest struct {
	UserID     *int64         `json:"user_id,omitempty"`
	SessionID  string         `json:"session_id" binding:"required"`
	ToolName   string         `json:"tool_name" binding:"required"`
	MethodName string         `json:"method_name" binding:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// AttachResultRequest is the payload for PUT /sessions/:id/result.
type AttachResultRequest struct {
	Result      any    `json:"result,omitempty"`
	ExecutionMS int64  `json:"execution_ms"`
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"error_message,omitempty"`
}
