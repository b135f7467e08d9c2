package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphmem/pkg/codec"
	"github.com/soundprediction/graphmem/pkg/server/dto"
	"github.com/soundprediction/graphmem/pkg/sessions"
	"github.com/soundprediction/graphmem/pkg/store"
)

// respondError maps the storage failure taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		unavailable *store.BackendUnavailableError
		exhausted   *store.PoolExhaustedError
		duplicate   *store.DuplicateNameError
		dangling    *store.DanglingReferenceError
		serial      *codec.SerializationError
	)

	switch {
	case errors.Is(err, store.ErrUnknownBackend):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "unknown_backend", Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.As(err, &duplicate):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "duplicate_name", Message: err.Error()})
	case errors.Is(err, sessions.ErrResultAttached):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "result_attached", Message: err.Error()})
	case errors.As(err, &dangling):
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{Error: "dangling_reference", Message: err.Error()})
	case errors.As(err, &serial):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "serialization_failed", Message: err.Error()})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "backend_unavailable", Message: err.Error()})
	case errors.As(err, &exhausted):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "pool_exhausted", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal_error", Message: err.Error()})
	}
}
