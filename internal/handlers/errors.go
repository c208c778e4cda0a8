package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/po-approvals/internal/approval"
	"github.com/imrishuroy/po-approvals/internal/auth"
	"github.com/imrishuroy/po-approvals/internal/logger"
	"github.com/imrishuroy/po-approvals/internal/orders"
)

// respondError maps domain errors onto HTTP responses. Unknown errors are
// logged and reported as 500 without detail.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	var stateErr *approval.StateError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "detail": err.Error()})
	case errors.Is(err, approval.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "detail": err.Error()})
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "detail": "purchase order not found"})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "status": stateErr.Current, "detail": err.Error()})
	case errors.Is(err, approval.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "detail": err.Error()})
	case errors.Is(err, orders.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "detail": "order changed concurrently; re-read and retry"})
	case errors.Is(err, approval.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "detail": err.Error()})
	default:
		log.Error().Err(err).
			Str("request_id", c.GetString(requestIDKey)).
			Str("path", c.FullPath()).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
