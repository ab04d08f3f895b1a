package server

import (
	"errors"
	"net/http"

	notificationdomain "github.com/dinehall/dinehall/internal/notification/domain"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	settlementdomain "github.com/dinehall/dinehall/internal/settlement/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Shortfall string `json:"shortfall,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware maps domain errors collected on the gin
// context to one JSON error body. User-visible failures carry their
// taxonomy kind; internal detail stays in the logs.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if tender, ok := settlementdomain.AsInsufficientTender(err); ok {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:      "insufficient_tender",
			Message:   tender.Error(),
			Shortfall: tender.Shortfall.StringFixed(2),
		}
	}

	switch {
	case errors.Is(err, settlementdomain.ErrAlreadySettled):
		return http.StatusConflict, errorPayload{
			Type:    "already_settled",
			Message: "session is already settled",
		}
	case errors.Is(err, sessiondomain.ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "invalid state transition",
		}
	case errors.Is(err, sessiondomain.ErrSessionNotFound),
		errors.Is(err, sessiondomain.ErrOrderNotFound),
		errors.Is(err, sessiondomain.ErrTableNotFound),
		errors.Is(err, sessiondomain.ErrItemNotFound),
		errors.Is(err, notificationdomain.ErrNotificationNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "resource not found",
		}
	case errors.Is(err, sessiondomain.ErrInvalidRestaurant),
		errors.Is(err, sessiondomain.ErrInvalidQuantity),
		errors.Is(err, sessiondomain.ErrInvalidDiscount),
		errors.Is(err, sessiondomain.ErrInvalidStation),
		errors.Is(err, settlementdomain.ErrInvalidMethod),
		errors.Is(err, settlementdomain.ErrTenderRequired),
		errors.Is(err, notificationdomain.ErrInvalidTarget),
		errors.Is(err, notificationdomain.ErrEmptyTitle),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
