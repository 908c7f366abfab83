package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/pkg/response"
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrSessionFull):
		response.Error(c, http.StatusBadRequest, "SESSION_FULL", err.Error(), "")
	case errors.Is(err, domain.ErrAlreadyJoined):
		response.Error(c, http.StatusBadRequest, "ALREADY_JOINED", err.Error(), "")
	case errors.Is(err, domain.ErrAlreadyWaiting):
		response.Error(c, http.StatusBadRequest, "ALREADY_WAITING", err.Error(), "")
	case errors.Is(err, domain.ErrNotAParticipant):
		response.Error(c, http.StatusBadRequest, "NOT_A_PARTICIPANT", err.Error(), "")
	case errors.Is(err, domain.ErrCapacityBelowRoster):
		response.Error(c, http.StatusBadRequest, "CAPACITY_BELOW_ROSTER", err.Error(), "")
	case domain.IsValidationError(err):
		response.ValidationError(c, err.Error())
	case domain.IsForbiddenError(err):
		response.Forbidden(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
