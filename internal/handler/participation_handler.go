package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/internal/dto"
	"github.com/rcn123/rpg-lobby/internal/service"
	"github.com/rcn123/rpg-lobby/pkg/response"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ParticipationHandler handles joining, queueing and leaving sessions
type ParticipationHandler struct {
	admissionService service.AdmissionService
}

// NewParticipationHandler creates a new participation handler
func NewParticipationHandler(admissionService service.AdmissionService) *ParticipationHandler {
	return &ParticipationHandler{admissionService: admissionService}
}

type admitFunc func(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error)

func (h *ParticipationHandler) admit(c *gin.Context, spanName string, fn admitFunc) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), spanName)
	defer span.End()

	userID, ok := callerID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	sessionID := c.Param("id")
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID),
	)

	result, err := fn(ctx, sessionID, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("status", string(result.Status)))
	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// Join handles POST /sessions/:id/join
func (h *ParticipationHandler) Join(c *gin.Context) {
	h.admit(c, "handler.participation.join", h.admissionService.Join)
}

// JoinWaitingList handles POST /sessions/:id/waiting-list
func (h *ParticipationHandler) JoinWaitingList(c *gin.Context) {
	h.admit(c, "handler.participation.join_waiting_list", h.admissionService.JoinWaitingList)
}

// Leave handles POST /sessions/:id/leave
func (h *ParticipationHandler) Leave(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.participation.leave")
	defer span.End()

	userID, ok := callerID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	sessionID := c.Param("id")
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID),
	)

	result, err := h.admissionService.Leave(ctx, sessionID, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetParticipants handles GET /sessions/:id/participants
func (h *ParticipationHandler) GetParticipants(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.participation.roster")
	defer span.End()

	sessionID := c.Param("id")
	span.SetAttributes(attribute.String("session_id", sessionID))

	roster, err := h.admissionService.GetRoster(ctx, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromRoster(roster))
}
