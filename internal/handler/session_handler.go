package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rcn123/rpg-lobby/internal/dto"
	"github.com/rcn123/rpg-lobby/internal/service"
	"github.com/rcn123/rpg-lobby/pkg/middleware"
	"github.com/rcn123/rpg-lobby/pkg/response"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SessionHandler handles session HTTP requests
type SessionHandler struct {
	sessionService service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// callerID returns the authenticated user or writes 401
func callerID(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
	}
	return userID, ok
}

// ListSessions handles GET /sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.session.list")
	defer span.End()

	var q dto.ListSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		response.ValidationError(c, err.Error())
		return
	}

	items, total, err := h.sessionService.List(ctx, &q)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int64("total", total))
	span.SetStatus(codes.Ok, "")
	response.SuccessWithMeta(c, items, response.NewPageMeta(q.Page, q.PageSize, total))
}

// GetSession handles GET /sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.session.get")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("session_id", id))

	result, err := h.sessionService.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// CreateSession handles POST /sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.session.create")
	defer span.End()

	userID, ok := callerID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.ValidationError(c, err.Error())
		return
	}

	result, err := h.sessionService.Create(ctx, userID, &req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("session_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// UpdateSession handles PUT /sessions/:id
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.session.update")
	defer span.End()

	userID, ok := callerID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.ValidationError(c, err.Error())
		return
	}

	id := c.Param("id")
	span.SetAttributes(attribute.String("session_id", id))

	result, err := h.sessionService.Update(ctx, id, userID, &req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// DeleteSession handles DELETE /sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.session.delete")
	defer span.End()

	userID, ok := callerID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	id := c.Param("id")
	span.SetAttributes(attribute.String("session_id", id))

	if err := h.sessionService.Delete(ctx, id, userID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"id": id, "deleted": true})
}

// ListMySessions handles GET /me/sessions
func (h *SessionHandler) ListMySessions(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.session.list_mine")
	defer span.End()

	userID, ok := callerID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	items, err := h.sessionService.ListMine(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, items)
}

// GameSystems handles GET /game-systems
func (h *SessionHandler) GameSystems(c *gin.Context) {
	response.Success(c, h.sessionService.Catalog(c.Request.Context()))
}
