package domain

import (
	"time"

	"github.com/google/uuid"
)

// ParticipationEventType represents the type of a participation event
type ParticipationEventType string

const (
	ParticipationEventJoined ParticipationEventType = "participation.joined"
	ParticipationEventQueued ParticipationEventType = "participation.queued"
	ParticipationEventLeft   ParticipationEventType = "participation.left"
)

// SessionEventType represents the type of a session lifecycle event
type SessionEventType string

const (
	SessionEventCreated SessionEventType = "session.created"
	SessionEventUpdated SessionEventType = "session.updated"
	SessionEventDeleted SessionEventType = "session.deleted"
)

const (
	AggregateTypeSession = "session"
	DefaultEventTopic    = "session-events"
)

// ParticipationEvent is published whenever a roster changes
type ParticipationEvent struct {
	EventID      string                 `json:"event_id"`
	EventType    ParticipationEventType `json:"event_type"`
	OccurredAt   time.Time              `json:"occurred_at"`
	SessionID    string                 `json:"session_id"`
	UserID       string                 `json:"user_id"`
	Status       ParticipantStatus      `json:"status"`
	Position     int                    `json:"position"`
	ActiveCount  int                    `json:"active_count"`
	WaitingCount int                    `json:"waiting_count"`
	MaxPlayers   int                    `json:"max_players"`
}

// Key returns the partition key, keeping a session's events ordered
func (e *ParticipationEvent) Key() string {
	return e.SessionID
}

// NewParticipationEvent builds an event for p after the roster changed
func NewParticipationEvent(eventType ParticipationEventType, r *Roster, p *Participant) *ParticipationEvent {
	occurred := p.JoinedAt
	if p.CancelledAt != nil {
		occurred = *p.CancelledAt
	}
	return &ParticipationEvent{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		OccurredAt:   occurred,
		SessionID:    r.SessionID,
		UserID:       p.UserID,
		Status:       p.Status,
		Position:     p.Position,
		ActiveCount:  r.ActiveCount(),
		WaitingCount: r.WaitingCount(),
		MaxPlayers:   r.MaxPlayers,
	}
}

// SessionEvent is published on session create, update and delete
type SessionEvent struct {
	EventID      string           `json:"event_id"`
	EventType    SessionEventType `json:"event_type"`
	OccurredAt   time.Time        `json:"occurred_at"`
	SessionID    string           `json:"session_id"`
	GMUserID     string           `json:"gm_user_id"`
	Title        string           `json:"title"`
	GameSystemID string           `json:"game_system_id"`
	State        SessionState     `json:"state"`
	Date         string           `json:"date,omitempty"`
	StartTime    string           `json:"start_time,omitempty"`
	MaxPlayers   int              `json:"max_players"`
	IsOnline     bool             `json:"is_online"`
}

// Key returns the partition key
func (e *SessionEvent) Key() string {
	return e.SessionID
}

// NewSessionEvent builds a lifecycle event for s
func NewSessionEvent(eventType SessionEventType, s *Session, at time.Time) *SessionEvent {
	return &SessionEvent{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		OccurredAt:   at,
		SessionID:    s.ID,
		GMUserID:     s.GMUserID,
		Title:        s.Title,
		GameSystemID: s.GameSystemID,
		State:        s.State,
		Date:         s.Date,
		StartTime:    s.StartTime,
		MaxPlayers:   s.MaxPlayers,
		IsOnline:     s.IsOnline,
	}
}
