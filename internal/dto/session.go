package dto

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rcn123/rpg-lobby/internal/domain"
)

// TimeSuggestionRequest is a candidate slot of a suggested session
type TimeSuggestionRequest struct {
	ID   string `json:"id,omitempty"`
	Date string `json:"date" binding:"required"`
	Time string `json:"time" binding:"required"`
}

// SessionRequest is the body of create and update. Update replaces every
// editable field.
type SessionRequest struct {
	Title             string                  `json:"title" binding:"required"`
	Description       string                  `json:"description" binding:"required"`
	ImageURL          string                  `json:"image_url,omitempty"`
	GameSystemID      string                  `json:"game_system_id" binding:"required"`
	State             string                  `json:"state" binding:"required"`
	SessionType       string                  `json:"session_type,omitempty"`
	PlannedSessions   int                     `json:"planned_sessions,omitempty"`
	Date              string                  `json:"date,omitempty"`
	StartTime         string                  `json:"start_time,omitempty"`
	DurationMinutes   int                     `json:"duration_minutes,omitempty"`
	Timezone          string                  `json:"timezone,omitempty"`
	TimeSuggestions   []TimeSuggestionRequest `json:"time_suggestions,omitempty"`
	DecisionDate      string                  `json:"decision_date,omitempty"`
	MaxPlayers        int                     `json:"max_players" binding:"required"`
	IsOnline          bool                    `json:"is_online"`
	Location          json.RawMessage         `json:"location,omitempty"`
	CharacterCreation string                  `json:"character_creation,omitempty"`
}

// ToDomain builds an unsaved session. The location payload is decoded into
// the variant selected by IsOnline.
func (r *SessionRequest) ToDomain() (*domain.Session, error) {
	loc, err := domain.DecodeLocation(r.IsOnline, r.Location)
	if err != nil {
		return nil, domain.ErrInvalidLocation
	}

	suggestions := make([]domain.TimeSuggestion, 0, len(r.TimeSuggestions))
	for _, ts := range r.TimeSuggestions {
		id := strings.TrimSpace(ts.ID)
		if id == "" {
			id = uuid.New().String()
		}
		suggestions = append(suggestions, domain.TimeSuggestion{ID: id, Date: ts.Date, Time: ts.Time})
	}

	s := &domain.Session{
		Title:             r.Title,
		Description:       r.Description,
		ImageURL:          r.ImageURL,
		GameSystemID:      r.GameSystemID,
		State:             domain.SessionState(r.State),
		Type:              domain.SessionType(r.SessionType),
		PlannedSessions:   r.PlannedSessions,
		Date:              r.Date,
		StartTime:         r.StartTime,
		DurationMinutes:   r.DurationMinutes,
		Timezone:          r.Timezone,
		TimeSuggestions:   suggestions,
		DecisionDate:      r.DecisionDate,
		MaxPlayers:        r.MaxPlayers,
		IsOnline:          r.IsOnline,
		Location:          loc,
		CharacterCreation: domain.CharacterCreation(r.CharacterCreation),
	}
	s.Normalize()
	return s, nil
}

// ListSessionsQuery holds the query string of the session listing
type ListSessionsQuery struct {
	GameSystem string `form:"game_system"`
	IsOnline   string `form:"is_online"`
	City       string `form:"city"`
	State      string `form:"state"`
	GMID       string `form:"gm_id"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// Normalize applies paging defaults
func (q *ListSessionsQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
}

// OnlineFilter parses is_online. An empty value means no filter.
func (q *ListSessionsQuery) OnlineFilter() (*bool, error) {
	if strings.TrimSpace(q.IsOnline) == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(q.IsOnline)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SessionResponse is a session with its location variant and seat counts
type SessionResponse struct {
	*domain.Session
	Location       domain.Location `json:"location"`
	GameSystemName string          `json:"game_system_name,omitempty"`
	CurrentPlayers int             `json:"current_players"`
	IsFull         bool            `json:"is_full"`
}

// FromSession converts a domain session for the API
func FromSession(s *domain.Session) *SessionResponse {
	resp := &SessionResponse{
		Session:        s,
		Location:       s.Location,
		CurrentPlayers: s.ActiveCount,
		IsFull:         s.ActiveCount >= s.MaxPlayers,
	}
	if gs, ok := domain.LookupGameSystem(s.GameSystemID); ok {
		resp.GameSystemName = gs.Name
	}
	return resp
}

// FromSessions converts a page of sessions
func FromSessions(sessions []*domain.Session) []*SessionResponse {
	out := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, FromSession(s))
	}
	return out
}

// ParticipantResponse is one roster entry
type ParticipantResponse struct {
	UserID   string    `json:"user_id"`
	Position int       `json:"position"`
	JoinedAt time.Time `json:"joined_at"`
}

// RosterResponse lists seated players and the waiting list, both in
// position order
type RosterResponse struct {
	SessionID    string                 `json:"session_id"`
	MaxPlayers   int                    `json:"max_players"`
	ActiveCount  int                    `json:"active_count"`
	WaitingCount int                    `json:"waiting_count"`
	Players      []*ParticipantResponse `json:"players"`
	WaitingList  []*ParticipantResponse `json:"waiting_list"`
}

// FromRoster converts a roster for the API
func FromRoster(r *domain.Roster) *RosterResponse {
	return &RosterResponse{
		SessionID:    r.SessionID,
		MaxPlayers:   r.MaxPlayers,
		ActiveCount:  r.ActiveCount(),
		WaitingCount: r.WaitingCount(),
		Players:      fromParticipants(r.Active),
		WaitingList:  fromParticipants(r.Waiting),
	}
}

func fromParticipants(list []*domain.Participant) []*ParticipantResponse {
	out := make([]*ParticipantResponse, 0, len(list))
	for _, p := range list {
		out = append(out, &ParticipantResponse{UserID: p.UserID, Position: p.Position, JoinedAt: p.JoinedAt})
	}
	return out
}

// SessionDetailResponse is a session together with its roster
type SessionDetailResponse struct {
	*SessionResponse
	Roster *RosterResponse `json:"roster"`
}

// ParticipationResponse is one entry of the caller's sessions
type ParticipationResponse struct {
	Session  *SessionResponse         `json:"session"`
	Status   domain.ParticipantStatus `json:"status"`
	Position int                      `json:"position"`
	JoinedAt time.Time                `json:"joined_at"`
}

// FromParticipations converts the caller's live records
func FromParticipations(list []*domain.UserParticipation) []*ParticipationResponse {
	out := make([]*ParticipationResponse, 0, len(list))
	for _, up := range list {
		out = append(out, &ParticipationResponse{
			Session:  FromSession(up.Session),
			Status:   up.Status,
			Position: up.Position,
			JoinedAt: up.JoinedAt,
		})
	}
	return out
}

// CatalogResponse lists the reference data a session form needs
type CatalogResponse struct {
	GameSystems []domain.GameSystem `json:"game_systems"`
	Timezones   []string            `json:"timezones"`
}
