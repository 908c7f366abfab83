package domain

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	MinMaxPlayers        = 1
	MaxMaxPlayers        = 20
	MinDurationMinutes   = 30
	MaxDurationMinutes   = 480
	DefaultDuration      = 240
	MinPlannedSessions   = 2
	MaxPlannedSessions   = 52
	MaxTimeSuggestions   = 10
	MaxTitleLength       = 100
	MaxDescriptionLength = 2000
)

// SessionState represents whether a session is scheduled or still proposed
type SessionState string

const (
	SessionStatePublished SessionState = "Published"
	SessionStateSuggested SessionState = "Suggested"
)

// IsValid checks if the state is a valid SessionState
func (s SessionState) IsValid() bool {
	switch s {
	case SessionStatePublished, SessionStateSuggested:
		return true
	}
	return false
}

// String returns the string representation of SessionState
func (s SessionState) String() string {
	return string(s)
}

// SessionType represents one-off or recurring sessions
type SessionType string

const (
	SessionTypeOneTime   SessionType = "one-time"
	SessionTypeRecurring SessionType = "recurring"
)

// IsValid checks if the type is a valid SessionType
func (t SessionType) IsValid() bool {
	switch t {
	case SessionTypeOneTime, SessionTypeRecurring:
		return true
	}
	return false
}

// String returns the string representation of SessionType
func (t SessionType) String() string {
	return string(t)
}

// CharacterCreation describes how player characters are prepared
type CharacterCreation string

const (
	CharacterCreationPregenerated  CharacterCreation = "pregenerated"
	CharacterCreationInBeginning   CharacterCreation = "create-in-beginning"
	CharacterCreationBeforeSession CharacterCreation = "create-before-session"
)

// IsValid checks if the mode is a valid CharacterCreation
func (c CharacterCreation) IsValid() bool {
	switch c {
	case CharacterCreationPregenerated, CharacterCreationInBeginning, CharacterCreationBeforeSession:
		return true
	}
	return false
}

// String returns the string representation of CharacterCreation
func (c CharacterCreation) String() string {
	return string(c)
}

// TimeSuggestion is a candidate slot for a suggested session
type TimeSuggestion struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// Session represents a game session
type Session struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	ImageURL          string            `json:"image_url,omitempty"`
	GameSystemID      string            `json:"game_system_id"`
	State             SessionState      `json:"state"`
	Type              SessionType       `json:"session_type"`
	PlannedSessions   int               `json:"planned_sessions,omitempty"`
	Date              string            `json:"date,omitempty"`
	StartTime         string            `json:"start_time,omitempty"`
	EndTime           string            `json:"end_time,omitempty"`
	DurationMinutes   int               `json:"duration_minutes"`
	Timezone          string            `json:"timezone"`
	TimeSuggestions   []TimeSuggestion  `json:"time_suggestions,omitempty"`
	DecisionDate      string            `json:"decision_date,omitempty"`
	MaxPlayers        int               `json:"max_players"`
	GMUserID          string            `json:"gm_user_id"`
	IsOnline          bool              `json:"is_online"`
	Location          Location          `json:"-"`
	CharacterCreation CharacterCreation `json:"character_creation"`
	// LastPosition is the highest queue number handed out for this session
	LastPosition int        `json:"-"`
	ActiveCount  int        `json:"active_count"`
	WaitingCount int        `json:"waiting_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Validate validates all session fields
func (s *Session) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(s.Title)); n < 1 || n > MaxTitleLength {
		return ErrInvalidTitle
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(s.Description)); n < 1 || n > MaxDescriptionLength {
		return ErrInvalidDescription
	}
	if _, ok := LookupGameSystem(s.GameSystemID); !ok {
		return ErrUnknownGameSystem
	}
	if s.DurationMinutes < MinDurationMinutes || s.DurationMinutes > MaxDurationMinutes {
		return ErrInvalidDuration
	}
	if !IsSupportedTimezone(s.Timezone) {
		return ErrInvalidTimezone
	}
	if s.MaxPlayers < MinMaxPlayers || s.MaxPlayers > MaxMaxPlayers {
		return ErrInvalidMaxPlayers
	}
	if err := s.validateType(); err != nil {
		return err
	}
	if err := s.validateSchedule(); err != nil {
		return err
	}
	if !s.CharacterCreation.IsValid() {
		return ErrInvalidCharacterCreation
	}
	if err := ValidateLocation(s.IsOnline, s.Location); err != nil {
		return err
	}
	if s.ImageURL != "" {
		u, err := url.Parse(s.ImageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidImageURL
		}
	}
	return nil
}

func (s *Session) validateType() error {
	switch s.Type {
	case SessionTypeOneTime:
		s.PlannedSessions = 0
	case SessionTypeRecurring:
		if s.PlannedSessions < MinPlannedSessions || s.PlannedSessions > MaxPlannedSessions {
			return ErrInvalidPlannedSessions
		}
	default:
		return ErrInvalidSessionType
	}
	return nil
}

func (s *Session) validateSchedule() error {
	switch s.State {
	case SessionStatePublished:
		if s.Date == "" || s.StartTime == "" {
			return ErrMissingSchedule
		}
		if !isDate(s.Date) {
			return ErrInvalidDate
		}
		if !isClock(s.StartTime) {
			return ErrInvalidStartTime
		}
	case SessionStateSuggested:
		if len(s.TimeSuggestions) < 1 || len(s.TimeSuggestions) > MaxTimeSuggestions {
			return ErrInvalidTimeSuggestions
		}
		for _, ts := range s.TimeSuggestions {
			if !isDate(ts.Date) || !isClock(ts.Time) {
				return ErrInvalidTimeSuggestions
			}
		}
		if !isDate(s.DecisionDate) {
			return ErrInvalidDecisionDate
		}
		if s.Date != "" && !isDate(s.Date) {
			return ErrInvalidDate
		}
		if s.StartTime != "" && !isClock(s.StartTime) {
			return ErrInvalidStartTime
		}
	default:
		return ErrInvalidSessionState
	}
	return nil
}

// Normalize trims text fields and derives the end time
func (s *Session) Normalize() {
	s.Title = strings.TrimSpace(s.Title)
	s.Description = strings.TrimSpace(s.Description)
	s.ImageURL = strings.TrimSpace(s.ImageURL)
	if s.DurationMinutes == 0 {
		s.DurationMinutes = DefaultDuration
	}
	if s.Type == "" {
		s.Type = SessionTypeOneTime
	}
	if s.CharacterCreation == "" {
		s.CharacterCreation = CharacterCreationPregenerated
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	s.EndTime = EndTime(s.StartTime, s.DurationMinutes)
}

// CityKey returns the folded city used by the city filter
func (s *Session) CityKey() string {
	if s.IsOnline {
		return ""
	}
	return FoldCity(CityOf(s.Location))
}

// IsDeleted reports whether the session was soft deleted
func (s *Session) IsDeleted() bool {
	return s.DeletedAt != nil
}

// IsOwnedBy reports whether userID is the session's game master
func (s *Session) IsOwnedBy(userID string) bool {
	return s.GMUserID != "" && s.GMUserID == userID
}

// EndTime returns start plus duration as HH:MM, wrapping past midnight.
// It returns "" when start is not a valid clock time.
func EndTime(start string, durationMinutes int) string {
	t, err := time.Parse(TimeLayout, start)
	if err != nil {
		return ""
	}
	return t.Add(time.Duration(durationMinutes) * time.Minute).Format(TimeLayout)
}

func isDate(v string) bool {
	_, err := time.Parse(DateLayout, v)
	return err == nil
}

func isClock(v string) bool {
	_, err := time.Parse(TimeLayout, v)
	return err == nil
}
