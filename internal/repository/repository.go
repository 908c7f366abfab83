package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rcn123/rpg-lobby/internal/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SessionFilter narrows a session listing. Zero values mean "any".
type SessionFilter struct {
	GameSystemID string
	IsOnline     *bool
	// City is matched as a case-insensitive substring of the venue city
	City     string
	State    domain.SessionState
	GMUserID string
	Limit    int
	Offset   int
}

// Normalize clamps paging values
func (f *SessionFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.City = strings.TrimSpace(f.City)
}

// CacheKey is a stable representation of the filter
func (f *SessionFilter) CacheKey() string {
	online := "any"
	if f.IsOnline != nil {
		online = strconv.FormatBool(*f.IsOnline)
	}
	return strings.Join([]string{
		f.GameSystemID, online, domain.FoldCity(f.City), string(f.State), f.GMUserID,
		strconv.Itoa(f.Limit), strconv.Itoa(f.Offset),
	}, "|")
}

// SessionRepository persists sessions. Every mutation writes its outbox
// message in the same transaction.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session, event *domain.OutboxMessage) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	List(ctx context.Context, filter *SessionFilter) ([]*domain.Session, int64, error)
	// Update rejects a capacity below the current active roster with
	// ErrCapacityBelowRoster.
	Update(ctx context.Context, session *domain.Session, event *domain.OutboxMessage) error
	SoftDelete(ctx context.Context, id string, at time.Time, event *domain.OutboxMessage) error
	ListByParticipant(ctx context.Context, userID string) ([]*domain.UserParticipation, error)
}

// AdmissionRepository applies the admission rule atomically per session
type AdmissionRepository interface {
	Join(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error)
	JoinWaitingList(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error)
	Leave(ctx context.Context, sessionID, userID string) (*domain.LeaveResult, error)
	GetRoster(ctx context.Context, sessionID string) (*domain.Roster, error)
}

// OutboxRepository is what the relay needs from the outbox table
type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	MarkAsPublished(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, errMsg string) error
	DeletePublished(ctx context.Context, olderThanDays int) (int64, error)
}

// SessionCache drops cached views of a session after its roster changed
type SessionCache interface {
	InvalidateSession(ctx context.Context, id string) error
}

type admissionOp int

const (
	opJoin admissionOp = iota
	opJoinWaitingList
	opLeave
)

func (op admissionOp) String() string {
	switch op {
	case opJoin:
		return "join"
	case opJoinWaitingList:
		return "join_waiting_list"
	default:
		return "leave"
	}
}

// applyAdmission runs the decision for op on a roster loaded in the
// caller's transaction
func applyAdmission(r *domain.Roster, op admissionOp, userID string, now time.Time) (*domain.Participant, domain.ParticipationEventType, error) {
	switch op {
	case opJoin:
		p, err := r.Seat(userID, now)
		return p, domain.ParticipationEventJoined, err
	case opJoinWaitingList:
		p, err := r.Enqueue(userID, now)
		return p, domain.ParticipationEventQueued, err
	default:
		p, err := r.Cancel(userID, now)
		return p, domain.ParticipationEventLeft, err
	}
}

// sessionRecord holds the columns that need decoding before they become a
// domain.Session
type sessionRecord struct {
	session      domain.Session
	state        string
	sessionType  string
	charCreation string
	date         *string
	startTime    *string
	endTime      *string
	decisionDate *string
	suggestions  []byte
	location     []byte
}

func (rec *sessionRecord) toDomain() (*domain.Session, error) {
	s := rec.session
	s.State = domain.SessionState(rec.state)
	s.Type = domain.SessionType(rec.sessionType)
	s.CharacterCreation = domain.CharacterCreation(rec.charCreation)
	s.Date = deref(rec.date)
	s.StartTime = deref(rec.startTime)
	s.EndTime = deref(rec.endTime)
	s.DecisionDate = deref(rec.decisionDate)

	if len(rec.suggestions) > 0 {
		if err := json.Unmarshal(rec.suggestions, &s.TimeSuggestions); err != nil {
			return nil, fmt.Errorf("failed to decode time suggestions: %w", err)
		}
	}
	loc, err := domain.DecodeLocation(s.IsOnline, rec.location)
	if err != nil {
		return nil, err
	}
	s.Location = loc
	return &s, nil
}

// sessionParams are the encoded values written for a session
type sessionParams struct {
	suggestions []byte
	location    []byte
	cityKey     string
}

func encodeSession(s *domain.Session) (*sessionParams, error) {
	suggestions := s.TimeSuggestions
	if suggestions == nil {
		suggestions = []domain.TimeSuggestion{}
	}
	sug, err := json.Marshal(suggestions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode time suggestions: %w", err)
	}
	loc, err := domain.EncodeLocation(s.Location)
	if err != nil {
		return nil, err
	}
	return &sessionParams{suggestions: sug, location: loc, cityKey: s.CityKey()}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// escapeLike escapes LIKE wildcards; queries use ESCAPE '\'
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// listQuery builds the WHERE clause shared by both stores. placeholder
// renders the n-th bind parameter.
func listQuery(f *SessionFilter, placeholder func(n int) string) (string, []interface{}) {
	conds := []string{"s.deleted_at IS NULL"}
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}

	if f.GameSystemID != "" {
		add("s.game_system_id = %s", f.GameSystemID)
	}
	if f.IsOnline != nil {
		add("s.is_online = %s", *f.IsOnline)
	}
	if f.City != "" {
		add(`s.city_key LIKE %s ESCAPE '\'`, "%"+escapeLike(domain.FoldCity(f.City))+"%")
	}
	if f.State != "" {
		add("s.state = %s", string(f.State))
	}
	if f.GMUserID != "" {
		add("s.gm_user_id = %s", f.GMUserID)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const sessionOrder = " ORDER BY s.session_date ASC NULLS LAST, s.start_time ASC NULLS LAST, s.created_at ASC, s.id ASC"

const sessionColumns = `
	s.id, s.title, s.description, s.image_url, s.game_system_id, s.state,
	s.session_type, s.planned_sessions, s.session_date, s.start_time, s.end_time,
	s.duration_minutes, s.timezone, s.time_suggestions, s.decision_date,
	s.max_players, s.gm_user_id, s.is_online, s.location, s.character_creation,
	s.last_position, s.created_at, s.updated_at, s.deleted_at,
	(SELECT COUNT(*) FROM session_participants p
		WHERE p.session_id = s.id AND p.cancelled_at IS NULL AND p.status = 'active') AS active_count,
	(SELECT COUNT(*) FROM session_participants p
		WHERE p.session_id = s.id AND p.cancelled_at IS NULL AND p.status = 'waiting') AS waiting_count`
