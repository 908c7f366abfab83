package domain

import (
	"sort"
	"strings"
	"time"
)

// ParticipantStatus is the roster a participant record belongs to
type ParticipantStatus string

const (
	ParticipantStatusActive  ParticipantStatus = "active"
	ParticipantStatusWaiting ParticipantStatus = "waiting"
)

// IsValid checks if the status is a valid ParticipantStatus
func (s ParticipantStatus) IsValid() bool {
	switch s {
	case ParticipantStatusActive, ParticipantStatusWaiting:
		return true
	}
	return false
}

// String returns the string representation of ParticipantStatus
func (s ParticipantStatus) String() string {
	return string(s)
}

// Participant is one participation record of a user in a session.
// Records are never removed; leaving sets CancelledAt.
type Participant struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	UserID      string            `json:"user_id"`
	Status      ParticipantStatus `json:"status"`
	Position    int               `json:"position"`
	JoinedAt    time.Time         `json:"joined_at"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
}

// IsCancelled reports whether the record was cancelled
func (p *Participant) IsCancelled() bool {
	return p.CancelledAt != nil
}

// AdmissionStatus is the outcome of a successful admission
type AdmissionStatus string

const (
	AdmissionSeated AdmissionStatus = "seated"
	AdmissionQueued AdmissionStatus = "queued"
)

// AdmissionResult is returned by join and joinWaitingList
type AdmissionResult struct {
	SessionID    string          `json:"session_id"`
	UserID       string          `json:"user_id"`
	Status       AdmissionStatus `json:"status"`
	Position     int             `json:"position"`
	ActiveCount  int             `json:"active_count"`
	WaitingCount int             `json:"waiting_count"`
	JoinedAt     time.Time       `json:"joined_at"`
}

// LeaveResult is returned by leave
type LeaveResult struct {
	SessionID    string            `json:"session_id"`
	UserID       string            `json:"user_id"`
	Status       ParticipantStatus `json:"previous_status"`
	Position     int               `json:"position"`
	ActiveCount  int               `json:"active_count"`
	WaitingCount int               `json:"waiting_count"`
	CancelledAt  time.Time         `json:"cancelled_at"`
}

// Roster is the live participation state of one session: its capacity,
// the seated players and the waiting list, both ordered by position.
// Admission decisions are made on a Roster loaded inside the same
// transaction that persists them.
type Roster struct {
	SessionID    string
	MaxPlayers   int
	LastPosition int
	Active       []*Participant
	Waiting      []*Participant
}

// NewRoster builds a roster from non-cancelled records
func NewRoster(sessionID string, maxPlayers, lastPosition int, records []*Participant) *Roster {
	r := &Roster{
		SessionID:    sessionID,
		MaxPlayers:   maxPlayers,
		LastPosition: lastPosition,
	}
	for _, p := range records {
		if p.IsCancelled() {
			continue
		}
		switch p.Status {
		case ParticipantStatusActive:
			r.Active = append(r.Active, p)
		case ParticipantStatusWaiting:
			r.Waiting = append(r.Waiting, p)
		}
		if p.Position > r.LastPosition {
			r.LastPosition = p.Position
		}
	}
	byPosition := func(list []*Participant) func(i, j int) bool {
		return func(i, j int) bool { return list[i].Position < list[j].Position }
	}
	sort.Slice(r.Active, byPosition(r.Active))
	sort.Slice(r.Waiting, byPosition(r.Waiting))
	return r
}

// ActiveCount is the number of seated players
func (r *Roster) ActiveCount() int {
	return len(r.Active)
}

// WaitingCount is the length of the waiting list
func (r *Roster) WaitingCount() int {
	return len(r.Waiting)
}

// HasFreeSeat reports whether another player can be seated
func (r *Roster) HasFreeSeat() bool {
	return len(r.Active) < r.MaxPlayers
}

// Find returns the user's live record, if any
func (r *Roster) Find(userID string) *Participant {
	for _, p := range r.Active {
		if p.UserID == userID {
			return p
		}
	}
	for _, p := range r.Waiting {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// checkNotMember fails when the user already holds a live record
func (r *Roster) checkNotMember(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	if p := r.Find(userID); p != nil {
		if p.Status == ParticipantStatusWaiting {
			return ErrAlreadyWaiting
		}
		return ErrAlreadyJoined
	}
	return nil
}

// Seat adds userID to the active roster. The roster is left untouched on
// error.
func (r *Roster) Seat(userID string, now time.Time) (*Participant, error) {
	if err := r.checkNotMember(userID); err != nil {
		return nil, err
	}
	if !r.HasFreeSeat() {
		return nil, ErrSessionFull
	}
	p := &Participant{
		SessionID: r.SessionID,
		UserID:    userID,
		Status:    ParticipantStatusActive,
		Position:  r.LastPosition + 1,
		JoinedAt:  now,
	}
	r.LastPosition = p.Position
	r.Active = append(r.Active, p)
	return p, nil
}

// Enqueue appends userID to the waiting list. Waiting positions are always
// greater than MaxPlayers and strictly increasing, which keeps the list
// first-in first-out.
func (r *Roster) Enqueue(userID string, now time.Time) (*Participant, error) {
	if err := r.checkNotMember(userID); err != nil {
		return nil, err
	}
	pos := r.LastPosition + 1
	if pos <= r.MaxPlayers {
		pos = r.MaxPlayers + 1
	}
	p := &Participant{
		SessionID: r.SessionID,
		UserID:    userID,
		Status:    ParticipantStatusWaiting,
		Position:  pos,
		JoinedAt:  now,
	}
	r.LastPosition = pos
	r.Waiting = append(r.Waiting, p)
	return p, nil
}

// Cancel removes userID's live record from the roster and stamps it
// cancelled. Nobody is promoted from the waiting list.
func (r *Roster) Cancel(userID string, now time.Time) (*Participant, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	for i, p := range r.Active {
		if p.UserID == userID {
			p.CancelledAt = &now
			r.Active = append(r.Active[:i:i], r.Active[i+1:]...)
			return p, nil
		}
	}
	for i, p := range r.Waiting {
		if p.UserID == userID {
			p.CancelledAt = &now
			r.Waiting = append(r.Waiting[:i:i], r.Waiting[i+1:]...)
			return p, nil
		}
	}
	return nil, ErrNotAParticipant
}

// AdmissionResultFor builds the result for a freshly inserted record
func (r *Roster) AdmissionResultFor(p *Participant) *AdmissionResult {
	status := AdmissionSeated
	if p.Status == ParticipantStatusWaiting {
		status = AdmissionQueued
	}
	return &AdmissionResult{
		SessionID:    r.SessionID,
		UserID:       p.UserID,
		Status:       status,
		Position:     p.Position,
		ActiveCount:  r.ActiveCount(),
		WaitingCount: r.WaitingCount(),
		JoinedAt:     p.JoinedAt,
	}
}

// LeaveResultFor builds the result for a freshly cancelled record
func (r *Roster) LeaveResultFor(p *Participant) *LeaveResult {
	res := &LeaveResult{
		SessionID:    r.SessionID,
		UserID:       p.UserID,
		Status:       p.Status,
		Position:     p.Position,
		ActiveCount:  r.ActiveCount(),
		WaitingCount: r.WaitingCount(),
	}
	if p.CancelledAt != nil {
		res.CancelledAt = *p.CancelledAt
	}
	return res
}

// UserParticipation is a live record of a user together with its session
type UserParticipation struct {
	Session  *Session          `json:"session"`
	Status   ParticipantStatus `json:"status"`
	Position int               `json:"position"`
	JoinedAt time.Time         `json:"joined_at"`
}
