package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func TestRoster_SeatUntilFull(t *testing.T) {
	r := NewRoster("s1", 2, 0, nil)

	p, err := r.Seat("alice", testNow)
	require.NoError(t, err)
	assert.Equal(t, ParticipantStatusActive, p.Status)
	assert.Equal(t, 1, p.Position)

	p, err = r.Seat("bob", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Position)

	_, err = r.Seat("carol", testNow)
	assert.ErrorIs(t, err, ErrSessionFull)
	assert.Equal(t, 2, r.ActiveCount())
	assert.Equal(t, 0, r.WaitingCount())
}

func TestRoster_SeatTwice(t *testing.T) {
	r := NewRoster("s1", 4, 0, nil)
	_, err := r.Seat("alice", testNow)
	require.NoError(t, err)

	_, err = r.Seat("alice", testNow)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	_, err = r.Enqueue("alice", testNow)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	assert.Equal(t, 1, r.ActiveCount())
}

func TestRoster_WaitingUserCannotJoin(t *testing.T) {
	r := NewRoster("s1", 1, 0, nil)
	_, err := r.Seat("alice", testNow)
	require.NoError(t, err)
	_, err = r.Enqueue("bob", testNow)
	require.NoError(t, err)

	_, err = r.Seat("bob", testNow)
	assert.ErrorIs(t, err, ErrAlreadyWaiting)
	_, err = r.Enqueue("bob", testNow)
	assert.ErrorIs(t, err, ErrAlreadyWaiting)
}

func TestRoster_MembershipCheckedBeforeCapacity(t *testing.T) {
	r := NewRoster("s1", 1, 0, nil)
	_, err := r.Seat("alice", testNow)
	require.NoError(t, err)

	_, err = r.Seat("alice", testNow)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestRoster_EnqueuePositionsAfterCapacity(t *testing.T) {
	r := NewRoster("s1", 3, 0, nil)
	_, err := r.Seat("alice", testNow)
	require.NoError(t, err)

	p, err := r.Enqueue("bob", testNow)
	require.NoError(t, err)
	assert.Equal(t, ParticipantStatusWaiting, p.Status)
	assert.Equal(t, 4, p.Position)

	// seats taken after a waiting entry still get a fresh position
	p, err = r.Seat("carol", testNow)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Position)
	assert.Equal(t, 2, r.ActiveCount())
}

func TestRoster_WaitingListIsFIFO(t *testing.T) {
	r := NewRoster("s1", 1, 0, nil)
	_, err := r.Seat("gm-friend", testNow)
	require.NoError(t, err)

	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for i, u := range users {
		_, err := r.Enqueue(u, testNow.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	// a leave in the middle keeps the relative order of the rest
	_, err = r.Cancel("u3", testNow)
	require.NoError(t, err)

	var order []string
	last := 0
	for _, p := range r.Waiting {
		assert.Greater(t, p.Position, last)
		last = p.Position
		order = append(order, p.UserID)
	}
	assert.Equal(t, []string{"u1", "u2", "u4", "u5"}, order)
}

func TestRoster_CancelDoesNotPromote(t *testing.T) {
	r := NewRoster("s1", 1, 0, nil)
	_, err := r.Seat("alice", testNow)
	require.NoError(t, err)
	_, err = r.Enqueue("bob", testNow)
	require.NoError(t, err)

	p, err := r.Cancel("alice", testNow)
	require.NoError(t, err)
	require.NotNil(t, p.CancelledAt)
	assert.Equal(t, ParticipantStatusActive, p.Status)

	assert.Equal(t, 0, r.ActiveCount())
	assert.Equal(t, 1, r.WaitingCount())
	assert.Equal(t, "bob", r.Waiting[0].UserID)
}

func TestRoster_CancelUnknownUser(t *testing.T) {
	r := NewRoster("s1", 2, 0, nil)
	_, err := r.Cancel("nobody", testNow)
	assert.ErrorIs(t, err, ErrNotAParticipant)

	_, err = r.Cancel("", testNow)
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestRoster_RejoinAfterLeaveGetsNewPosition(t *testing.T) {
	r := NewRoster("s1", 2, 0, nil)
	first, err := r.Seat("alice", testNow)
	require.NoError(t, err)
	_, err = r.Cancel("alice", testNow)
	require.NoError(t, err)

	again, err := r.Seat("alice", testNow)
	require.NoError(t, err)
	assert.Greater(t, again.Position, first.Position)
}

func TestNewRoster_SkipsCancelledAndSorts(t *testing.T) {
	cancelled := testNow
	records := []*Participant{
		{UserID: "c", Status: ParticipantStatusWaiting, Position: 7},
		{UserID: "a", Status: ParticipantStatusActive, Position: 2},
		{UserID: "x", Status: ParticipantStatusActive, Position: 1, CancelledAt: &cancelled},
		{UserID: "b", Status: ParticipantStatusWaiting, Position: 5},
		{UserID: "d", Status: ParticipantStatusActive, Position: 3},
	}
	r := NewRoster("s1", 3, 4, records)

	assert.Equal(t, 2, r.ActiveCount())
	assert.Equal(t, "a", r.Active[0].UserID)
	assert.Equal(t, "b", r.Waiting[0].UserID)
	assert.Equal(t, "c", r.Waiting[1].UserID)
	assert.Equal(t, 7, r.LastPosition)
	assert.Nil(t, r.Find("x"))
}

func TestRoster_Invariants(t *testing.T) {
	r := NewRoster("s1", 3, 0, nil)
	for i := 0; i < 40; i++ {
		user := fmt.Sprintf("u%d", i%9)
		switch i % 4 {
		case 0, 1:
			_, _ = r.Seat(user, testNow)
		case 2:
			_, _ = r.Enqueue(user, testNow)
		case 3:
			_, _ = r.Cancel(user, testNow)
		}

		assert.LessOrEqual(t, r.ActiveCount(), r.MaxPlayers)
		seen := map[string]bool{}
		for _, p := range append(append([]*Participant{}, r.Active...), r.Waiting...) {
			assert.False(t, seen[p.UserID], "user %s holds two live records", p.UserID)
			seen[p.UserID] = true
		}
	}
}

func TestRoster_Results(t *testing.T) {
	r := NewRoster("s1", 1, 0, nil)
	seated, err := r.Seat("alice", testNow)
	require.NoError(t, err)
	res := r.AdmissionResultFor(seated)
	assert.Equal(t, AdmissionSeated, res.Status)
	assert.Equal(t, 1, res.ActiveCount)

	queued, err := r.Enqueue("bob", testNow)
	require.NoError(t, err)
	res = r.AdmissionResultFor(queued)
	assert.Equal(t, AdmissionQueued, res.Status)
	assert.Equal(t, 2, res.Position)
	assert.Equal(t, 1, res.WaitingCount)

	left, err := r.Cancel("bob", testNow.Add(time.Minute))
	require.NoError(t, err)
	lr := r.LeaveResultFor(left)
	assert.Equal(t, ParticipantStatusWaiting, lr.Status)
	assert.Equal(t, 0, lr.WaitingCount)
	assert.Equal(t, testNow.Add(time.Minute), lr.CancelledAt)
}
