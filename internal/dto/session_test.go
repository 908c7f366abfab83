package dto

import (
	"encoding/json"
	"testing"

	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRequest_ToDomain(t *testing.T) {
	tests := []struct {
		name     string
		isOnline bool
		location string
		check    func(t *testing.T, s *domain.Session)
		wantErr  error
	}{
		{
			name:     "physical",
			location: `{"name":"Dragon's Lair","city":"Lund"}`,
			check: func(t *testing.T, s *domain.Session) {
				loc, ok := s.Location.(domain.PhysicalLocation)
				require.True(t, ok)
				assert.Equal(t, "Lund", loc.City)
			},
		},
		{
			name:     "online",
			isOnline: true,
			location: `{"server_name":"Foundry","join_link":"https://example.com/j/1"}`,
			check: func(t *testing.T, s *domain.Session) {
				loc, ok := s.Location.(domain.OnlineLocation)
				require.True(t, ok)
				assert.Equal(t, "Foundry", loc.ServerName)
			},
		},
		{
			name:     "malformed",
			location: `{"city":`,
			wantErr:  domain.ErrInvalidLocation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &SessionRequest{
				Title:        " One shot ",
				Description:  "Intro game",
				GameSystemID: "fate-core",
				State:        "Published",
				Date:         "2026-12-01",
				StartTime:    "19:00",
				MaxPlayers:   4,
				IsOnline:     tt.isOnline,
				Location:     json.RawMessage(tt.location),
			}
			s, err := req.ToDomain()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "One shot", s.Title)
			assert.Equal(t, domain.DefaultDuration, s.DurationMinutes)
			assert.Equal(t, "23:00", s.EndTime)
			tt.check(t, s)
		})
	}
}

func TestSessionRequest_SuggestionIDs(t *testing.T) {
	req := &SessionRequest{
		State:           "Suggested",
		TimeSuggestions: []TimeSuggestionRequest{{Date: "2026-12-01", Time: "18:00"}, {ID: "keep", Date: "2026-12-02", Time: "18:00"}},
		Location:        json.RawMessage(`{"city":"Lund"}`),
	}
	s, err := req.ToDomain()
	require.NoError(t, err)
	require.Len(t, s.TimeSuggestions, 2)
	assert.NotEmpty(t, s.TimeSuggestions[0].ID)
	assert.Equal(t, "keep", s.TimeSuggestions[1].ID)
}

func TestListSessionsQuery(t *testing.T) {
	q := &ListSessionsQuery{PageSize: 500}
	q.Normalize()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 100, q.PageSize)

	v, err := q.OnlineFilter()
	require.NoError(t, err)
	assert.Nil(t, v)

	q.IsOnline = "true"
	v, err = q.OnlineFilter()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, *v)

	q.IsOnline = "maybe"
	_, err = q.OnlineFilter()
	assert.Error(t, err)
}

func TestFromSession_JSON(t *testing.T) {
	s := &domain.Session{
		ID:           "s1",
		GameSystemID: "dnd-5e",
		MaxPlayers:   2,
		ActiveCount:  2,
		LastPosition: 9,
		Location:     domain.PhysicalLocation{City: "Visby"},
	}
	raw, err := json.Marshal(FromSession(s))
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "s1", out["id"])
	assert.Equal(t, "D&D 5e", out["game_system_name"])
	assert.Equal(t, true, out["is_full"])
	assert.Equal(t, map[string]interface{}{"city": "Visby"}, out["location"])
	assert.NotContains(t, out, "last_position")
}

func TestFromRoster(t *testing.T) {
	r := domain.NewRoster("s1", 1, 0, []*domain.Participant{
		{UserID: "a", Status: domain.ParticipantStatusActive, Position: 1},
		{UserID: "b", Status: domain.ParticipantStatusWaiting, Position: 2},
	})
	resp := FromRoster(r)
	assert.Equal(t, 1, resp.ActiveCount)
	assert.Equal(t, 1, resp.WaitingCount)
	assert.Equal(t, "b", resp.WaitingList[0].UserID)
}
