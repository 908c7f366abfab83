package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/migrations"
	"github.com/rcn123/rpg-lobby/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "lobby.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ApplyMigrations(ctx, migrations.SQLite())
	require.NoError(t, err)
	return db.DB()
}

func testSession(maxPlayers int) *domain.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	s := &domain.Session{
		ID:                uuid.New().String(),
		Title:             "Curse of Strahd",
		Description:       "Gothic horror in Barovia",
		GameSystemID:      "dnd-5e",
		State:             domain.SessionStatePublished,
		Type:              domain.SessionTypeOneTime,
		Date:              "2026-11-20",
		StartTime:         "18:00",
		DurationMinutes:   240,
		Timezone:          "Europe/Stockholm",
		MaxPlayers:        maxPlayers,
		GMUserID:          "gm-1",
		Location:          domain.PhysicalLocation{Name: "Dragon's Lair", City: "Stockholm"},
		CharacterCreation: domain.CharacterCreationPregenerated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.Normalize()
	return s
}

func createTestSession(t *testing.T, repo SessionRepository, s *domain.Session) *domain.Session {
	t.Helper()
	msg, err := domain.SessionOutboxMessage(domain.SessionEventCreated, s, s.CreatedAt, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), s, msg))
	return s
}

type sqliteFixture struct {
	db        *sql.DB
	sessions  *SQLiteSessionRepository
	admission *SQLiteAdmissionRepository
	outbox    *SQLiteOutboxRepository
}

func newSQLiteFixture(t *testing.T) *sqliteFixture {
	db := newTestSQLite(t)
	return &sqliteFixture{
		db:        db,
		sessions:  NewSQLiteSessionRepository(db),
		admission: NewSQLiteAdmissionRepository(db, "session-events"),
		outbox:    NewSQLiteOutboxRepository(db),
	}
}

func TestSQLiteAdmission_Scenario1_SeatUntilCapacity(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(2))

	res, err := f.admission.Join(ctx, s.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionSeated, res.Status)
	assert.Equal(t, 1, res.ActiveCount)

	res, err = f.admission.Join(ctx, s.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionSeated, res.Status)
	assert.Equal(t, 2, res.ActiveCount)
	assert.Equal(t, 2, res.Position)
}

func TestSQLiteAdmission_Scenario2_FullThenWaitingList(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(2))

	for _, u := range []string{"u1", "u2"} {
		_, err := f.admission.Join(ctx, s.ID, u)
		require.NoError(t, err)
	}

	_, err := f.admission.Join(ctx, s.ID, "u3")
	assert.ErrorIs(t, err, domain.ErrSessionFull)

	res, err := f.admission.JoinWaitingList(ctx, s.ID, "u3")
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionQueued, res.Status)
	assert.Equal(t, 1, res.WaitingCount)
	assert.Greater(t, res.Position, s.MaxPlayers)
}

func TestSQLiteAdmission_Scenario3_JoinTwice(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(4))

	_, err := f.admission.Join(ctx, s.ID, "u1")
	require.NoError(t, err)

	_, err = f.admission.Join(ctx, s.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)

	roster, err := f.admission.GetRoster(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, roster.ActiveCount())
}

func TestSQLiteAdmission_Scenario4_LeaveDoesNotPromote(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(2))

	for _, u := range []string{"u1", "u2"} {
		_, err := f.admission.Join(ctx, s.ID, u)
		require.NoError(t, err)
	}
	_, err := f.admission.JoinWaitingList(ctx, s.ID, "u3")
	require.NoError(t, err)

	res, err := f.admission.Leave(ctx, s.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusActive, res.Status)
	assert.Equal(t, 1, res.ActiveCount)
	assert.Equal(t, 1, res.WaitingCount)

	var cancelledAt sql.NullInt64
	err = f.db.QueryRow(
		`SELECT cancelled_at FROM session_participants WHERE session_id = ? AND user_id = 'u1'`, s.ID,
	).Scan(&cancelledAt)
	require.NoError(t, err)
	assert.True(t, cancelledAt.Valid)

	roster, err := f.admission.GetRoster(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, roster.Waiting, 1)
	assert.Equal(t, "u3", roster.Waiting[0].UserID)
	assert.Nil(t, roster.Find("u1"))
}

func TestSQLiteAdmission_UnknownSession(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	missing := uuid.New().String()

	_, err := f.admission.Join(ctx, missing, "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.admission.JoinWaitingList(ctx, missing, "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.admission.Leave(ctx, missing, "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.admission.GetRoster(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSQLiteAdmission_LeaveWithoutRecord(t *testing.T) {
	f := newSQLiteFixture(t)
	s := createTestSession(t, f.sessions, testSession(2))

	_, err := f.admission.Leave(context.Background(), s.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrNotAParticipant)
}

func TestSQLiteAdmission_WaitingListIsFIFO(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(1))

	_, err := f.admission.Join(ctx, s.ID, "seated")
	require.NoError(t, err)

	last := 0
	for i := 0; i < 5; i++ {
		res, err := f.admission.JoinWaitingList(ctx, s.ID, fmt.Sprintf("w%d", i))
		require.NoError(t, err)
		assert.Greater(t, res.Position, last)
		last = res.Position
	}

	_, err = f.admission.Leave(ctx, s.ID, "w2")
	require.NoError(t, err)

	roster, err := f.admission.GetRoster(ctx, s.ID)
	require.NoError(t, err)
	var order []string
	for _, p := range roster.Waiting {
		order = append(order, p.UserID)
	}
	assert.Equal(t, []string{"w0", "w1", "w3", "w4"}, order)
}

func TestSQLiteAdmission_RejoinCreatesNewRecord(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(3))

	first, err := f.admission.Join(ctx, s.ID, "u1")
	require.NoError(t, err)
	_, err = f.admission.Leave(ctx, s.ID, "u1")
	require.NoError(t, err)
	again, err := f.admission.Join(ctx, s.ID, "u1")
	require.NoError(t, err)
	assert.Greater(t, again.Position, first.Position)

	var records int
	require.NoError(t, f.db.QueryRow(
		`SELECT COUNT(*) FROM session_participants WHERE session_id = ? AND user_id = 'u1'`, s.ID,
	).Scan(&records))
	assert.Equal(t, 2, records)
}

func TestSQLiteAdmission_WaitingUserCannotJoin(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(1))

	_, err := f.admission.Join(ctx, s.ID, "u1")
	require.NoError(t, err)
	_, err = f.admission.JoinWaitingList(ctx, s.ID, "u2")
	require.NoError(t, err)

	_, err = f.admission.Join(ctx, s.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrAlreadyWaiting)
	_, err = f.admission.JoinWaitingList(ctx, s.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)
}

func TestSQLiteAdmission_ConcurrentJoinsRespectCapacity(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	const capacity, users = 5, 20
	s := createTestSession(t, f.sessions, testSession(capacity))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		seated int
		full   int
	)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.admission.Join(ctx, s.ID, fmt.Sprintf("u%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				seated++
			case assert.ErrorIs(t, err, domain.ErrSessionFull):
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, seated)
	assert.Equal(t, users-capacity, full)

	roster, err := f.admission.GetRoster(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, roster.ActiveCount())
}

func TestSQLiteAdmission_InvariantsUnderMixedTraffic(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(3))

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%7)
			switch i % 3 {
			case 0:
				_, _ = f.admission.Join(ctx, s.ID, user)
			case 1:
				_, _ = f.admission.JoinWaitingList(ctx, s.ID, user)
			default:
				_, _ = f.admission.Leave(ctx, s.ID, user)
			}
		}(i)
	}
	wg.Wait()

	roster, err := f.admission.GetRoster(ctx, s.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, roster.ActiveCount(), 3)

	seen := map[string]bool{}
	for _, p := range append(append([]*domain.Participant{}, roster.Active...), roster.Waiting...) {
		assert.False(t, seen[p.UserID], "user %s is both active and waiting", p.UserID)
		seen[p.UserID] = true
	}
	for _, p := range roster.Waiting {
		assert.Greater(t, p.Position, 3)
	}
}

func TestSQLiteAdmission_WritesOutboxEvents(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(1))

	_, err := f.admission.Join(ctx, s.ID, "u1")
	require.NoError(t, err)
	_, err = f.admission.JoinWaitingList(ctx, s.ID, "u2")
	require.NoError(t, err)
	_, err = f.admission.Join(ctx, s.ID, "u3")
	require.ErrorIs(t, err, domain.ErrSessionFull)

	msgs, err := f.outbox.GetPendingMessages(ctx, 10)
	require.NoError(t, err)

	var types []string
	for _, m := range msgs {
		types = append(types, m.EventType)
	}
	// the failed join leaves no trace
	assert.Equal(t, []string{
		string(domain.SessionEventCreated),
		string(domain.ParticipationEventJoined),
		string(domain.ParticipationEventQueued),
	}, types)

	var event domain.ParticipationEvent
	require.NoError(t, msgs[2].GetPayload(&event))
	assert.Equal(t, "u2", event.UserID)
	assert.Equal(t, 1, event.WaitingCount)
	assert.Equal(t, "session-events", msgs[2].Topic)
}

func TestSQLiteSession_CreateAndGet(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := testSession(4)
	s.Location = domain.PhysicalLocation{
		City:        "Göteborg",
		Address:     "Kungsgatan 1",
		Coordinates: &domain.Coordinates{Lat: 57.7, Lng: 11.97},
	}
	createTestSession(t, f.sessions, s)

	got, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Title, got.Title)
	assert.Equal(t, "22:00", got.EndTime)
	assert.Equal(t, s.CreatedAt, got.CreatedAt)
	loc, ok := got.Location.(domain.PhysicalLocation)
	require.True(t, ok)
	assert.Equal(t, "Göteborg", loc.City)
	require.NotNil(t, loc.Coordinates)

	_, err = f.sessions.GetByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSQLiteSession_ListFiltersAndOrder(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	late := testSession(4)
	late.Date = "2026-12-01"
	createTestSession(t, f.sessions, late)

	early := testSession(4)
	early.Date = "2026-11-01"
	early.GameSystemID = "pathfinder-2e"
	early.Location = domain.PhysicalLocation{City: "Malmö"}
	createTestSession(t, f.sessions, early)

	online := testSession(4)
	online.Date = "2026-11-15"
	online.IsOnline = true
	online.Location = domain.OnlineLocation{ServerName: "Roll20"}
	createTestSession(t, f.sessions, online)

	suggested := testSession(4)
	suggested.State = domain.SessionStateSuggested
	suggested.Date, suggested.StartTime, suggested.EndTime = "", "", ""
	suggested.TimeSuggestions = []domain.TimeSuggestion{{ID: "a", Date: "2026-11-10", Time: "19:00"}}
	suggested.DecisionDate = "2026-11-05"
	createTestSession(t, f.sessions, suggested)

	all, total, err := f.sessions.List(ctx, &SessionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, all, 4)
	assert.Equal(t, []string{early.ID, online.ID, late.ID, suggested.ID},
		[]string{all[0].ID, all[1].ID, all[2].ID, all[3].ID})
	require.Len(t, all[3].TimeSuggestions, 1)

	byCity, _, err := f.sessions.List(ctx, &SessionFilter{City: "STOCK"})
	require.NoError(t, err)
	assert.Len(t, byCity, 2)

	byAccent, _, err := f.sessions.List(ctx, &SessionFilter{City: "malmö"})
	require.NoError(t, err)
	require.Len(t, byAccent, 1)
	assert.Equal(t, early.ID, byAccent[0].ID)

	onlineOnly := true
	onl, _, err := f.sessions.List(ctx, &SessionFilter{IsOnline: &onlineOnly})
	require.NoError(t, err)
	require.Len(t, onl, 1)
	_, isOnline := onl[0].Location.(domain.OnlineLocation)
	assert.True(t, isOnline)

	bySystem, _, err := f.sessions.List(ctx, &SessionFilter{GameSystemID: "pathfinder-2e"})
	require.NoError(t, err)
	assert.Len(t, bySystem, 1)

	byState, _, err := f.sessions.List(ctx, &SessionFilter{State: domain.SessionStateSuggested})
	require.NoError(t, err)
	assert.Len(t, byState, 1)

	page, total, err := f.sessions.List(ctx, &SessionFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, page, 2)
	assert.Equal(t, late.ID, page[0].ID)

	wildcard, _, err := f.sessions.List(ctx, &SessionFilter{City: "%"})
	require.NoError(t, err)
	assert.Empty(t, wildcard)
}

func TestSQLiteSession_ListIncludesCounts(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(1))

	_, err := f.admission.Join(ctx, s.ID, "u1")
	require.NoError(t, err)
	_, err = f.admission.JoinWaitingList(ctx, s.ID, "u2")
	require.NoError(t, err)

	got, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ActiveCount)
	assert.Equal(t, 1, got.WaitingCount)
	assert.Equal(t, 2, got.LastPosition)
}

func TestSQLiteSession_UpdateRejectsCapacityBelowRoster(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(3))

	for _, u := range []string{"u1", "u2"} {
		_, err := f.admission.Join(ctx, s.ID, u)
		require.NoError(t, err)
	}

	s.MaxPlayers = 1
	err := f.sessions.Update(ctx, s, nil)
	assert.ErrorIs(t, err, domain.ErrCapacityBelowRoster)

	s.MaxPlayers = 2
	s.Title = "Curse of Strahd, part two"
	s.Location = domain.PhysicalLocation{City: "Uppsala"}
	require.NoError(t, f.sessions.Update(ctx, s, nil))

	got, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxPlayers)
	assert.Equal(t, "Curse of Strahd, part two", got.Title)

	byCity, _, err := f.sessions.List(ctx, &SessionFilter{City: "uppsala"})
	require.NoError(t, err)
	assert.Len(t, byCity, 1)

	missing := testSession(2)
	assert.ErrorIs(t, f.sessions.Update(ctx, missing, nil), domain.ErrSessionNotFound)
}

func TestSQLiteSession_SoftDelete(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	s := createTestSession(t, f.sessions, testSession(2))
	_, err := f.admission.Join(ctx, s.ID, "u1")
	require.NoError(t, err)

	require.NoError(t, f.sessions.SoftDelete(ctx, s.ID, time.Now(), nil))

	_, err = f.sessions.GetByID(ctx, s.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.admission.Join(ctx, s.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, f.sessions.SoftDelete(ctx, s.ID, time.Now(), nil), domain.ErrSessionNotFound)

	var records int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM session_participants WHERE session_id = ?`, s.ID).Scan(&records))
	assert.Equal(t, 1, records)
}

func TestSQLiteSession_ListByParticipant(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	a := createTestSession(t, f.sessions, testSession(1))
	b := createTestSession(t, f.sessions, testSession(1))
	c := createTestSession(t, f.sessions, testSession(1))

	_, err := f.admission.Join(ctx, a.ID, "me")
	require.NoError(t, err)
	_, err = f.admission.Join(ctx, b.ID, "other")
	require.NoError(t, err)
	_, err = f.admission.JoinWaitingList(ctx, b.ID, "me")
	require.NoError(t, err)
	_, err = f.admission.Join(ctx, c.ID, "me")
	require.NoError(t, err)
	_, err = f.admission.Leave(ctx, c.ID, "me")
	require.NoError(t, err)

	got, err := f.sessions.ListByParticipant(ctx, "me")
	require.NoError(t, err)
	require.Len(t, got, 2)

	statuses := map[string]domain.ParticipantStatus{}
	for _, up := range got {
		statuses[up.Session.ID] = up.Status
	}
	assert.Equal(t, domain.ParticipantStatusActive, statuses[a.ID])
	assert.Equal(t, domain.ParticipantStatusWaiting, statuses[b.ID])

	none, err := f.sessions.ListByParticipant(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteOutbox_Lifecycle(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	createTestSession(t, f.sessions, testSession(2))
	createTestSession(t, f.sessions, testSession(2))

	pending, err := f.outbox.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, f.outbox.MarkAsPublished(ctx, pending[0].ID))
	require.NoError(t, f.outbox.MarkAsFailed(ctx, pending[1].ID, "broker unavailable"))

	pending, err = f.outbox.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := f.outbox.GetFailedMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)
	assert.Equal(t, "broker unavailable", failed[0].LastError)

	assert.ErrorIs(t, f.outbox.MarkAsPublished(ctx, "missing"), errOutboxMessageNotFound)

	f.outbox.now = func() time.Time { return time.Now().AddDate(0, 0, 8) }
	deleted, err := f.outbox.DeletePublished(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
