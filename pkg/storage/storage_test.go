package storage

import (
	"context"
	"testing"
	"time"

	"github.com/korjavin/eventbot/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(h, m int) time.Time {
	return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC)
}

func insert(t *testing.T, s *Store, ev models.Event) models.Event {
	t.Helper()
	out, err := s.InsertEvent(context.Background(), ev)
	require.NoError(t, err)
	return out
}

func TestKeyValueRoundTrip(t *testing.T) {
	s := newTestStore(t)

	a := models.Announcement{EventID: 3, ChatID: -100, MessageID: 42}
	require.NoError(t, s.Set("announce:3", a))

	var got models.Announcement
	require.NoError(t, s.Get("announce:3", &got))
	assert.Equal(t, a, got)

	keys, err := s.List("announce:")
	require.NoError(t, err)
	assert.Equal(t, []string{"announce:3"}, keys)

	require.NoError(t, s.Delete("announce:3"))
	err = s.Get("announce:3", &got)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUsersGroupsMembershipsAreCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateUser(ctx, models.User{ID: "u1", Name: "first"}))
	require.NoError(t, s.CreateUser(ctx, models.User{ID: "u1", Name: "second"}))
	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "first", u.Name)

	u.Zone = "Europe/Berlin"
	require.NoError(t, s.SaveUser(ctx, u))
	u, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", u.Zone)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateGroup(ctx, models.Group{ID: "g1", Name: "club"}))
	require.NoError(t, s.CreateGroup(ctx, models.Group{ID: "g1", Name: "renamed"}))
	require.NoError(t, s.CreateMembership(ctx, models.Membership{UserID: "u1", GroupID: "g1"}))
	require.NoError(t, s.CreateMembership(ctx, models.Membership{UserID: "u1", GroupID: "g1"}))

	keys, err := s.List(memberPrefix)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestInsertEventCreatesOwnerSignupAndMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := insert(t, s, models.Event{OwnerID: "u1", Name: "a", Start: at(9, 0), End: at(10, 0)})
	second := insert(t, s, models.Event{OwnerID: "u1", Name: "b", Start: at(11, 0), End: at(12, 0)})
	assert.Equal(t, int64(1), first.ID)
	assert.Greater(t, second.ID, first.ID)

	signup, err := s.GetSignup(ctx, "u1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignupStatusActive, signup.Status)
	assert.False(t, signup.Notified)

	got, err := s.GetEvent(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.True(t, got.Start.Equal(at(9, 0)))
}

func TestQueryByOwnerAndGroup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := insert(t, s, models.Event{OwnerID: "u1", Name: "private", Start: at(9, 0), End: at(10, 0)})
	g := insert(t, s, models.Event{OwnerID: "u1", GroupID: "g1", Name: "group", Start: at(9, 0), End: at(10, 0)})
	insert(t, s, models.Event{OwnerID: "u2", GroupID: "g1", Name: "other", Start: at(9, 0), End: at(10, 0)})
	insert(t, s, models.Event{OwnerID: "u10", Name: "prefix clash", Start: at(9, 0), End: at(10, 0)})

	owned, err := s.QueryEventsByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, p.ID, owned[0].ID)
	assert.Equal(t, g.ID, owned[1].ID)

	group, err := s.QueryEventsByGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, group, 2)

	none, err := s.QueryEventsByGroup(ctx, "g2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateEventMovesIndexes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev := insert(t, s, models.Event{OwnerID: "u1", Name: "a", Start: at(9, 0), End: at(10, 0)})
	ev.Start, ev.End = at(14, 0), at(15, 0)
	ev.Name = "moved"
	require.NoError(t, s.UpdateEvent(ctx, ev))

	expired, err := s.QueryExpiredEvents(ctx, at(12, 0))
	require.NoError(t, err)
	assert.Empty(t, expired, "old end index must be gone")

	expired, err = s.QueryExpiredEvents(ctx, at(15, 0))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "moved", expired[0].Name)

	err = s.UpdateEvent(ctx, models.Event{ID: 999, OwnerID: "u1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEventCascadesSignups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev := insert(t, s, models.Event{OwnerID: "u1", GroupID: "g1", Start: at(9, 0), End: at(10, 0)})
	ok, err := s.InsertSignup(ctx, models.Signup{UserID: "u2", EventID: ev.ID, Status: models.SignupStatusActive})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.DeleteEvent(ctx, ev.ID))

	_, err = s.GetEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetSignup(ctx, "u2", ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List("idx:")
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, s.DeleteEvent(ctx, ev.ID), ErrNotFound)
}

func TestSignupInsertDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev := insert(t, s, models.Event{OwnerID: "u1", Start: at(9, 0), End: at(10, 0)})
	signup := models.Signup{UserID: "u2", EventID: ev.ID, Status: models.SignupStatusActive}

	ok, err := s.InsertSignup(ctx, signup)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertSignup(ctx, signup)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate signup is not written")

	_, err = s.InsertSignup(ctx, models.Signup{UserID: "u2", EventID: 404})
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := s.DeleteSignup(ctx, "u2", ev.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.DeleteSignup(ctx, "u2", ev.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDueSignupsAndNotifiedFlag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	started := insert(t, s, models.Event{OwnerID: "u1", Start: at(9, 0), End: at(10, 0)})
	insert(t, s, models.Event{OwnerID: "u1", Start: at(11, 0), End: at(12, 0)})
	_, err := s.InsertSignup(ctx, models.Signup{UserID: "u2", EventID: started.ID, Status: models.SignupStatusActive})
	require.NoError(t, err)

	due, err := s.QuerySignupsDueForNotification(ctx, at(9, 0))
	require.NoError(t, err)
	require.Len(t, due, 2, "start == now is due")
	assert.Equal(t, started.ID, due[0].Event.ID)

	require.NoError(t, s.SetSignupNotified(ctx, "u1", started.ID, true))
	require.NoError(t, s.SetSignupNotified(ctx, "u1", started.ID, true), "idempotent")

	due, err = s.QuerySignupsDueForNotification(ctx, at(9, 30))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "u2", due[0].Signup.UserID)

	due, err = s.QuerySignupsDueForNotification(ctx, at(8, 59))
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.SetSignupNotified(ctx, "u1", started.ID, false))
	due, err = s.QuerySignupsDueForNotification(ctx, at(9, 30))
	require.NoError(t, err)
	assert.Len(t, due, 2)

	assert.ErrorIs(t, s.SetSignupNotified(ctx, "nobody", started.ID, true), ErrNotFound)
}

func TestQueryExpiredEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := insert(t, s, models.Event{OwnerID: "u1", Start: time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC), End: time.Date(1969, 12, 31, 1, 0, 0, 0, time.UTC)})
	early := insert(t, s, models.Event{OwnerID: "u1", Start: at(9, 0), End: at(10, 0)})
	insert(t, s, models.Event{OwnerID: "u1", Start: at(9, 0), End: at(10, 0).Add(time.Second)})

	expired, err := s.QueryExpiredEvents(ctx, at(10, 0))
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, old.ID, expired[0].ID, "pre-epoch timestamps sort first")
	assert.Equal(t, early.ID, expired[1].ID)
}

func TestContextCancellation(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetEvent(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.InsertEvent(ctx, models.Event{OwnerID: "u1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimestampEncodingOrder(t *testing.T) {
	times := []time.Time{
		time.Unix(-100, 0),
		time.Unix(0, 0),
		time.Unix(1, 0),
		time.Unix(1<<40, 0),
	}
	for i := 1; i < len(times); i++ {
		assert.Less(t, encodeTS(times[i-1]), encodeTS(times[i]))
	}
	for _, tm := range times {
		got, err := decodeTS(encodeTS(tm))
		require.NoError(t, err)
		assert.Equal(t, tm.Unix(), got)
	}
}
