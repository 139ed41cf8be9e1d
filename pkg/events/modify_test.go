package events

import (
	"context"
	"testing"
	"time"

	"github.com/korjavin/eventbot/pkg/models"
	"github.com/korjavin/eventbot/pkg/proposal"
	"github.com/korjavin/eventbot/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestModifyEventStartTimeOnly(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, OverlapNone)

	id, err := svc.CreatePrivateEvent(ctx, privateReq("U", "2024-03-05 09:00:00", "2024-03-05 10:00:00"))
	require.NoError(t, err)

	outcome, err := svc.ModifyEvent(ctx, "U", id, Changes{StartTime: strPtr("09:15:00")})
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome)

	ev, err := store.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.True(t, ev.Start.Equal(time.Date(2024, 3, 5, 9, 15, 0, 0, time.UTC)))
	assert.True(t, ev.End.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "meeting", ev.Name)
}

func TestModifyEventFields(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, OverlapNone)

	id, err := svc.CreatePrivateEvent(ctx, privateReq("U", "2024-03-05 09:00:00", "2024-03-05 10:00:00"))
	require.NoError(t, err)

	_, err = svc.ModifyEvent(ctx, "U", id, Changes{
		Name:     strPtr("standup"),
		Location: strPtr("hall"),
		EndDate:  strPtr("2024-03-06"),
	})
	require.NoError(t, err)

	ev, err := store.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "standup", ev.Name)
	assert.Equal(t, "hall", ev.Location)
	assert.True(t, ev.End.Equal(time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)))

	events, err := store.QueryExpiredEvents(ctx, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, events, "end index follows the new end")
}

func TestModifyEventNoChange(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, OverlapNone)

	id, err := svc.CreatePrivateEvent(ctx, privateReq("U", "2024-03-05 09:00:00", "2024-03-05 10:00:00"))
	require.NoError(t, err)

	outcome, err := svc.ModifyEvent(ctx, "U", id, Changes{})
	require.NoError(t, err)
	assert.Equal(t, NoChange, outcome)

	_, err = svc.ModifyEvent(ctx, "V", id, Changes{})
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden, "ownership is checked before the empty check")
}

func TestModifyEventRejects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, OverlapNone)

	id, err := svc.CreatePrivateEvent(ctx, privateReq("U", "2024-03-05 09:00:00", "2024-03-05 10:00:00"))
	require.NoError(t, err)
	_, err = svc.CreatePrivateEvent(ctx, privateReq("U", "2024-03-05 11:00:00", "2024-03-05 12:00:00"))
	require.NoError(t, err)

	_, err = svc.ModifyEvent(ctx, "V", id, Changes{Name: strPtr("mine")})
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)

	_, err = svc.ModifyEvent(ctx, "U", 404, Changes{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)

	_, err = svc.ModifyEvent(ctx, "U", id, Changes{EndTime: strPtr("08:00:00")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ModifyEvent(ctx, "U", id, Changes{StartTime: strPtr("9am")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ModifyEvent(ctx, "U", id, Changes{EndTime: strPtr("11:30:00")})
	assert.ErrorIs(t, err, ErrOverlap)

	outcome, err := svc.ModifyEvent(ctx, "U", id, Changes{EndTime: strPtr("11:00:00")})
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome, "an event does not overlap itself")
}

func TestProposalConfirm(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, OverlapNone)

	p, err := svc.ProposeEvent(ctx, privateReq("U", "2024-03-05 09:00:00", "2024-03-05 10:00:00"))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	events, err := store.QueryEventsByOwner(ctx, "U")
	require.NoError(t, err)
	assert.Empty(t, events, "nothing is written before confirmation")

	_, err = svc.ConfirmProposal(ctx, "V", p.ID)
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)

	id, err := svc.ConfirmProposal(ctx, "U", p.ID)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = svc.ConfirmProposal(ctx, "U", p.ID)
	assert.ErrorIs(t, err, ErrProposalExpired)
}

func TestProposalRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, OverlapNone)

	first, err := svc.ProposeEvent(ctx, privateReq("U", "2024-03-05 09:00:00", "2024-03-05 10:00:00"))
	require.NoError(t, err)
	second, err := svc.ProposeEvent(ctx, privateReq("U", "2024-03-05 09:30:00", "2024-03-05 10:30:00"))
	require.NoError(t, err, "pending proposals do not block each other")

	_, err = svc.ConfirmProposal(ctx, "U", first.ID)
	require.NoError(t, err)
	_, err = svc.ConfirmProposal(ctx, "U", second.ID)
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = svc.ProposeEvent(ctx, privateReq("U", "2024-03-05 09:30:00", "2024-03-05 10:30:00"))
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestProposalExpiryAndCancel(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	proposals := proposal.New(time.Minute)
	proposals.SetClock(func() time.Time { return now })
	svc := New(store, proposals, Options{})

	p, err := svc.ProposeEvent(ctx, privateReq("U", "2024-03-05 09:00:00", "2024-03-05 10:00:00"))
	require.NoError(t, err)
	kept, err := svc.ProposeEvent(ctx, privateReq("U", "2024-03-05 11:00:00", "2024-03-05 12:00:00"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.CancelProposal("V", kept.ID), ErrNotFoundOrForbidden)
	require.NoError(t, svc.CancelProposal("U", kept.ID))
	assert.ErrorIs(t, svc.CancelProposal("U", kept.ID), ErrProposalExpired)

	now = now.Add(2 * time.Minute)
	_, err = svc.ConfirmProposal(ctx, "U", p.ID)
	assert.ErrorIs(t, err, ErrProposalExpired)

	_, ok := svc.Proposal(p.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, svc.SweepProposals(), "expired entries stay until swept")
}

func TestUserZoneFallback(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	svc := New(store, proposal.New(time.Minute), Options{DefaultZone: berlin})

	assert.Equal(t, berlin, svc.UserZone(ctx, "nobody"))

	require.NoError(t, store.SaveUser(ctx, models.User{ID: "U", Zone: "Asia/Tokyo"}))
	assert.Equal(t, "Asia/Tokyo", svc.UserZone(ctx, "U").String())

	require.NoError(t, svc.SetUserZone(ctx, models.User{ID: "U"}, "UTC"))
	assert.Equal(t, "UTC", svc.UserZone(ctx, "U").String())
}
