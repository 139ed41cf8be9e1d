package signup

import (
	"context"
	"testing"
	"time"

	"github.com/korjavin/eventbot/pkg/models"
	"github.com/korjavin/eventbot/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Registry, *storage.Store) {
	t.Helper()
	store, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, time.Second), store
}

func insertEvent(t *testing.T, store *storage.Store, owner, group string, start time.Time) int64 {
	t.Helper()
	ev, err := store.InsertEvent(context.Background(), models.Event{
		OwnerID: owner,
		GroupID: group,
		Name:    "event",
		Start:   start,
		End:     start.Add(time.Hour),
	})
	require.NoError(t, err)
	return ev.ID
}

func TestSignUpIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, store := setup(t)
	id := insertEvent(t, store, "owner", "G", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	outcome, err := reg.SignUp(ctx, models.User{ID: "U", Name: "u"}, id, "G")
	require.NoError(t, err)
	assert.Equal(t, Signed, outcome)

	outcome, err = reg.SignUp(ctx, models.User{ID: "U", Name: "u"}, id, "G")
	require.NoError(t, err)
	assert.Equal(t, AlreadySigned, outcome)

	keys, err := store.List("signup:")
	require.NoError(t, err)
	assert.Len(t, keys, 2, "owner plus one row for U")

	user, err := store.GetUser(ctx, "U")
	require.NoError(t, err)
	assert.Equal(t, "u", user.Name)
	members, err := store.List("member:G:")
	require.NoError(t, err)
	assert.Equal(t, []string{"member:G:U"}, members)
}

func TestSignUpVisibility(t *testing.T) {
	ctx := context.Background()
	reg, store := setup(t)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	groupEvent := insertEvent(t, store, "owner", "G", start)
	privateEvent := insertEvent(t, store, "owner", "", start)

	_, err := reg.SignUp(ctx, models.User{ID: "U"}, 999, "G")
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = reg.SignUp(ctx, models.User{ID: "U"}, groupEvent, "H")
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = reg.SignUp(ctx, models.User{ID: "U"}, groupEvent, "")
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = reg.SignUp(ctx, models.User{ID: "U"}, privateEvent, "")
	assert.ErrorIs(t, err, ErrEventNotFound)

	outcome, err := reg.SignUp(ctx, models.User{ID: "owner"}, privateEvent, "")
	require.NoError(t, err)
	assert.Equal(t, AlreadySigned, outcome)
}

func TestCancelSignup(t *testing.T) {
	ctx := context.Background()
	reg, store := setup(t)
	id := insertEvent(t, store, "owner", "G", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	outcome, err := reg.CancelSignup(ctx, "U", id)
	require.NoError(t, err)
	assert.Equal(t, NotSignedUp, outcome)

	_, err = reg.SignUp(ctx, models.User{ID: "U"}, id, "G")
	require.NoError(t, err)

	outcome, err = reg.CancelSignup(ctx, "U", id)
	require.NoError(t, err)
	assert.Equal(t, Removed, outcome)

	_, err = store.GetSignup(ctx, "U", id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMarkAndResetNotified(t *testing.T) {
	ctx := context.Background()
	reg, store := setup(t)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	id := insertEvent(t, store, "owner", "", start)

	due, err := reg.Due(ctx, start)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "owner", due[0].UserID)

	require.NoError(t, reg.MarkNotified(ctx, id, "owner"))
	require.NoError(t, reg.MarkNotified(ctx, id, "owner"))
	require.NoError(t, reg.MarkNotified(ctx, id, "ghost"))

	due, err = reg.Due(ctx, start)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, reg.ResetNotified(ctx, "owner", id))
	due, err = reg.Due(ctx, start)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	assert.ErrorIs(t, reg.ResetNotified(ctx, "ghost", id), ErrNotSignedUp)
}
