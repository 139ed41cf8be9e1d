package proposal

import (
	"testing"
	"time"

	"github.com/korjavin/eventbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(ttl time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	m := New(ttl)
	m.SetClock(clock.now)
	return m, clock
}

func TestPutTake(t *testing.T) {
	m, _ := newManager(time.Minute)
	p := m.Put(models.EventDraft{OwnerID: "u1", Name: "lunch"})
	require.NotEmpty(t, p.ID)

	got, ok := m.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, "lunch", got.Draft.Name)

	got, ok = m.Take(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.ID, got.ID)

	_, ok = m.Take(p.ID)
	assert.False(t, ok, "proposals are single use")
}

func TestExpiryIsCancellation(t *testing.T) {
	m, clock := newManager(time.Minute)
	p := m.Put(models.EventDraft{OwnerID: "u1"})

	clock.advance(time.Minute)
	_, ok := m.Get(p.ID)
	assert.True(t, ok, "still live at exactly the TTL")

	clock.advance(time.Second)
	_, ok = m.Get(p.ID)
	assert.False(t, ok)
	_, ok = m.Take(p.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len(), "expired take drops the entry")
}

func TestCancelAndSweep(t *testing.T) {
	m, clock := newManager(time.Minute)
	a := m.Put(models.EventDraft{OwnerID: "u1"})
	m.Put(models.EventDraft{OwnerID: "u2"})

	assert.True(t, m.Cancel(a.ID))
	assert.False(t, m.Cancel(a.ID))

	clock.advance(30 * time.Second)
	m.Put(models.EventDraft{OwnerID: "u3"})
	clock.advance(45 * time.Second)

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}
