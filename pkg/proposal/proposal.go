// Package proposal holds tentative events awaiting a user's confirmation.
// Proposals live in memory and expire after a fixed TTL; an expired proposal
// is treated as cancelled.
package proposal

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/korjavin/eventbot/pkg/models"
)

// Proposal is a pending event creation
type Proposal struct {
	ID        string
	Draft     models.EventDraft
	CreatedAt time.Time
}

// Manager manages pending proposals
type Manager struct {
	proposals map[string]Proposal
	ttl       time.Duration
	now       func() time.Time
	mu        sync.RWMutex
}

// New creates a new proposal manager
func New(ttl time.Duration) *Manager {
	return &Manager{
		proposals: make(map[string]Proposal),
		ttl:       ttl,
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) expired(p Proposal) bool {
	return m.now().Sub(p.CreatedAt) > m.ttl
}

// Put stores a draft and returns the new proposal
func (m *Manager) Put(draft models.EventDraft) Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := Proposal{
		ID:        uuid.NewString(),
		Draft:     draft,
		CreatedAt: m.now(),
	}
	m.proposals[p.ID] = p
	return p
}

// Get returns a live proposal without consuming it
func (m *Manager) Get(id string) (Proposal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[id]
	if !ok || m.expired(p) {
		return Proposal{}, false
	}
	return p, true
}

// Take removes and returns a live proposal. Expired proposals are dropped
// and reported as missing.
func (m *Manager) Take(id string) (Proposal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return Proposal{}, false
	}
	delete(m.proposals, id)
	if m.expired(p) {
		return Proposal{}, false
	}
	return p, true
}

// Cancel discards a proposal and reports whether it was still live
func (m *Manager) Cancel(id string) bool {
	_, ok := m.Take(id)
	return ok
}

// Sweep drops every expired proposal and returns how many were removed
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, p := range m.proposals {
		if m.expired(p) {
			delete(m.proposals, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored proposals, expired ones included
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.proposals)
}
