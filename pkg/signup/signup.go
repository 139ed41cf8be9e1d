// Package signup manages reminder registrations of users for events
package signup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/korjavin/eventbot/pkg/events"
	"github.com/korjavin/eventbot/pkg/logger"
	"github.com/korjavin/eventbot/pkg/models"
	"github.com/korjavin/eventbot/pkg/storage"
)

var (
	// ErrEventNotFound is returned when the event does not exist or is not visible from the caller's chat
	ErrEventNotFound = errors.New("event not found")
	// ErrNotSignedUp is returned by ResetNotified when the user has no signup
	ErrNotSignedUp = errors.New("not signed up for this event")
)

// Outcome of SignUp
type Outcome int

const (
	Signed Outcome = iota
	AlreadySigned
)

// CancelOutcome of CancelSignup
type CancelOutcome int

const (
	Removed CancelOutcome = iota
	NotSignedUp
)

// Registry creates and updates signups
type Registry struct {
	store   storage.EventStore
	timeout time.Duration
	logger  *logger.Logger
}

// New creates a registry; a non-positive timeout defaults to 5s
func New(store storage.EventStore, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{
		store:   store,
		timeout: timeout,
		logger:  logger.New("signup"),
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", events.ErrStorage, op, err)
}

// SignUp registers user for the reminder of an event. groupContext is the chat
// the request comes from: group events are only visible from their own group,
// private events only to their owner.
func (r *Registry) SignUp(ctx context.Context, user models.User, eventID int64, groupContext string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ev, err := r.store.GetEvent(ctx, eventID)
	if errors.Is(err, storage.ErrNotFound) {
		return Signed, ErrEventNotFound
	}
	if err != nil {
		return Signed, storageErr("get event", err)
	}
	if !visible(ev, user.ID, groupContext) {
		return Signed, ErrEventNotFound
	}

	if err := r.store.CreateUser(ctx, user); err != nil {
		return Signed, storageErr("create user", err)
	}
	if ev.IsGroup() {
		if err := r.store.CreateMembership(ctx, models.Membership{UserID: user.ID, GroupID: ev.GroupID}); err != nil {
			return Signed, storageErr("create membership", err)
		}
	}

	inserted, err := r.store.InsertSignup(ctx, models.Signup{
		UserID:  user.ID,
		EventID: eventID,
		Status:  models.SignupStatusActive,
	})
	if errors.Is(err, storage.ErrNotFound) {
		// deleted between the lookup and the insert
		return Signed, ErrEventNotFound
	}
	if err != nil {
		return Signed, storageErr("insert signup", err)
	}
	if !inserted {
		return AlreadySigned, nil
	}
	r.logger.Info("User %s signed up for event %d", user.ID, eventID)
	return Signed, nil
}

func visible(ev models.Event, user, groupContext string) bool {
	if ev.IsGroup() {
		return ev.GroupID == groupContext
	}
	return ev.OwnerID == user
}

// CancelSignup removes the user's signup for an event
func (r *Registry) CancelSignup(ctx context.Context, user string, eventID int64) (CancelOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	removed, err := r.store.DeleteSignup(ctx, user, eventID)
	if err != nil {
		return NotSignedUp, storageErr("delete signup", err)
	}
	if !removed {
		return NotSignedUp, nil
	}
	r.logger.Info("User %s cancelled signup for event %d", user, eventID)
	return Removed, nil
}

// MarkNotified flags a signup as reminded. It is a no-op for rows already
// flagged or already removed.
func (r *Registry) MarkNotified(ctx context.Context, eventID int64, user string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.store.SetSignupNotified(ctx, user, eventID, true)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storageErr("mark notified", err)
	}
	return nil
}

// ResetNotified re-arms the reminder of a signup
func (r *Registry) ResetNotified(ctx context.Context, user string, eventID int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.store.SetSignupNotified(ctx, user, eventID, false)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotSignedUp
	}
	if err != nil {
		return storageErr("reset notified", err)
	}
	return nil
}

// Due returns the unnotified signups of events that started at or before now
func (r *Registry) Due(ctx context.Context, now time.Time) ([]models.DueSignup, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	due, err := r.store.QuerySignupsDueForNotification(ctx, now)
	if err != nil {
		return nil, storageErr("query due signups", err)
	}
	return due, nil
}
