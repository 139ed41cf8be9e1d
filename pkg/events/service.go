// Package events implements the event lifecycle: creation of private and group
// events, overlap and ownership rules, partial modification, deletion and listing.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/korjavin/eventbot/pkg/logger"
	"github.com/korjavin/eventbot/pkg/models"
	"github.com/korjavin/eventbot/pkg/proposal"
	"github.com/korjavin/eventbot/pkg/storage"
	"github.com/korjavin/eventbot/pkg/timeconv"
)

// OverlapPolicy selects which existing events a new group event is checked against
type OverlapPolicy string

const (
	// OverlapNone accepts group events without an overlap check
	OverlapNone OverlapPolicy = "none"
	// OverlapOwner checks against the owner's other events in the same group
	OverlapOwner OverlapPolicy = "owner"
	// OverlapGroup checks against every event of the group
	OverlapGroup OverlapPolicy = "group"
)

// Options configures a Service
type Options struct {
	GroupPolicy  OverlapPolicy
	DefaultZone  *time.Location
	StoreTimeout time.Duration
}

// Service provides event lifecycle operations
type Service struct {
	store       storage.EventStore
	proposals   *proposal.Manager
	policy      OverlapPolicy
	defaultZone *time.Location
	timeout     time.Duration
	logger      *logger.Logger
}

// New creates a new event service
func New(store storage.EventStore, proposals *proposal.Manager, opts Options) *Service {
	if opts.GroupPolicy == "" {
		opts.GroupPolicy = OverlapNone
	}
	if opts.DefaultZone == nil {
		opts.DefaultZone = time.UTC
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Service{
		store:       store,
		proposals:   proposals,
		policy:      opts.GroupPolicy,
		defaultZone: opts.DefaultZone,
		timeout:     opts.StoreTimeout,
		logger:      logger.New("events"),
	}
}

// CreateRequest carries user input for a new event. Start and End are local
// wall-clock times, "YYYY-MM-DD HH:MM:SS", in Zone (or the owner's stored zone).
type CreateRequest struct {
	OwnerID   string
	OwnerName string
	GroupID   string
	GroupName string
	Name      string
	Location  string
	Start     string
	End       string
	Zone      *time.Location
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Draft validates a request and converts its times to UTC. It performs no writes.
func (s *Service) Draft(ctx context.Context, req CreateRequest) (models.EventDraft, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return models.EventDraft{}, validationErr(errors.New("missing owner"))
	}
	if strings.TrimSpace(req.Name) == "" {
		return models.EventDraft{}, validationErr(errors.New("event name is required"))
	}

	zone := req.Zone
	if zone == nil {
		zone = s.UserZone(ctx, req.OwnerID)
	}

	start, err := timeconv.ToCanonical(req.Start, zone)
	if err != nil {
		return models.EventDraft{}, validationErr(err)
	}
	end, err := timeconv.ToCanonical(req.End, zone)
	if err != nil {
		return models.EventDraft{}, validationErr(err)
	}
	if !start.Before(end) {
		return models.EventDraft{}, validationErr(errors.New("event must start before it ends"))
	}

	return models.EventDraft{
		OwnerID:   req.OwnerID,
		OwnerName: req.OwnerName,
		GroupID:   req.GroupID,
		GroupName: req.GroupName,
		Name:      strings.TrimSpace(req.Name),
		Location:  strings.TrimSpace(req.Location),
		Start:     start,
		End:       end,
	}, nil
}

// CreatePrivateEvent creates an event visible only to its owner and signs the owner up for its reminder
func (s *Service) CreatePrivateEvent(ctx context.Context, req CreateRequest) (int64, error) {
	req.GroupID, req.GroupName = "", ""
	draft, err := s.Draft(ctx, req)
	if err != nil {
		return 0, err
	}
	return s.Create(ctx, draft)
}

// CreateGroupEvent creates an event in a group and signs the owner up for its reminder
func (s *Service) CreateGroupEvent(ctx context.Context, req CreateRequest) (int64, error) {
	if strings.TrimSpace(req.GroupID) == "" {
		return 0, validationErr(errors.New("group events can only be created in a group"))
	}
	draft, err := s.Draft(ctx, req)
	if err != nil {
		return 0, err
	}
	return s.Create(ctx, draft)
}

// Create checks a validated draft for overlaps and persists it
func (s *Service) Create(ctx context.Context, draft models.EventDraft) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.checkOverlap(ctx, draft.OwnerID, draft.GroupID, draft.Start, draft.End, 0); err != nil {
		return 0, err
	}

	if err := s.store.CreateUser(ctx, models.User{ID: draft.OwnerID, Name: draft.OwnerName}); err != nil {
		return 0, storageErr("create user", err)
	}
	if draft.GroupID != "" {
		if err := s.store.CreateGroup(ctx, models.Group{ID: draft.GroupID, Name: draft.GroupName}); err != nil {
			return 0, storageErr("create group", err)
		}
		membership := models.Membership{UserID: draft.OwnerID, GroupID: draft.GroupID}
		if err := s.store.CreateMembership(ctx, membership); err != nil {
			return 0, storageErr("create membership", err)
		}
	}

	ev, err := s.store.InsertEvent(ctx, models.Event{
		OwnerID:  draft.OwnerID,
		GroupID:  draft.GroupID,
		Name:     draft.Name,
		Location: draft.Location,
		Start:    draft.Start,
		End:      draft.End,
	})
	if err != nil {
		return 0, storageErr("insert event", err)
	}

	s.logger.Info("Created event %d %q for user %s (group %q) from %s to %s",
		ev.ID, ev.Name, ev.OwnerID, ev.GroupID, ev.Start.Format(time.RFC3339), ev.End.Format(time.RFC3339))
	return ev.ID, nil
}

// checkOverlap fails with ErrOverlap if [start, end) intersects an event the
// policy compares against. exclude skips one event ID (the event being modified).
func (s *Service) checkOverlap(ctx context.Context, owner, group string, start, end time.Time, exclude int64) error {
	var candidates []models.Event
	var err error

	switch {
	case group == "":
		candidates, err = s.store.QueryEventsByOwner(ctx, owner)
		if err != nil {
			return storageErr("query owner events", err)
		}
		candidates = filter(candidates, func(ev models.Event) bool { return !ev.IsGroup() })
	case s.policy == OverlapOwner:
		candidates, err = s.store.QueryEventsByOwner(ctx, owner)
		if err != nil {
			return storageErr("query owner events", err)
		}
		candidates = filter(candidates, func(ev models.Event) bool { return ev.GroupID == group })
	case s.policy == OverlapGroup:
		candidates, err = s.store.QueryEventsByGroup(ctx, group)
		if err != nil {
			return storageErr("query group events", err)
		}
	default:
		return nil
	}

	for _, ev := range candidates {
		if ev.ID != exclude && ev.Overlaps(start, end) {
			return fmt.Errorf("%w: %q (event %d)", ErrOverlap, ev.Name, ev.ID)
		}
	}
	return nil
}

// DeleteEvent deletes an event owned by requester together with its signups
func (s *Service) DeleteEvent(ctx context.Context, requester string, id int64) (models.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ev, err := s.owned(ctx, requester, id)
	if err != nil {
		return models.Event{}, err
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return models.Event{}, ownershipErr("delete event", err)
	}
	s.logger.Info("Deleted event %d for user %s", id, requester)
	return ev, nil
}

// owned loads an event and checks that requester owns it
func (s *Service) owned(ctx context.Context, requester string, id int64) (models.Event, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return models.Event{}, ownershipErr("get event", err)
	}
	if ev.OwnerID != requester {
		return models.Event{}, ErrNotFoundOrForbidden
	}
	return ev, nil
}

// UserZone returns the stored zone of a user, or the default zone
func (s *Service) UserZone(ctx context.Context, userID string) *time.Location {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Failed to load user %s, using default zone: %v", userID, err)
		}
		return s.defaultZone
	}
	if user.Zone == "" {
		return s.defaultZone
	}
	loc, err := timeconv.LoadZone(user.Zone)
	if err != nil {
		s.logger.Warn("User %s has unusable zone %q: %v", userID, user.Zone, err)
		return s.defaultZone
	}
	return loc
}

// SetUserZone stores the IANA zone a user enters times in
func (s *Service) SetUserZone(ctx context.Context, user models.User, zone string) error {
	if _, err := timeconv.LoadZone(zone); err != nil {
		return validationErr(err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored, err := s.store.GetUser(ctx, user.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		stored = user
	case err != nil:
		return storageErr("get user", err)
	}
	stored.Zone = zone
	if err := s.store.SaveUser(ctx, stored); err != nil {
		return storageErr("save user", err)
	}
	return nil
}

func filter(events []models.Event, keep func(models.Event) bool) []models.Event {
	out := events[:0]
	for _, ev := range events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}
