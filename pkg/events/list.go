package events

import (
	"context"
	"errors"
	"sort"

	"github.com/korjavin/eventbot/pkg/models"
	"github.com/korjavin/eventbot/pkg/storage"
)

// ListEventsForUser returns the user's private events plus, when group is set,
// the group's events the user is signed up for. The result is ordered by event ID.
func (s *Service) ListEventsForUser(ctx context.Context, user, group string) ([]models.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	owned, err := s.store.QueryEventsByOwner(ctx, user)
	if err != nil {
		return nil, storageErr("query owner events", err)
	}
	result := filter(owned, func(ev models.Event) bool { return !ev.IsGroup() })

	if group != "" {
		groupEvents, err := s.store.QueryEventsByGroup(ctx, group)
		if err != nil {
			return nil, storageErr("query group events", err)
		}
		for _, ev := range groupEvents {
			_, err := s.store.GetSignup(ctx, user, ev.ID)
			switch {
			case err == nil:
				result = append(result, ev)
			case errors.Is(err, storage.ErrNotFound):
			default:
				return nil, storageErr("get signup", err)
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListGroupEvents returns every event of a group ordered by ID
func (s *Service) ListGroupEvents(ctx context.Context, group string) ([]models.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	events, err := s.store.QueryEventsByGroup(ctx, group)
	if err != nil {
		return nil, storageErr("query group events", err)
	}
	return events, nil
}

// Page returns the 1-based page of events and the total number of pages.
// Out of range pages are empty.
func Page(events []models.Event, page, perPage int) ([]models.Event, int) {
	if perPage <= 0 {
		perPage = 10
	}
	total := (len(events) + perPage - 1) / perPage
	if page < 1 || page > total {
		return nil, total
	}
	start := (page - 1) * perPage
	end := start + perPage
	if end > len(events) {
		end = len(events)
	}
	return events[start:end], total
}
