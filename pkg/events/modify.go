package events

import (
	"context"
	"errors"
	"strings"

	"github.com/korjavin/eventbot/pkg/timeconv"
)

// ModifyOutcome reports what ModifyEvent did when it returns no error
type ModifyOutcome int

const (
	// Updated means at least one field was written
	Updated ModifyOutcome = iota
	// NoChange means no fields were supplied and nothing was written
	NoChange
)

// Changes lists the fields to replace; nil fields keep their stored value.
// Dates are "YYYY-MM-DD" and times "HH:MM:SS" in the requester's zone.
type Changes struct {
	Name      *string
	Location  *string
	StartDate *string
	StartTime *string
	EndDate   *string
	EndTime   *string
}

// Empty reports whether no field is set
func (c Changes) Empty() bool {
	return c.Name == nil && c.Location == nil &&
		c.StartDate == nil && c.StartTime == nil &&
		c.EndDate == nil && c.EndTime == nil
}

func pick(override *string, fallback string) string {
	if override != nil && strings.TrimSpace(*override) != "" {
		return *override
	}
	return fallback
}

// ModifyEvent applies a partial update to an event owned by requester. When only
// the date or only the time of a timestamp is given, the other half is taken from
// the stored value as seen in the requester's zone.
func (s *Service) ModifyEvent(ctx context.Context, requester string, id int64, changes Changes) (ModifyOutcome, error) {
	zone := s.UserZone(ctx, requester)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ev, err := s.owned(ctx, requester, id)
	if err != nil {
		return NoChange, err
	}
	if changes.Empty() {
		return NoChange, nil
	}

	updated := ev
	if changes.Name != nil {
		name := strings.TrimSpace(*changes.Name)
		if name == "" {
			return NoChange, validationErr(errors.New("event name cannot be empty"))
		}
		updated.Name = name
	}
	if changes.Location != nil {
		updated.Location = strings.TrimSpace(*changes.Location)
	}

	timesChanged := false
	if changes.StartDate != nil || changes.StartTime != nil {
		date, clock := timeconv.SplitLocal(ev.Start, zone)
		start, err := timeconv.ComposeLocal(pick(changes.StartDate, date), pick(changes.StartTime, clock), zone)
		if err != nil {
			return NoChange, validationErr(err)
		}
		updated.Start = start
		timesChanged = true
	}
	if changes.EndDate != nil || changes.EndTime != nil {
		date, clock := timeconv.SplitLocal(ev.End, zone)
		end, err := timeconv.ComposeLocal(pick(changes.EndDate, date), pick(changes.EndTime, clock), zone)
		if err != nil {
			return NoChange, validationErr(err)
		}
		updated.End = end
		timesChanged = true
	}

	if timesChanged {
		if !updated.Start.Before(updated.End) {
			return NoChange, validationErr(errors.New("event must start before it ends"))
		}
		if err := s.checkOverlap(ctx, updated.OwnerID, updated.GroupID, updated.Start, updated.End, updated.ID); err != nil {
			return NoChange, err
		}
	}

	if err := s.store.UpdateEvent(ctx, updated); err != nil {
		return NoChange, ownershipErr("update event", err)
	}
	s.logger.Info("Modified event %d for user %s", id, requester)
	return Updated, nil
}
