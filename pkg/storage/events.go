package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/korjavin/eventbot/pkg/models"
	"github.com/pkg/errors"
)

// EventStore is the persistence contract of the scheduling core. Every method
// is a single atomic badger transaction.
type EventStore interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	SaveUser(ctx context.Context, user models.User) error
	CreateGroup(ctx context.Context, group models.Group) error
	CreateMembership(ctx context.Context, m models.Membership) error

	InsertEvent(ctx context.Context, ev models.Event) (models.Event, error)
	UpdateEvent(ctx context.Context, ev models.Event) error
	DeleteEvent(ctx context.Context, id int64) error
	GetEvent(ctx context.Context, id int64) (models.Event, error)
	QueryEventsByOwner(ctx context.Context, owner string) ([]models.Event, error)
	QueryEventsByGroup(ctx context.Context, group string) ([]models.Event, error)
	QueryExpiredEvents(ctx context.Context, now time.Time) ([]models.Event, error)

	GetSignup(ctx context.Context, user string, event int64) (models.Signup, error)
	InsertSignup(ctx context.Context, s models.Signup) (bool, error)
	DeleteSignup(ctx context.Context, user string, event int64) (bool, error)
	QuerySignupsDueForNotification(ctx context.Context, now time.Time) ([]models.DueSignup, error)
	SetSignupNotified(ctx context.Context, user string, event int64, notified bool) error
}

var _ EventStore = (*Store)(nil)

// Key layout:
//
//	user:<uid>                 models.User
//	group:<gid>                models.Group
//	member:<gid>:<uid>         models.Membership
//	event:<eid>                models.Event
//	signup:<eid>:<uid>         models.Signup
//	idx:owner:<uid>:<eid>      empty
//	idx:group:<gid>:<eid>      empty
//	idx:start:<ts>:<eid>       empty, ordered by start
//	idx:end:<ts>:<eid>         empty, ordered by end
const (
	eventSeqKey = "meta:event_seq"

	userPrefix     = "user:"
	groupPrefix    = "group:"
	memberPrefix   = "member:"
	eventPrefix    = "event:"
	signupPrefix   = "signup:"
	ownerIdxPrefix = "idx:owner:"
	groupIdxPrefix = "idx:group:"
	startIdxPrefix = "idx:start:"
	endIdxPrefix   = "idx:end:"
)

func eventKey(id int64) string { return fmt.Sprintf("%s%020d", eventPrefix, id) }

func signupKey(event int64, user string) string {
	return fmt.Sprintf("%s%020d:%s", signupPrefix, event, user)
}

func signupEventPrefix(event int64) string { return fmt.Sprintf("%s%020d:", signupPrefix, event) }

func ownerIdxKey(owner string, id int64) string {
	return fmt.Sprintf("%s%s:%020d", ownerIdxPrefix, owner, id)
}

func groupIdxKey(group string, id int64) string {
	return fmt.Sprintf("%s%s:%020d", groupIdxPrefix, group, id)
}

// encodeTS maps unix seconds to a fixed-width hex string whose byte order
// matches numeric order, negative values included.
func encodeTS(t time.Time) string {
	return fmt.Sprintf("%016x", uint64(t.Unix())^(1<<63))
}

func decodeTS(s string) (int64, error) {
	u, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return int64(u ^ (1 << 63)), nil
}

func timeIdxKey(prefix string, t time.Time, id int64) string {
	return fmt.Sprintf("%s%s:%020d", prefix, encodeTS(t), id)
}

// idFromKey parses the trailing event ID of an index key
func idFromKey(key string) (int64, error) {
	i := strings.LastIndexByte(key, ':')
	return strconv.ParseInt(key[i+1:], 10, 64)
}

// CreateUser inserts the user unless one with the same ID exists
func (s *Store) CreateUser(ctx context.Context, user models.User) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return createIfAbsent(txn, userPrefix+user.ID, user)
	})
}

// GetUser loads a user
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userPrefix+id, &user)
	})
	return user, err
}

// SaveUser inserts or replaces a user
func (s *Store) SaveUser(ctx context.Context, user models.User) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, userPrefix+user.ID, user)
	})
}

// CreateGroup inserts the group unless one with the same ID exists
func (s *Store) CreateGroup(ctx context.Context, group models.Group) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return createIfAbsent(txn, groupPrefix+group.ID, group)
	})
}

// CreateMembership records a user-group membership unless it already exists
func (s *Store) CreateMembership(ctx context.Context, m models.Membership) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return createIfAbsent(txn, memberPrefix+m.GroupID+":"+m.UserID, m)
	})
}

func createIfAbsent(txn *badger.Txn, key string, value interface{}) error {
	ok, err := exists(txn, key)
	if err != nil || ok {
		return err
	}
	return setJSON(txn, key, value)
}

// InsertEvent assigns the next event ID and writes the event together with
// its owner's signup in one transaction.
func (s *Store) InsertEvent(ctx context.Context, ev models.Event) (models.Event, error) {
	if err := ctx.Err(); err != nil {
		return models.Event{}, err
	}
	next, err := s.seq.Next()
	if err != nil {
		return models.Event{}, errors.Wrap(err, "failed to allocate event ID")
	}
	ev.ID = int64(next) + 1

	owner := models.Signup{
		UserID:  ev.OwnerID,
		EventID: ev.ID,
		Status:  models.SignupStatusActive,
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		if err := putEvent(txn, ev); err != nil {
			return err
		}
		return setJSON(txn, signupKey(ev.ID, owner.UserID), owner)
	})
	if err != nil {
		return models.Event{}, errors.Wrapf(err, "failed to insert event %d", ev.ID)
	}
	return ev, nil
}

// UpdateEvent replaces a stored event and moves its index entries
func (s *Store) UpdateEvent(ctx context.Context, ev models.Event) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var old models.Event
		if err := getJSON(txn, eventKey(ev.ID), &old); err != nil {
			return errors.Wrapf(err, "event %d", ev.ID)
		}
		if err := dropEventIndexes(txn, old); err != nil {
			return err
		}
		return putEvent(txn, ev)
	})
}

// DeleteEvent removes an event, its index entries and all of its signups
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var ev models.Event
		if err := getJSON(txn, eventKey(id), &ev); err != nil {
			return errors.Wrapf(err, "event %d", id)
		}

		var signups []string
		err := eachKey(txn, signupEventPrefix(id), func(key string) error {
			signups = append(signups, key)
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range signups {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}

		if err := dropEventIndexes(txn, ev); err != nil {
			return err
		}
		return txn.Delete([]byte(eventKey(id)))
	})
}

func putEvent(txn *badger.Txn, ev models.Event) error {
	if err := setJSON(txn, eventKey(ev.ID), ev); err != nil {
		return err
	}
	keys := []string{
		ownerIdxKey(ev.OwnerID, ev.ID),
		timeIdxKey(startIdxPrefix, ev.Start, ev.ID),
		timeIdxKey(endIdxPrefix, ev.End, ev.ID),
	}
	if ev.IsGroup() {
		keys = append(keys, groupIdxKey(ev.GroupID, ev.ID))
	}
	for _, key := range keys {
		if err := txn.Set([]byte(key), nil); err != nil {
			return err
		}
	}
	return nil
}

func dropEventIndexes(txn *badger.Txn, ev models.Event) error {
	keys := []string{
		ownerIdxKey(ev.OwnerID, ev.ID),
		timeIdxKey(startIdxPrefix, ev.Start, ev.ID),
		timeIdxKey(endIdxPrefix, ev.End, ev.ID),
	}
	if ev.IsGroup() {
		keys = append(keys, groupIdxKey(ev.GroupID, ev.ID))
	}
	for _, key := range keys {
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
	}
	return nil
}

// GetEvent loads an event by ID
func (s *Store) GetEvent(ctx context.Context, id int64) (models.Event, error) {
	var ev models.Event
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, eventKey(id), &ev)
	})
	return ev, err
}

// QueryEventsByOwner returns every event owned by the user, private and group, ordered by ID
func (s *Store) QueryEventsByOwner(ctx context.Context, owner string) ([]models.Event, error) {
	return s.eventsByIndex(ctx, ownerIdxPrefix+owner+":")
}

// QueryEventsByGroup returns every event of the group, ordered by ID
func (s *Store) QueryEventsByGroup(ctx context.Context, group string) ([]models.Event, error) {
	return s.eventsByIndex(ctx, groupIdxPrefix+group+":")
}

func (s *Store) eventsByIndex(ctx context.Context, prefix string) ([]models.Event, error) {
	var events []models.Event
	err := s.view(ctx, func(txn *badger.Txn) error {
		return eachKey(txn, prefix, func(key string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := idFromKey(key)
			if err != nil {
				return errors.Wrapf(err, "bad index key %s", key)
			}
			var ev models.Event
			if err := getJSON(txn, eventKey(id), &ev); err != nil {
				return err
			}
			events = append(events, ev)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

// eventsUpTo walks a time index and returns events whose indexed time is at or before now
func eventsUpTo(ctx context.Context, txn *badger.Txn, prefix string, now time.Time) ([]models.Event, error) {
	var events []models.Event
	limit := now.Unix()
	stop := errors.New("stop")

	err := eachKey(txn, prefix, func(key string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rest := strings.TrimPrefix(key, prefix)
		ts, err := decodeTS(rest[:16])
		if err != nil {
			return errors.Wrapf(err, "bad index key %s", key)
		}
		if ts > limit {
			return stop
		}
		id, err := idFromKey(key)
		if err != nil {
			return errors.Wrapf(err, "bad index key %s", key)
		}
		var ev models.Event
		if err := getJSON(txn, eventKey(id), &ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil && err != stop {
		return nil, err
	}
	return events, nil
}

// QueryExpiredEvents returns events with End <= now, earliest end first
func (s *Store) QueryExpiredEvents(ctx context.Context, now time.Time) ([]models.Event, error) {
	var expired []models.Event
	err := s.view(ctx, func(txn *badger.Txn) error {
		events, err := eventsUpTo(ctx, txn, endIdxPrefix, now)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if !ev.End.After(now) {
				expired = append(expired, ev)
			}
		}
		return nil
	})
	return expired, err
}

// GetSignup loads the signup of a user for an event
func (s *Store) GetSignup(ctx context.Context, user string, event int64) (models.Signup, error) {
	var signup models.Signup
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, signupKey(event, user), &signup)
	})
	return signup, err
}

// InsertSignup creates a signup if the event exists and the user has none yet.
// It reports whether a row was written.
func (s *Store) InsertSignup(ctx context.Context, signup models.Signup) (bool, error) {
	inserted := false
	err := s.update(ctx, func(txn *badger.Txn) error {
		inserted = false
		ok, err := exists(txn, eventKey(signup.EventID))
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(ErrNotFound, "event %d", signup.EventID)
		}
		key := signupKey(signup.EventID, signup.UserID)
		if ok, err = exists(txn, key); err != nil || ok {
			return err
		}
		inserted = true
		return setJSON(txn, key, signup)
	})
	return inserted, err
}

// DeleteSignup removes a signup and reports whether one existed
func (s *Store) DeleteSignup(ctx context.Context, user string, event int64) (bool, error) {
	removed := false
	err := s.update(ctx, func(txn *badger.Txn) error {
		key := signupKey(event, user)
		ok, err := exists(txn, key)
		if err != nil || !ok {
			removed = false
			return err
		}
		removed = true
		return txn.Delete([]byte(key))
	})
	return removed, err
}

// QuerySignupsDueForNotification returns unnotified signups of events with Start <= now
func (s *Store) QuerySignupsDueForNotification(ctx context.Context, now time.Time) ([]models.DueSignup, error) {
	var due []models.DueSignup
	err := s.view(ctx, func(txn *badger.Txn) error {
		events, err := eventsUpTo(ctx, txn, startIdxPrefix, now)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if ev.Start.After(now) {
				continue
			}
			var keys []string
			err := eachKey(txn, signupEventPrefix(ev.ID), func(key string) error {
				keys = append(keys, key)
				return nil
			})
			if err != nil {
				return err
			}
			for _, key := range keys {
				var signup models.Signup
				if err := getJSON(txn, key, &signup); err != nil {
					return err
				}
				if !signup.Notified {
					due = append(due, models.DueSignup{Signup: signup, Event: ev})
				}
			}
		}
		return nil
	})
	return due, err
}

// SetSignupNotified sets the notified flag of a signup; setting the current value is a no-op
func (s *Store) SetSignupNotified(ctx context.Context, user string, event int64, notified bool) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		key := signupKey(event, user)
		var signup models.Signup
		if err := getJSON(txn, key, &signup); err != nil {
			return err
		}
		if signup.Notified == notified {
			return nil
		}
		signup.Notified = notified
		return setJSON(txn, key, signup)
	})
}
