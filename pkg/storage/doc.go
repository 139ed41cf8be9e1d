// Package storage keeps users, groups, events and signups in an embedded
// BadgerDB. Events are indexed by owner, group, start and end time so the
// sweepers can scan due and expired events in time order.
package storage
