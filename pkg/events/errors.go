package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/korjavin/eventbot/pkg/storage"
)

var (
	// ErrValidation marks malformed or inconsistent user input
	ErrValidation = errors.New("invalid event")
	// ErrOverlap is returned when an event would intersect an existing one
	ErrOverlap = errors.New("there is an overlapping event")
	// ErrNotFoundOrForbidden hides whether an event exists from non-owners
	ErrNotFoundOrForbidden = errors.New("event not found or you don't have permission to change it")
	// ErrStorage wraps failures of the event store
	ErrStorage = errors.New("storage failure")
	// ErrProposalExpired is returned for unknown, cancelled or timed out proposals
	ErrProposalExpired = errors.New("proposal expired or was cancelled")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func validationErr(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// ownershipErr maps a missing event to ErrNotFoundOrForbidden and anything else to ErrStorage
func ownershipErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFoundOrForbidden
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return storageErr(op, err)
}
