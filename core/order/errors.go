package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no order matches the given identifier.
	ErrNotFound = errors.New("order not found")

	// ErrEmptyOrder rejects orders that would end up without any item.
	ErrEmptyOrder = errors.New("order must contain at least one item")

	// ErrStaleOrder reports that another transition committed since the
	// order was read. The caller should re-read and retry.
	ErrStaleOrder = errors.New("order was modified concurrently")

	// ErrImmutableOrder rejects item changes once payment has left DRAFT.
	ErrImmutableOrder = errors.New("order items are locked once payment has started")

	// ErrNoChange rejects transitions that name no new status.
	ErrNoChange = errors.New("transition must change at least one status")

	// ErrDuplicateItem rejects adding a course that is already in the order.
	ErrDuplicateItem = errors.New("course is already part of the order")

	// ErrItemNotFound reports a removal of a course the order does not hold.
	ErrItemNotFound = errors.New("course is not part of the order")
)

// IllegalTransitionError reports a transition the state machine forbids,
// naming the track and both endpoints so the caller can correct the request.
type IllegalTransitionError struct {
	Track string
	From  string
	To    string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition from %s to %s", e.Track, e.From, e.To)
}

// ValidationError carries every field violation found in an order payload.
type ValidationError struct {
	Fields map[string]interface{}
}

func (e *ValidationError) Error() string { return "order payload failed validation" }
