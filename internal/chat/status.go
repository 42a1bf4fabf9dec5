// Package chat implements message dispatch: routing each stored message to
// the best available channel (room socket, contact socket, or push) and
// advancing its delivery status accordingly.
package chat

import (
	"fmt"

	"github.com/propio/chat-server/internal/data"
)

// ErrBadTransition is wrapped by Transition when the requested status change
// is not allowed from the message's current status.
var ErrBadTransition = fmt.Errorf("illegal status transition")

// transitions holds the allowed forward moves of the delivery lifecycle.
//
//	pending -> sent
//	sent    -> delivered | seen | expired
//	delivered -> seen
//
// deleted is reachable from any non-terminal status and, like expired and
// seen, is never left. Deletion also wins over a concurrent lifecycle update:
// stores refuse to overwrite a deleted row.
var transitions = map[data.Status][]data.Status{
	data.StatusPending:   {data.StatusSent, data.StatusDeleted},
	data.StatusSent:      {data.StatusDelivered, data.StatusSeen, data.StatusExpired, data.StatusDeleted},
	data.StatusDelivered: {data.StatusSeen, data.StatusDeleted},
	data.StatusSeen:      {data.StatusDeleted},
}

// CanTransition reports whether a message may move from one status to
// another. Terminal statuses (deleted, expired) admit no moves at all.
func CanTransition(from, to data.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates the move from one status to another and returns the
// target status, or an error wrapping ErrBadTransition. A same-status move is
// rejected too; callers treat their updates as strictly forward steps.
func Transition(from, to data.Status) (data.Status, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}
	return to, nil
}
