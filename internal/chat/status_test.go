package chat

import (
	"errors"
	"testing"

	"github.com/propio/chat-server/internal/data"
)

func TestTransitionAllowed(t *testing.T) {
	allowed := []struct{ from, to data.Status }{
		{data.StatusPending, data.StatusSent},
		{data.StatusSent, data.StatusDelivered},
		{data.StatusSent, data.StatusSeen},
		{data.StatusSent, data.StatusExpired},
		{data.StatusDelivered, data.StatusSeen},
		{data.StatusPending, data.StatusDeleted},
		{data.StatusSent, data.StatusDeleted},
		{data.StatusDelivered, data.StatusDeleted},
		{data.StatusSeen, data.StatusDeleted},
	}
	for _, tc := range allowed {
		got, err := Transition(tc.from, tc.to)
		if err != nil {
			t.Errorf("Transition(%s, %s) unexpected error: %v", tc.from, tc.to, err)
		}
		if got != tc.to {
			t.Errorf("Transition(%s, %s) = %s, want %s", tc.from, tc.to, got, tc.to)
		}
	}
}

func TestTransitionRejected(t *testing.T) {
	rejected := []struct{ from, to data.Status }{
		// Backward moves.
		{data.StatusSeen, data.StatusDelivered},
		{data.StatusSeen, data.StatusSent},
		{data.StatusDelivered, data.StatusSent},
		{data.StatusSent, data.StatusPending},
		// Skipping the persist step.
		{data.StatusPending, data.StatusDelivered},
		{data.StatusPending, data.StatusSeen},
		// Expiry applies to undelivered messages only.
		{data.StatusPending, data.StatusExpired},
		{data.StatusDelivered, data.StatusExpired},
		{data.StatusSeen, data.StatusExpired},
		// Terminal statuses admit nothing.
		{data.StatusDeleted, data.StatusSeen},
		{data.StatusDeleted, data.StatusDeleted},
		{data.StatusExpired, data.StatusSeen},
		{data.StatusExpired, data.StatusDeleted},
		// Same-status moves are not steps.
		{data.StatusSent, data.StatusSent},
		{data.StatusSeen, data.StatusSeen},
	}
	for _, tc := range rejected {
		got, err := Transition(tc.from, tc.to)
		if !errors.Is(err, ErrBadTransition) {
			t.Errorf("Transition(%s, %s) error = %v, want ErrBadTransition", tc.from, tc.to, err)
		}
		if got != tc.from {
			t.Errorf("Transition(%s, %s) = %s, want unchanged %s", tc.from, tc.to, got, tc.from)
		}
	}
}
