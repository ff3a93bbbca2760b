// Package broadcast carries session lifecycle events between agent
// instances that share one persistent tier. It replaces the storage-event
// marker trick of browser clients (write a throwaway key, remove it, let
// other tabs observe the change) with an explicit typed channel.
package broadcast

import (
	"context"
	"time"

	"tourbook/sessiond/internal/models"
)

type Kind string

const (
	// KindLogin announces a fresh login or a profile update; receivers
	// re-resolve the best available session from the persistent tier.
	KindLogin Kind = "login"
	// KindLogout forces matching instances to drop their session. Role is
	// set for privileged logouts so that only instances authenticated as
	// that role react; empty Role targets the legacy namespace.
	KindLogout Kind = "logout"
)

type Event struct {
	Kind   Kind        `json:"kind"`
	Role   models.Role `json:"role,omitempty"`
	Origin string      `json:"origin"`
	At     time.Time   `json:"at"`
}

// Bus fans an Event out to every subscriber except, by convention, the
// publisher itself (receivers filter on Origin). Delivery is at-most-once
// and unordered across instances; consumers only rely on convergence.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(fn func(Event)) (unsubscribe func(), err error)
	Close() error
}
