// Package notify delivers session lifecycle notifications to external
// channels.
package notify

import (
	"context"

	"github.com/superagent-ai/vibe0/model"
)

// Event describes a session reaching a terminal provisioning state.
type Event struct {
	SessionID string
	Name      string
	Status    model.Status
	TunnelURL string
}

// Notifier receives session lifecycle events. Implementations must be safe
// for concurrent use; failures are logged by callers, never fatal.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Noop discards all events.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, Event) error { return nil }
