// Package notify delivers operational messages to humans. Delivery is
// best effort; callers must never let a notification failure affect
// trading decisions.
package notify

import "context"

// Notifier sends short plain-text messages.
type Notifier interface {
	// Send delivers text. Errors indicate delivery failure only.
	Send(ctx context.Context, text string) error
	// Enabled reports whether the notifier is configured to deliver.
	Enabled() bool
}

// Noop is a disabled notifier.
type Noop struct{}

func (Noop) Send(context.Context, string) error { return nil }
func (Noop) Enabled() bool                      { return false }

var _ Notifier = Noop{}
