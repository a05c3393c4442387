package notification

import (
	"context"
)

// Kind names a lifecycle event. Push subscribers filter on it.
type Kind string

const (
	KindShutdownStarted   Kind = "shutdown_started"
	KindGameServerStopped Kind = "game_server_stopped"
	KindVMStopped         Kind = "vm_stopped"
	KindVMStarted         Kind = "vm_started"
	KindShutdownFailed    Kind = "shutdown_failed"
)

// Event is one lifecycle announcement.
type Event struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Manual  bool   `json:"manual"`
}

// Failed reports whether the event announces a failure.
func (e Event) Failed() bool {
	return e.Kind == KindShutdownFailed
}

// Notifier delivers lifecycle events. Implementations must not block the
// caller for long and never return errors; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Fanout delivers each event to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, ev Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

// Discard drops every event.
var Discard Notifier = NotifierFunc(func(context.Context, Event) {})
