// Package notify is the notification sink fed by the authorization service
// and the telemetry consumer. Delivery is best effort: a sink failure is
// logged and never alters an already-committed authorization decision.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Event is one notifiable occurrence: an accepted lock/unlock, a rack
// falling silent, or fleet availability crossing the alert threshold.
type Event struct {
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id,omitempty"`
	BikeID    string    `json:"bike_id,omitempty"`
	RackID    string    `json:"rack_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is an interface for delivering events to riders and operators.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the structured log. It is the default sink
// when no webhook is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info("notification",
		"kind", ev.Kind,
		"user_id", ev.UserID,
		"bike_id", ev.BikeID,
		"rack_id", ev.RackID,
		"message", ev.Message,
	)
	return nil
}
