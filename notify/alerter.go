package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Alerter watches fleet availability and raises a notification when the
// number of available bikes drops below the threshold, and another when it
// recovers. Edge-triggered: a count hovering on one side of the threshold
// notifies once, not on every observation.
type Alerter struct {
	notifier  Notifier
	threshold int

	mu    sync.Mutex
	below bool
}

func NewAlerter(n Notifier, threshold int) *Alerter {
	return &Alerter{notifier: n, threshold: threshold}
}

// Observe feeds the current available-bike count. Returns the sink error,
// if any, so the caller can log it; the alerter's own edge state advances
// regardless.
func (a *Alerter) Observe(ctx context.Context, available int) error {
	a.mu.Lock()
	below := available < a.threshold
	changed := below != a.below
	a.below = below
	a.mu.Unlock()

	if !changed {
		return nil
	}

	ev := Event{
		Kind:      "availability_low",
		Message:   fmt.Sprintf("%d bikes available (threshold %d)", available, a.threshold),
		Timestamp: time.Now(),
	}
	if !below {
		ev.Kind = "availability_recovered"
	}
	return a.notifier.Notify(ctx, ev)
}
