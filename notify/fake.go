package notify

import (
	"context"
	"sync"
)

// Fake is a test implementation of Notifier.
type Fake struct {
	mu     sync.Mutex
	events []Event
	// Err, when set, is returned from every Notify call.
	Err error
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Notify(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.events = append(f.events, ev)
	return nil
}

// Events returns the notifications delivered so far.
func (f *Fake) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}
