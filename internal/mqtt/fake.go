package mqtt

import (
	"errors"
	"sync"
)

var ErrOffline = errors.New("channel offline")

// PublishedMessage records one Publish call on the fake channel.
type PublishedMessage struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Fake is an in-memory Channel for tests. Publish delivers synchronously to
// every handler subscribed to the exact topic, and every call is recorded
// for assertions. Setting Offline makes Publish fail without delivery,
// which is how tests model a dead broker.
type Fake struct {
	mu        sync.Mutex
	handlers  map[string][]Handler
	published []PublishedMessage
	offline   bool
}

func NewFake() *Fake {
	return &Fake{handlers: make(map[string][]Handler)}
}

func (f *Fake) Publish(topic string, qos byte, payload []byte) error {
	f.mu.Lock()
	if f.offline {
		f.mu.Unlock()
		return ErrOffline
	}
	f.published = append(f.published, PublishedMessage{Topic: topic, QoS: qos, Payload: payload})
	handlers := append([]Handler(nil), f.handlers[topic]...)
	f.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

func (f *Fake) Subscribe(topic string, qos byte, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return ErrOffline
	}
	f.handlers[topic] = append(f.handlers[topic], h)
	return nil
}

func (f *Fake) Close() {}

// SetOffline toggles publish/subscribe failure.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// Deliver injects a message to subscribers without recording a publish,
// as if a remote peer had published it.
func (f *Fake) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	handlers := append([]Handler(nil), f.handlers[topic]...)
	f.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

// Published returns the publishes recorded so far, optionally filtered by
// topic. Pass "" for all topics.
func (f *Fake) Published(topic string) []PublishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	if topic == "" {
		return append([]PublishedMessage(nil), f.published...)
	}
	var out []PublishedMessage
	for _, m := range f.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Reset clears the publish log.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = nil
}
