package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
)

func decodeEvent(r *http.Request, ev *Event) error {
	return json.NewDecoder(r.Body).Decode(ev)
}

func TestAlerter_EdgeTriggered(t *testing.T) {
	sink := NewFake()
	a := NewAlerter(sink, 2)
	ctx := context.Background()

	// Healthy counts produce nothing.
	a.Observe(ctx, 5)
	a.Observe(ctx, 3)
	if got := len(sink.Events()); got != 0 {
		t.Fatalf("expected no events above threshold, got %d", got)
	}

	// Crossing below fires once, not on every observation.
	a.Observe(ctx, 1)
	a.Observe(ctx, 0)
	a.Observe(ctx, 1)
	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 low event, got %d", len(events))
	}
	if events[0].Kind != "availability_low" {
		t.Errorf("unexpected kind %q", events[0].Kind)
	}

	// Recovery fires the opposite edge.
	a.Observe(ctx, 4)
	a.Observe(ctx, 4)
	events = sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Kind != "availability_recovered" {
		t.Errorf("unexpected kind %q", events[1].Kind)
	}
}

func TestAlerter_SinkErrorStillAdvancesEdge(t *testing.T) {
	sink := NewFake()
	sink.Err = errors.New("sink down")
	a := NewAlerter(sink, 2)
	ctx := context.Background()

	if err := a.Observe(ctx, 0); err == nil {
		t.Fatal("expected sink error to surface")
	}

	// The edge already advanced; a repeat observation must not refire.
	sink.Err = nil
	if err := a.Observe(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(sink.Events()); got != 0 {
		t.Fatalf("expected no refire on the same edge, got %d", got)
	}
}

func TestWebhookNotifier_Delivers(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := decodeEvent(r, &received); err != nil {
			t.Errorf("decoding event: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), Event{Kind: "auth_unlock", BikeID: "bike-7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.Kind != "auth_unlock" || received.BikeID != "bike-7" {
		t.Errorf("unexpected event received: %+v", received)
	}
}

func TestWebhookNotifier_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), Event{Kind: "auth_lock"})
	if !errors.Is(err, ErrWebhookFailed) {
		t.Fatalf("expected ErrWebhookFailed, got %v", err)
	}
}
