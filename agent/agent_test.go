package agent

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/smartpedals/rackshare-backend/internal/mqtt"
	"github.com/smartpedals/rackshare-backend/message"
)

func newTestAgent(t *testing.T) (*Agent, *mqtt.Fake, *fakeClock) {
	t.Helper()

	channel := mqtt.NewFake()
	clock := newFakeClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := New(DefaultConfig("rack-1"), NewFakeLock(), NewFakeSensor(), NewFakeTagReader(), NopIndicator{}, channel, logger)
	a.now = clock.Now
	a.fsm.now = clock.Now
	a.fsm.Boot()
	return a, channel, clock
}

func TestAgent_ReplyQueueFeedsSession(t *testing.T) {
	a, _, _ := newTestAgent(t)

	a.fsm.Step("card-42", VerdictUnknown)
	if a.fsm.State() != StateAwaitingAuthLock {
		t.Fatalf("expected awaiting auth, got %v", a.fsm.State())
	}

	payload, _ := message.Encode(message.Reply{
		Type:   message.TypeAuthReply,
		RackID: "rack-1",
		UserID: "card-42",
		Action: message.ActionLock,
		Reply:  message.Accepted,
	})
	a.onReply(message.TopicAuthReply, payload)
	a.drainReplies()
	a.fsm.Step("", VerdictUnknown)

	if a.fsm.State() != StateUnlockedAwaitingPlacement {
		t.Errorf("queued reply not applied, state %v", a.fsm.State())
	}
}

func TestAgent_UnparseableReplyDropped(t *testing.T) {
	a, _, _ := newTestAgent(t)

	a.onReply(message.TopicAuthReply, []byte(`garbage`))
	a.onReply(message.TopicAuthReply, []byte(`{"type":"user_auth"}`))

	select {
	case rep := <-a.replies:
		t.Fatalf("unexpected queued reply: %+v", rep)
	default:
	}
}

func TestAgent_ReplyQueueOverflowDropsNewest(t *testing.T) {
	a, _, _ := newTestAgent(t)

	payload, _ := message.Encode(message.Reply{
		Type:   message.TypeAuthReply,
		RackID: "rack-1",
		Action: message.ActionLock,
		Reply:  message.Denied,
	})
	for i := 0; i < cap(a.replies)+3; i++ {
		a.onReply(message.TopicAuthReply, payload)
	}

	if got := len(a.replies); got != cap(a.replies) {
		t.Errorf("queue holds %d, want %d", got, cap(a.replies))
	}
}

func TestAgent_HeartbeatAdvertisesAvailability(t *testing.T) {
	a, channel, clock := newTestAgent(t)

	a.heartbeat(clock.Now())

	published := channel.Published(message.TopicHeartbeat)
	if len(published) != 1 {
		t.Fatalf("expected 1 heartbeat, got %d", len(published))
	}
	if published[0].QoS != message.QoSTelemetry {
		t.Errorf("heartbeat at QoS %d, want %d", published[0].QoS, message.QoSTelemetry)
	}

	hb, err := message.ParseHeartbeat(published[0].Payload)
	if err != nil {
		t.Fatalf("heartbeat does not parse: %v", err)
	}
	if hb.RackID != "rack-1" || !hb.Available || hb.State != "idle" {
		t.Errorf("unexpected heartbeat: %+v", hb)
	}
	if !hb.Timestamp.Equal(clock.Now()) {
		t.Errorf("heartbeat timestamp %v, want %v", hb.Timestamp, clock.Now())
	}
}

func TestAgent_SamplePresenceOnlyInPresenceStates(t *testing.T) {
	channel := mqtt.NewFake()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sensor := NewFakeSensor(steady(2.5, 5)...)

	a := New(DefaultConfig("rack-1"), NewFakeLock(), sensor, NewFakeTagReader(), NopIndicator{}, channel, logger)
	a.detector.sleep = func(time.Duration) {}
	a.fsm.Boot()

	// Idle never fires the ranger, so sensor readings must not advance.
	if v := a.samplePresence(); v != VerdictUnknown {
		t.Fatalf("idle must not sample, got %v", v)
	}

	a.fsm.state = StateUnlockedAwaitingPlacement
	if v := a.samplePresence(); v != VerdictNear {
		t.Fatalf("placement state must sample, got %v", v)
	}
}
