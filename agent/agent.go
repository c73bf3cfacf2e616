// Package agent runs the rack-side half of the lock/unlock protocol: a
// single-threaded polling loop around a session state machine, a debounced
// presence detector, and the hardware boundary. The channel is the only
// path to the server; every wait is bounded by a timeout.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/smartpedals/rackshare-backend/internal/mqtt"
	"github.com/smartpedals/rackshare-backend/message"
)

// Config carries the tunables of one rack device.
type Config struct {
	RackID string

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	Timeouts          Timeouts

	NearCM float64
	FarCM  float64

	// StrictUserMatch requires replies to echo the credential of the
	// pending request before they are acted on.
	StrictUserMatch bool
}

func DefaultConfig(rackID string) Config {
	return Config{
		RackID:            rackID,
		PollInterval:      50 * time.Millisecond,
		HeartbeatInterval: 30 * time.Second,
		Timeouts:          DefaultTimeouts(),
		NearCM:            DefaultNearCM,
		FarCM:             DefaultFarCM,
	}
}

// Agent owns the polling loop. Inbound replies arrive on the channel's
// goroutine and are queued; the loop drains the queue, reads the sensors,
// and evaluates the session machine exactly once per iteration, so the
// machine itself never sees concurrency.
type Agent struct {
	cfg      Config
	fsm      *FSM
	detector *Detector
	tags     TagReader
	channel  mqtt.Channel
	logger   *slog.Logger

	replies chan message.Reply
	now     func() time.Time
}

func New(cfg Config, lock Lock, sensor PresenceSensor, tags TagReader, indicator Indicator, channel mqtt.Channel, logger *slog.Logger) *Agent {
	var fsmOpts []FSMOption
	if cfg.StrictUserMatch {
		fsmOpts = append(fsmOpts, WithStrictUserMatch())
	}
	return &Agent{
		cfg:      cfg,
		fsm:      NewFSM(cfg.RackID, lock, indicator, channel, cfg.Timeouts, logger, fsmOpts...),
		detector: NewDetector(sensor, cfg.NearCM, cfg.FarCM),
		tags:     tags,
		channel:  channel,
		logger:   logger,
		replies:  make(chan message.Reply, 8),
		now:      time.Now,
	}
}

// FSM exposes the session machine, for tests and the sim console.
func (a *Agent) FSM() *FSM {
	return a.fsm
}

// Run subscribes and polls until ctx is cancelled. Transport drops are the
// channel's problem (it reconnects and resubscribes on its own); a pending
// authorization survives a drop until its own timeout fires, since the
// rack cannot know whether the request was delivered.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.channel.Subscribe(message.TopicAuthReply, message.QoSAuth, a.onReply); err != nil {
		return err
	}

	a.fsm.Boot()
	a.logger.Info("rack agent started", "rack_id", a.cfg.RackID)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	var lastHeartbeat time.Time

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("rack agent stopping")
			return ctx.Err()
		case <-ticker.C:
		}

		a.drainReplies()

		tag := a.tags.ReadTag()
		presence := a.samplePresence()
		a.fsm.Step(tag, presence)

		if now := a.now(); now.Sub(lastHeartbeat) >= a.cfg.HeartbeatInterval {
			a.heartbeat(now)
			lastHeartbeat = now
		}
	}
}

func (a *Agent) onReply(_ string, payload []byte) {
	rep, err := message.ParseReply(payload)
	if err != nil {
		a.logger.Debug("discarding unparseable reply", "error", err)
		return
	}
	select {
	case a.replies <- rep:
	default:
		a.logger.Warn("reply queue full, dropping reply", "rack_id", rep.RackID)
	}
}

func (a *Agent) drainReplies() {
	for {
		select {
		case rep := <-a.replies:
			a.fsm.HandleReply(rep)
		default:
			return
		}
	}
}

// samplePresence only fires the ranger in states that act on it; the
// burst-and-average read is too slow to run every poll for nothing.
func (a *Agent) samplePresence() Verdict {
	switch a.fsm.State() {
	case StateUnlockedAwaitingPlacement, StateUnlockedAwaitingTag, StateUnlockedAwaitingRemoval:
		return a.detector.Sample()
	}
	return a.detector.Verdict()
}

// heartbeat advertises liveness and availability so the server has a fresh
// fleet view without polling the racks.
func (a *Agent) heartbeat(now time.Time) {
	hb := message.Heartbeat{
		Type:        message.TypeHeartbeat,
		RackID:      a.cfg.RackID,
		Status:      "active",
		Available:   a.fsm.Available(),
		CurrentBike: a.fsm.BikeID(),
		State:       a.fsm.State().String(),
		Timestamp:   now,
	}

	payload, err := message.Encode(hb)
	if err != nil {
		a.logger.Error("encode heartbeat failed", "error", err)
		return
	}
	if err := a.channel.Publish(message.TopicHeartbeat, message.QoSTelemetry, payload); err != nil {
		a.logger.Warn("publish heartbeat failed", "error", err)
	}
}
