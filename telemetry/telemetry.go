// Package telemetry consumes the racks' completion events and heartbeats.
// This is bookkeeping, not the authorization path: a malformed payload is
// logged and dropped, there is no reply obligation here.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/smartpedals/rackshare-backend/internal/mqtt"
	"github.com/smartpedals/rackshare-backend/message"
	"github.com/smartpedals/rackshare-backend/notify"
)

// RackStore records rack liveness.
type RackStore interface {
	Touch(ctx context.Context, label, state string, at time.Time) error
}

// BikeCounter reports fleet availability for the alerter.
type BikeCounter interface {
	CountAvailable(ctx context.Context) (int, error)
}

// HistoryStore appends completion records to the ride log.
type HistoryStore interface {
	AppendHistory(ctx context.Context, credential, bikeLabel, rackLabel, action string, at time.Time) error
}

const handleTimeout = 10 * time.Second

// Consumer wires the event and heartbeat topics to the store and the
// availability alerter.
type Consumer struct {
	racks   RackStore
	bikes   BikeCounter
	history HistoryStore
	alerter *notify.Alerter
	logger  *slog.Logger

	now func() time.Time
}

func NewConsumer(racks RackStore, bikes BikeCounter, history HistoryStore, alerter *notify.Alerter, logger *slog.Logger) *Consumer {
	return &Consumer{
		racks:   racks,
		bikes:   bikes,
		history: history,
		alerter: alerter,
		logger:  logger,
		now:     time.Now,
	}
}

// Subscribe attaches the consumer to its topics.
func (c *Consumer) Subscribe(ch mqtt.Channel) error {
	if err := ch.Subscribe(message.TopicEvents, message.QoSEvents, c.HandleEvent); err != nil {
		return err
	}
	return ch.Subscribe(message.TopicHeartbeat, message.QoSTelemetry, c.HandleHeartbeat)
}

// HandleEvent records flow completions and surfaces rack-reported faults.
func (c *Consumer) HandleEvent(_ string, payload []byte) {
	ev, err := message.ParseEvent(payload)
	if err != nil {
		c.logger.Warn("discarding malformed event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	switch ev.Type {
	case message.TypeLock, message.TypeUnlock:
		c.logger.Info("flow completed", "type", ev.Type, "rack_id", ev.RackID, "bike_id", ev.BikeID)
		if err := c.history.AppendHistory(ctx, ev.UserID, ev.BikeID, ev.RackID, ev.Type+"_completed", c.now()); err != nil {
			c.logger.Error("completion history append failed", "rack_id", ev.RackID, "error", err)
		}
	case message.TypeLockTimeout:
		c.logger.Warn("rack reported placement timeout", "rack_id", ev.RackID)
	case message.TypeError:
		c.logger.Warn("rack reported error", "rack_id", ev.RackID, "message", ev.Message)
	}
}

// HandleHeartbeat refreshes the rack's liveness record and re-evaluates
// fleet availability.
func (c *Consumer) HandleHeartbeat(_ string, payload []byte) {
	hb, err := message.ParseHeartbeat(payload)
	if err != nil {
		c.logger.Warn("discarding malformed heartbeat", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	at := hb.Timestamp
	if at.IsZero() {
		at = c.now()
	}
	if err := c.racks.Touch(ctx, hb.RackID, hb.State, at); err != nil {
		c.logger.Error("heartbeat update failed", "rack_id", hb.RackID, "error", err)
	}

	if c.alerter == nil {
		return
	}
	available, err := c.bikes.CountAvailable(ctx)
	if err != nil {
		c.logger.Error("availability count failed", "error", err)
		return
	}
	if err := c.alerter.Observe(ctx, available); err != nil {
		c.logger.Warn("availability alert failed", "error", err)
	}
}
