package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartpedals/rackshare-backend/internal/mqtt"
	"github.com/smartpedals/rackshare-backend/message"
	"github.com/smartpedals/rackshare-backend/notify"
	"github.com/smartpedals/rackshare-backend/user"
)

const (
	// DefaultSkewBudget bounds how far a request's claimed timestamp may
	// drift from the server clock before it is treated as a replay.
	DefaultSkewBudget = 30 * time.Second

	processTimeout = 15 * time.Second
	notifyTimeout  = 10 * time.Second
)

// Service runs the authorization transaction for inbound requests and
// publishes the reply. It is stateless per request; a restart simply drops
// whatever was in flight, which the rack's own timeout covers.
type Service struct {
	bikes    BikeStore
	racks    RackStore
	users    UserStore
	channel  mqtt.Channel
	notifier notify.Notifier
	logger   *slog.Logger

	skew      time.Duration
	stationID string

	now    func() time.Time
	tracer trace.Tracer

	decisions *prometheus.CounterVec
}

// Option configures a Service.
type Option func(*Service)

// WithSkewBudget overrides the replay/clock-skew guard window.
func WithSkewBudget(d time.Duration) Option {
	return func(s *Service) { s.skew = d }
}

// WithStationID stamps replies with the station this service fronts.
func WithStationID(id string) Option {
	return func(s *Service) { s.stationID = id }
}

// WithClock substitutes the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRegistry registers the service's decision counter on reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Service) { reg.MustRegister(s.decisions) }
}

func New(bikes BikeStore, racks RackStore, users UserStore, channel mqtt.Channel, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		bikes:    bikes,
		racks:    racks,
		users:    users,
		channel:  channel,
		notifier: notifier,
		logger:   logger,
		skew:     DefaultSkewBudget,
		now:      time.Now,
		tracer:   otel.Tracer("auth-service"),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_requests_total",
				Help: "Authorization requests by action, decision and deny reason",
			},
			[]string{"action", "decision", "reason"},
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe attaches the service to the request topic.
func (s *Service) Subscribe() error {
	return s.channel.Subscribe(message.TopicAuthRequest, message.QoSAuth, s.HandleRequest)
}

// HandleRequest processes one inbound request payload and publishes exactly
// one reply, whatever happens: a malformed payload, an unknown user, or an
// internal error all resolve to an explicit deny so the rack never stalls
// past its own timeout budget waiting on a silently dropped request.
func (s *Service) HandleRequest(_ string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "authorize")
	defer span.End()

	req, err := message.ParseRequest(payload)

	var decision message.Decision
	var reason Reason
	if err != nil {
		s.logger.Warn("malformed authorization request", "error", err)
		decision, reason = message.Denied, ReasonMalformed
		if errors.Is(err, message.ErrUnknownType) {
			reason = ReasonUnknownAction
		}
	} else {
		decision, reason = s.Authorize(ctx, req)
	}

	span.SetAttributes(
		attribute.String("auth.rack_id", req.RackID),
		attribute.String("auth.action", string(req.Action)),
		attribute.String("auth.decision", string(decision)),
		attribute.String("auth.reason", string(reason)),
	)
	s.decisions.WithLabelValues(string(req.Action), string(decision), string(reason)).Inc()

	s.reply(req, decision)

	if decision == message.Accepted {
		s.notifyAccept(req)
	}
}

// Authorize runs the validation pipeline and, for a valid request, the
// conditional state transition. First failure wins.
func (s *Service) Authorize(ctx context.Context, req message.Request) (message.Decision, Reason) {
	if _, err := s.users.GetByCredential(ctx, req.UserID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.logger.Info("deny: unknown user", "user_id", req.UserID, "rack_id", req.RackID)
			return message.Denied, ReasonUnknownUser
		}
		s.logger.Error("user lookup failed", "error", err)
		return message.Denied, ReasonInternal
	}

	if req.BikeID == "" {
		// Lock request from firmware: resolve the bike from the rider.
		b, err := s.bikes.GetByRider(ctx, req.UserID)
		if err != nil {
			s.logger.Info("deny: rider holds no bike", "user_id", req.UserID, "rack_id", req.RackID)
			return message.Denied, ReasonUnknownBike
		}
		req.BikeID = b.Label
	} else if _, err := s.bikes.GetBike(ctx, req.BikeID); err != nil {
		s.logger.Info("deny: unknown bike", "bike_id", req.BikeID, "rack_id", req.RackID, "error", err)
		return message.Denied, ReasonUnknownBike
	}

	if drift := s.now().Sub(req.Timestamp); drift > s.skew || drift < -s.skew {
		s.logger.Info("deny: stale timestamp", "rack_id", req.RackID, "drift", drift)
		return message.Denied, ReasonStaleTimestamp
	}

	switch req.Action {
	case message.ActionUnlock:
		return s.unlock(ctx, req)
	case message.ActionLock:
		return s.lock(ctx, req)
	}
	return message.Denied, ReasonUnknownAction
}

// unlock releases a docked bike to the requesting rider. The bike update is
// the linchpin: if the companion rack update cannot be made consistent the
// bike update is compensated and the request denied, because the store has
// no transaction spanning both records.
func (s *Service) unlock(ctx context.Context, req message.Request) (message.Decision, Reason) {
	matched, err := s.bikes.Undock(ctx, req.BikeID, req.RackID, req.UserID)
	if err != nil {
		s.logger.Error("undock update failed", "bike_id", req.BikeID, "error", err)
		return message.Denied, ReasonInternal
	}
	if !matched {
		s.logger.Info("deny: bike not available at rack", "bike_id", req.BikeID, "rack_id", req.RackID)
		return message.Denied, ReasonBikeUnavailable
	}

	matched, err = s.racks.Vacate(ctx, req.RackID, req.BikeID)
	if err != nil || !matched {
		s.rollbackUndock(ctx, req)
		if err != nil {
			s.logger.Error("vacate update failed", "rack_id", req.RackID, "error", err)
			return message.Denied, ReasonInternal
		}
		s.logger.Warn("deny: rack was not holding this bike", "rack_id", req.RackID, "bike_id", req.BikeID)
		return message.Denied, ReasonRackConflict
	}

	s.appendHistory(ctx, req, "undock")
	return message.Accepted, ReasonNone
}

// lock docks a bike the requesting rider currently holds.
func (s *Service) lock(ctx context.Context, req message.Request) (message.Decision, Reason) {
	matched, err := s.bikes.Dock(ctx, req.BikeID, req.RackID, req.UserID)
	if err != nil {
		s.logger.Error("dock update failed", "bike_id", req.BikeID, "error", err)
		return message.Denied, ReasonInternal
	}
	if !matched {
		s.logger.Info("deny: bike not in use by this rider", "bike_id", req.BikeID, "user_id", req.UserID)
		return message.Denied, ReasonNotRider
	}

	matched, err = s.racks.Occupy(ctx, req.RackID, req.BikeID)
	if err != nil || !matched {
		s.rollbackDock(ctx, req)
		if err != nil {
			s.logger.Error("occupy update failed", "rack_id", req.RackID, "error", err)
			return message.Denied, ReasonInternal
		}
		s.logger.Warn("deny: rack already occupied", "rack_id", req.RackID, "bike_id", req.BikeID)
		return message.Denied, ReasonRackConflict
	}

	s.appendHistory(ctx, req, "dock")
	return message.Accepted, ReasonNone
}

func (s *Service) rollbackUndock(ctx context.Context, req message.Request) {
	matched, err := s.bikes.Dock(ctx, req.BikeID, req.RackID, req.UserID)
	if err != nil || !matched {
		// The bike record is now inconsistent with the rack record and
		// needs operator attention; everything we know goes in the log.
		s.logger.Error("rollback of undock failed",
			"bike_id", req.BikeID, "rack_id", req.RackID, "user_id", req.UserID,
			"matched", matched, "error", err)
	}
}

func (s *Service) rollbackDock(ctx context.Context, req message.Request) {
	matched, err := s.bikes.Undock(ctx, req.BikeID, req.RackID, req.UserID)
	if err != nil || !matched {
		s.logger.Error("rollback of dock failed",
			"bike_id", req.BikeID, "rack_id", req.RackID, "user_id", req.UserID,
			"matched", matched, "error", err)
	}
}

// appendHistory is best effort: the decision is already committed and a
// failed audit row must not undo it.
func (s *Service) appendHistory(ctx context.Context, req message.Request, action string) {
	if err := s.users.AppendHistory(ctx, req.UserID, req.BikeID, req.RackID, action, s.now()); err != nil {
		s.logger.Error("history append failed", "user_id", req.UserID, "error", err)
	}
}

func (s *Service) reply(req message.Request, decision message.Decision) {
	rep := message.Reply{
		Type:      message.TypeAuthReply,
		UserID:    req.UserID,
		BikeID:    req.BikeID,
		RackID:    req.RackID,
		Action:    req.Action,
		Reply:     decision,
		Timestamp: s.now(),
		StationID: s.stationID,
	}

	payload, err := message.Encode(rep)
	if err != nil {
		s.logger.Error("encode reply failed", "error", err)
		return
	}
	if err := s.channel.Publish(message.TopicAuthReply, message.QoSAuth, payload); err != nil {
		s.logger.Error("publish reply failed", "rack_id", req.RackID, "error", err)
	}
}

func (s *Service) notifyAccept(req message.Request) {
	ev := notify.Event{
		Kind:      "auth_" + string(req.Action),
		UserID:    req.UserID,
		BikeID:    req.BikeID,
		RackID:    req.RackID,
		Timestamp: s.now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.logger.Warn("notification failed", "kind", ev.Kind, "error", err)
		}
	}()
}
