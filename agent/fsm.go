package agent

import (
	"log/slog"
	"time"

	"github.com/smartpedals/rackshare-backend/message"
)

// State is the rack session's position in the lock/unlock protocol. Idle
// is initial; every state returns to Idle on completion, denial or
// timeout. There is no terminal state.
type State int

const (
	StateIdle State = iota
	StateAwaitingAuthLock
	StateUnlockedAwaitingPlacement
	StateUnlockedAwaitingTag
	StateAwaitingAuthUnlock
	StateUnlockedAwaitingRemoval
	StateAwaitingRelockConfirm
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAuthLock:
		return "awaiting_auth_lock"
	case StateUnlockedAwaitingPlacement:
		return "unlocked_awaiting_placement"
	case StateUnlockedAwaitingTag:
		return "unlocked_awaiting_tag"
	case StateAwaitingAuthUnlock:
		return "awaiting_auth_unlock"
	case StateUnlockedAwaitingRemoval:
		return "unlocked_awaiting_removal"
	case StateAwaitingRelockConfirm:
		return "awaiting_relock_confirm"
	}
	return "unknown"
}

// Timeouts bound every wait in the protocol so the rack can never get
// stuck in an intermediate state. They are the only cancellation
// mechanism; there is no external abort signal.
type Timeouts struct {
	// AuthResponse is how long to wait for the server's verdict.
	AuthResponse time.Duration
	// Placement bounds the whole place-bike-then-scan-tag sequence; the
	// tag stage continues on the same budget rather than restarting it.
	Placement time.Duration
	// Removal is how long the rider has to pull the bike out.
	Removal time.Duration
	// RelockConfirm is how long to wait for the confirmation scan after
	// removal before locking anyway.
	RelockConfirm time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		AuthResponse:  time.Second,
		Placement:     30 * time.Second,
		Removal:       30 * time.Second,
		RelockConfirm: 30 * time.Second,
	}
}

// Publisher is the slice of the channel the session machine needs.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

type pendingAuth struct {
	action   message.Action
	userID   string
	issuedAt time.Time
}

// FSM is the rack-side session machine. All state is in-memory and
// volatile: a reboot abandons any flow in progress and starts over at Idle
// with the actuator driven locked. It is not safe for concurrent use; the
// agent loop owns it on a single goroutine.
type FSM struct {
	rackID    string
	lock      Lock
	indicator Indicator
	pub       Publisher
	timeouts  Timeouts
	logger    *slog.Logger
	now       func() time.Time

	// Reply correlation is by rack and action only. Matching the user as
	// well requires tag readers that can tell cards from bike tags apart;
	// flip this on once those ship.
	strictUserMatch bool

	state     State
	enteredAt time.Time
	// flowStart anchors the shared placement+tag budget.
	flowStart time.Time
	// bikeID is the bike this rack believes it hosts, "" when free.
	bikeID  string
	pending *pendingAuth
	reply   *message.Reply
}

// FSMOption configures an FSM.
type FSMOption func(*FSM)

// WithFSMClock substitutes the wall clock, for tests.
func WithFSMClock(now func() time.Time) FSMOption {
	return func(f *FSM) { f.now = now }
}

// WithStrictUserMatch enforces user identity in reply correlation.
func WithStrictUserMatch() FSMOption {
	return func(f *FSM) { f.strictUserMatch = true }
}

func NewFSM(rackID string, lock Lock, indicator Indicator, pub Publisher, timeouts Timeouts, logger *slog.Logger, opts ...FSMOption) *FSM {
	f := &FSM{
		rackID:    rackID,
		lock:      lock,
		indicator: indicator,
		pub:       pub,
		timeouts:  timeouts,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Boot drives the actuator to the conservative posture and enters Idle.
// Called once at startup; whatever the hardware was doing before the
// process (re)started, it is locked now.
func (f *FSM) Boot() {
	f.driveLocked()
	f.setState(StateIdle)
}

func (f *FSM) State() State   { return f.state }
func (f *FSM) BikeID() string { return f.bikeID }

// Available reports whether the rack believes it has a free slot.
func (f *FSM) Available() bool { return f.bikeID == "" }

func (f *FSM) setState(s State) {
	f.state = s
	f.enteredAt = f.now()
	f.logger.Debug("state transition", "state", s.String())
}

func (f *FSM) driveLocked() {
	f.lock.SetLocked(true)
	f.indicator.ShowLocked()
}

func (f *FSM) driveUnlocked() {
	f.lock.SetLocked(false)
	f.indicator.ShowUnlocked()
}

// HandleReply offers an inbound authorization reply to the session. A
// reply is accepted only while the matching request is pending; anything
// else - a stale reply after timeout, a duplicate after the flow advanced,
// a reply for another rack or action - is ignored without a state change.
func (f *FSM) HandleReply(rep message.Reply) {
	if f.state != StateAwaitingAuthLock && f.state != StateAwaitingAuthUnlock {
		f.logger.Debug("ignoring reply outside awaiting-auth state", "state", f.state.String())
		return
	}
	if f.pending == nil {
		return
	}
	if !rep.Matches(f.rackID, f.pending.action, f.pending.userID, f.strictUserMatch) {
		f.logger.Debug("ignoring non-matching reply",
			"reply_rack", rep.RackID, "reply_action", string(rep.Action))
		return
	}
	f.reply = &rep
}

// Step evaluates the session once. tag is the tag frame read this poll
// ("" for none) and presence is the detector's current verdict. Each call
// publishes at most one message and never blocks.
func (f *FSM) Step(tag string, presence Verdict) {
	switch f.state {
	case StateIdle:
		f.stepIdle(tag)
	case StateAwaitingAuthLock:
		f.stepAwaitingAuth(StateUnlockedAwaitingPlacement, "auth_timeout_lock", true)
	case StateAwaitingAuthUnlock:
		f.stepAwaitingAuth(StateUnlockedAwaitingRemoval, "auth_timeout_unlock", false)
	case StateUnlockedAwaitingPlacement:
		f.stepAwaitingPlacement(presence)
	case StateUnlockedAwaitingTag:
		f.stepAwaitingTag(tag, presence)
	case StateUnlockedAwaitingRemoval:
		f.stepAwaitingRemoval(presence)
	case StateAwaitingRelockConfirm:
		f.stepRelockConfirm(tag)
	}
}

// stepIdle waits for a rider's card. Whether this starts a lock or an
// unlock flow is decided by whether the rack believes it hosts a bike.
func (f *FSM) stepIdle(tag string) {
	if tag == "" {
		return
	}
	if f.bikeID == "" {
		f.sendAuthRequest(message.ActionLock, tag)
		f.setState(StateAwaitingAuthLock)
	} else {
		f.sendAuthRequest(message.ActionUnlock, tag)
		f.setState(StateAwaitingAuthUnlock)
	}
}

// stepAwaitingAuth resolves a pending authorization: accept advances to
// the unlocked stage, deny or timeout falls back to Idle. The lock branch
// re-asserts the locked posture on the way out; the unlock branch leaves
// the posture untouched, it was never opened.
func (f *FSM) stepAwaitingAuth(onAccept State, timeoutTag string, relock bool) {
	if f.reply != nil {
		rep := f.reply
		f.reply = nil
		if rep.Reply == message.Accepted {
			f.driveUnlocked()
			f.setState(onAccept)
			if onAccept == StateUnlockedAwaitingPlacement {
				f.flowStart = f.enteredAt
			}
			return
		}
		f.logger.Info("authorization denied", "action", string(f.pending.action), "user_id", f.pending.userID)
		if relock {
			f.driveLocked()
		}
		f.pending = nil
		f.setState(StateIdle)
		return
	}

	if f.now().Sub(f.pending.issuedAt) > f.timeouts.AuthResponse {
		f.logger.Warn("authorization timed out", "action", string(f.pending.action))
		f.publishEvent(message.Event{Type: message.TypeError, Message: timeoutTag})
		if relock {
			f.driveLocked()
		}
		f.pending = nil
		f.setState(StateIdle)
	}
}

// stepAwaitingPlacement keeps the slot open until a wheel arrives or the
// placement budget runs out. Timing out re-locks: an open empty slot is a
// theft invitation.
func (f *FSM) stepAwaitingPlacement(presence Verdict) {
	if presence == VerdictNear {
		f.setState(StateUnlockedAwaitingTag)
		return
	}
	if f.now().Sub(f.enteredAt) > f.timeouts.Placement {
		f.driveLocked()
		f.publishEvent(message.Event{Type: message.TypeLockTimeout})
		f.pending = nil
		f.setState(StateIdle)
		return
	}
	f.driveUnlocked()
}

// stepAwaitingTag expects the bike's own tag while the wheel stays in the
// slot. The budget continues from placement rather than restarting. On
// timeout the slot re-locks and any existing bike association is kept:
// dropping it would make the rack advertise a free slot it cannot verify.
func (f *FSM) stepAwaitingTag(tag string, presence Verdict) {
	f.indicator.ShowGuide()

	if presence == VerdictNear && tag != "" {
		f.bikeID = tag
		f.driveLocked()
		f.publishEvent(message.Event{
			Type:   message.TypeLock,
			BikeID: f.bikeID,
			UserID: f.pending.userID,
		})
		f.pending = nil
		f.setState(StateIdle)
		return
	}

	if f.now().Sub(f.flowStart) > f.timeouts.Placement {
		f.driveLocked()
		f.publishEvent(message.Event{Type: message.TypeError, Message: "lock_flow_timeout"})
		f.pending = nil
		f.setState(StateIdle)
	}
}

// stepAwaitingRemoval waits for the wheel to leave. Timing out leaves the
// slot UNLOCKED: re-locking around a half-removed bike would trap the bike
// and possibly the rider, so this timeout alone favors open.
func (f *FSM) stepAwaitingRemoval(presence Verdict) {
	if presence == VerdictFar {
		f.setState(StateAwaitingRelockConfirm)
		return
	}
	if f.now().Sub(f.enteredAt) > f.timeouts.Removal {
		f.logger.Warn("bike not removed in time, leaving slot unlocked")
		f.publishEvent(message.Event{Type: message.TypeError, Message: "unlock_timeout"})
		f.driveUnlocked()
		f.pending = nil
		f.setState(StateIdle)
	}
}

// stepRelockConfirm wants one more scan to confirm the rider is done, then
// locks the now-empty slot. Timing out locks anyway: unlike the removal
// timeout there is nothing left to trap, so security wins.
func (f *FSM) stepRelockConfirm(tag string) {
	f.indicator.ShowGuide()

	if tag != "" {
		f.driveLocked()
		f.publishEvent(message.Event{
			Type:   message.TypeUnlock,
			BikeID: f.bikeID,
			UserID: f.pending.userID,
		})
		f.bikeID = ""
		f.pending = nil
		f.setState(StateIdle)
		return
	}

	if f.now().Sub(f.enteredAt) > f.timeouts.RelockConfirm {
		f.logger.Warn("relock confirmation not received, locking anyway")
		f.driveLocked()
		f.pending = nil
		f.setState(StateIdle)
	}
}

// sendAuthRequest publishes the authorization request and records it as
// pending. A publish failure is logged but the pending state is kept: the
// rack cannot know whether the request made it out, and the auth timeout
// resolves the question either way.
func (f *FSM) sendAuthRequest(action message.Action, userID string) {
	req := message.Request{
		Type:      message.TypeAuthRequest,
		UserID:    userID,
		BikeID:    f.bikeID,
		RackID:    f.rackID,
		Action:    action,
		Timestamp: f.now(),
	}

	payload, err := message.Encode(req)
	if err != nil {
		f.logger.Error("encode auth request failed", "error", err)
	} else if err := f.pub.Publish(message.TopicAuthRequest, message.QoSAuth, payload); err != nil {
		f.logger.Warn("publish auth request failed", "error", err)
	}

	f.pending = &pendingAuth{action: action, userID: userID, issuedAt: f.now()}
	f.reply = nil
	f.logger.Info("authorization requested", "action", string(action), "user_id", userID)
}

func (f *FSM) publishEvent(ev message.Event) {
	ev.RackID = f.rackID
	ev.Timestamp = f.now()

	payload, err := message.Encode(ev)
	if err != nil {
		f.logger.Error("encode event failed", "type", ev.Type, "error", err)
		return
	}
	if err := f.pub.Publish(message.TopicEvents, message.QoSEvents, payload); err != nil {
		f.logger.Warn("publish event failed", "type", ev.Type, "error", err)
	}
}
