package agent

// The hardware boundary. The agent drives these interfaces and nothing
// else touches the pins; real drivers live with the device build, fakes
// with the tests.

// Lock drives the electromechanical lock actuator.
type Lock interface {
	// SetLocked moves the actuator to the locked (true) or unlocked
	// (false) posture. Implementations must be idempotent: the agent
	// re-asserts posture freely.
	SetLocked(locked bool)
}

// PresenceSensor reads the distance ranger once. ok is false on a
// transient read failure; the Detector retries and averages.
type PresenceSensor interface {
	ReadDistance() (cm float64, ok bool)
}

// TagReader reports the most recent tag frame, or "" when nothing was
// scanned since the last poll. User cards and bike tags arrive on the same
// reader and are indistinguishable at this layer.
type TagReader interface {
	ReadTag() string
}

// Indicator is the two-LED status display. Purely cosmetic guidance; the
// agent never depends on it for correctness.
type Indicator interface {
	// ShowLocked lights steady red.
	ShowLocked()
	// ShowUnlocked lights steady green.
	ShowUnlocked()
	// ShowGuide blinks green to prompt the rider for the next step.
	ShowGuide()
}

// NopIndicator is an Indicator for headless deployments and tests.
type NopIndicator struct{}

func (NopIndicator) ShowLocked()   {}
func (NopIndicator) ShowUnlocked() {}
func (NopIndicator) ShowGuide()    {}
