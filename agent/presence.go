package agent

import (
	"time"
)

// Plausibility window for a single ultrasonic reading, in centimeters.
// Readings outside it are sensor noise and are discarded before averaging.
const (
	minPlausibleCM = 2.0
	maxPlausibleCM = 400.0
)

// Default near/far thresholds for the deployed ranger: a wheel in the slot
// reads under 3cm, an empty slot reads past 11cm with the lock arm open.
const (
	DefaultNearCM = 3.0
	DefaultFarCM  = 11.0
)

// Verdict is the debounced presence decision.
type Verdict int

const (
	// VerdictUnknown means no verdict has been reached yet.
	VerdictUnknown Verdict = iota
	VerdictNear
	VerdictFar
)

func (v Verdict) String() string {
	switch v {
	case VerdictNear:
		return "near"
	case VerdictFar:
		return "far"
	}
	return "unknown"
}

// Detector turns raw distance readings into a stable near/far verdict.
// Each Sample averages several readings (retrying transient failures a
// bounded number of times) and compares the average against two distinct
// thresholds: at or under near is near, at or past far is far, and anything
// strictly between holds the previous verdict. The gap between the
// thresholds is a hysteresis band that stops the verdict from flapping
// when a wheel sits right at a boundary.
type Detector struct {
	sensor PresenceSensor

	near float64
	far  float64

	samples     int
	retries     int
	retryDelay  time.Duration
	sampleDelay time.Duration

	verdict Verdict
	sleep   func(time.Duration)
}

func NewDetector(sensor PresenceSensor, near, far float64) *Detector {
	return &Detector{
		sensor:      sensor,
		near:        near,
		far:         far,
		samples:     5,
		retries:     2,
		retryDelay:  5 * time.Millisecond,
		sampleDelay: 10 * time.Millisecond,
		verdict:     VerdictUnknown,
		sleep:       time.Sleep,
	}
}

// Measure averages the valid readings of one sampling burst. The second
// return is false when no reading was usable or the average itself falls
// outside the plausibility window.
func (d *Detector) Measure() (float64, bool) {
	var sum float64
	var valid int

	for i := 0; i < d.samples; i++ {
		v, ok := d.read()
		if ok {
			sum += v
			valid++
		}
		if i < d.samples-1 {
			d.sleep(d.sampleDelay)
		}
	}

	if valid == 0 {
		return 0, false
	}
	avg := sum / float64(valid)
	if avg < minPlausibleCM || avg > maxPlausibleCM {
		return 0, false
	}
	return avg, true
}

func (d *Detector) read() (float64, bool) {
	for attempt := 0; ; attempt++ {
		v, ok := d.sensor.ReadDistance()
		if ok && v >= minPlausibleCM && v <= maxPlausibleCM {
			return v, true
		}
		if attempt >= d.retries {
			return 0, false
		}
		d.sleep(d.retryDelay)
	}
}

// Sample takes one measurement burst and returns the updated verdict. A
// failed measurement or an average inside the hysteresis band leaves the
// previous verdict unchanged.
func (d *Detector) Sample() Verdict {
	avg, ok := d.Measure()
	if !ok {
		return d.verdict
	}

	switch {
	case avg <= d.near:
		d.verdict = VerdictNear
	case avg >= d.far:
		d.verdict = VerdictFar
	}
	return d.verdict
}

// Verdict returns the current verdict without sampling.
func (d *Detector) Verdict() Verdict {
	return d.verdict
}
