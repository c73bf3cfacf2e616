package agent

import "sync"

// Fake hardware for tests and the simulator console.

// FakeLock records every posture command.
type FakeLock struct {
	mu     sync.Mutex
	locked bool
	log    []bool
}

func NewFakeLock() *FakeLock {
	return &FakeLock{locked: true}
}

func (l *FakeLock) SetLocked(locked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = locked
	l.log = append(l.log, locked)
}

// Locked reports the current posture.
func (l *FakeLock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Commands returns every SetLocked call in order.
func (l *FakeLock) Commands() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.log...)
}

// FakeSensor replays a scripted sequence of readings, then repeats the
// last one forever. A reading with ok=false models a transient failure.
type FakeSensor struct {
	mu       sync.Mutex
	readings []SensorReading
	idx      int
}

type SensorReading struct {
	CM float64
	OK bool
}

func NewFakeSensor(readings ...SensorReading) *FakeSensor {
	return &FakeSensor{readings: readings}
}

// Set replaces the script and rewinds.
func (s *FakeSensor) Set(readings ...SensorReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = readings
	s.idx = 0
}

func (s *FakeSensor) ReadDistance() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.readings) == 0 {
		return 0, false
	}
	r := s.readings[s.idx]
	if s.idx < len(s.readings)-1 {
		s.idx++
	}
	return r.CM, r.OK
}

// FakeTagReader hands out queued tag frames one per read.
type FakeTagReader struct {
	mu   sync.Mutex
	tags []string
}

func NewFakeTagReader() *FakeTagReader {
	return &FakeTagReader{}
}

// Queue appends a tag frame to be returned by a future ReadTag.
func (r *FakeTagReader) Queue(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tag)
}

func (r *FakeTagReader) ReadTag() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tags) == 0 {
		return ""
	}
	tag := r.tags[0]
	r.tags = r.tags[1:]
	return tag
}
