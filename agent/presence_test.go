package agent

import (
	"testing"
	"time"
)

func newTestDetector(sensor PresenceSensor) *Detector {
	d := NewDetector(sensor, DefaultNearCM, DefaultFarCM)
	d.sleep = func(time.Duration) {}
	return d
}

func steady(cm float64, n int) []SensorReading {
	readings := make([]SensorReading, n)
	for i := range readings {
		readings[i] = SensorReading{CM: cm, OK: true}
	}
	return readings
}

func TestDetector_NearAndFar(t *testing.T) {
	sensor := NewFakeSensor(steady(2.5, 5)...)
	d := newTestDetector(sensor)

	if v := d.Sample(); v != VerdictNear {
		t.Fatalf("expected near at 2.5cm, got %v", v)
	}

	sensor.Set(steady(20, 5)...)
	if v := d.Sample(); v != VerdictFar {
		t.Fatalf("expected far at 20cm, got %v", v)
	}
}

func TestDetector_HysteresisHoldsPreviousVerdict(t *testing.T) {
	sensor := NewFakeSensor(steady(2.5, 5)...)
	d := newTestDetector(sensor)

	if v := d.Sample(); v != VerdictNear {
		t.Fatalf("expected near, got %v", v)
	}

	// 5cm sits between the near and far thresholds; the verdict must hold.
	sensor.Set(steady(5, 5)...)
	if v := d.Sample(); v != VerdictNear {
		t.Fatalf("expected near to hold inside the band, got %v", v)
	}

	sensor.Set(steady(20, 5)...)
	if v := d.Sample(); v != VerdictFar {
		t.Fatalf("expected far, got %v", v)
	}

	sensor.Set(steady(5, 5)...)
	if v := d.Sample(); v != VerdictFar {
		t.Fatalf("expected far to hold inside the band, got %v", v)
	}
}

func TestDetector_StartsUnknownInsideBand(t *testing.T) {
	sensor := NewFakeSensor(steady(5, 5)...)
	d := newTestDetector(sensor)

	if v := d.Sample(); v != VerdictUnknown {
		t.Fatalf("expected unknown with no prior verdict, got %v", v)
	}
}

func TestDetector_MeasureAveragesValidReadings(t *testing.T) {
	sensor := NewFakeSensor(
		SensorReading{CM: 4, OK: true},
		SensorReading{CM: 6, OK: true},
		SensorReading{CM: 4, OK: true},
		SensorReading{CM: 6, OK: true},
		SensorReading{CM: 5, OK: true},
	)
	d := newTestDetector(sensor)

	avg, ok := d.Measure()
	if !ok {
		t.Fatal("expected a valid measurement")
	}
	if avg != 5 {
		t.Errorf("expected average 5, got %v", avg)
	}
}

func TestDetector_RetriesTransientFailures(t *testing.T) {
	// Every sample fails once then succeeds; within the retry budget.
	var readings []SensorReading
	for i := 0; i < 5; i++ {
		readings = append(readings, SensorReading{OK: false}, SensorReading{CM: 2.5, OK: true})
	}
	d := newTestDetector(NewFakeSensor(readings...))

	if v := d.Sample(); v != VerdictNear {
		t.Fatalf("expected near despite transient failures, got %v", v)
	}
}

func TestDetector_AllReadingsFailedKeepsVerdict(t *testing.T) {
	sensor := NewFakeSensor(steady(2.5, 5)...)
	d := newTestDetector(sensor)
	d.Sample()

	sensor.Set(SensorReading{OK: false})
	if v := d.Sample(); v != VerdictNear {
		t.Fatalf("failed burst must keep the previous verdict, got %v", v)
	}
}

func TestDetector_DiscardsImplausibleReadings(t *testing.T) {
	// 1cm and 900cm are outside the plausibility window and must not
	// contribute to the average.
	sensor := NewFakeSensor(
		SensorReading{CM: 1, OK: true},
		SensorReading{CM: 2.5, OK: true},
		SensorReading{CM: 900, OK: true},
		SensorReading{CM: 2.5, OK: true},
		SensorReading{CM: 2.5, OK: true},
	)
	d := newTestDetector(sensor)

	if v := d.Sample(); v != VerdictNear {
		t.Fatalf("expected near once noise is discarded, got %v", v)
	}
}
