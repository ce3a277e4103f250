package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := New()

	if m.Scenarios() != 0 {
		t.Errorf("expected 0 scenarios, got %d", m.Scenarios())
	}
	if m.QuorumRate() != 0 {
		t.Errorf("expected quorum rate 0, got %f", m.QuorumRate())
	}
	if m.AverageContainment() != 0 {
		t.Errorf("expected 0 average containment, got %v", m.AverageContainment())
	}
}

func TestMetricsRecordOutcome(t *testing.T) {
	m := New()

	m.RecordOutcome(Observation{Quorum: true, Decision: 10 * time.Millisecond, Containment: 500 * time.Millisecond})
	m.RecordOutcome(Observation{Quorum: true, Decision: 20 * time.Millisecond, Containment: 700 * time.Millisecond, Aborted: 1})
	m.RecordOutcome(Observation{Quorum: false, Decision: 30 * time.Millisecond, Containment: 600 * time.Millisecond, Skipped: 2})

	if m.Scenarios() != 3 {
		t.Errorf("expected 3 scenarios, got %d", m.Scenarios())
	}
	if m.QuorumTriggers() != 2 {
		t.Errorf("expected 2 quorum triggers, got %d", m.QuorumTriggers())
	}
	if m.LeaseTriggers() != 1 {
		t.Errorf("expected 1 lease trigger, got %d", m.LeaseTriggers())
	}
	if got := m.AverageContainment(); got != 600*time.Millisecond {
		t.Errorf("expected average containment 600ms, got %v", got)
	}
	if got := m.AverageDecision(); got != 20*time.Millisecond {
		t.Errorf("expected average decision 20ms, got %v", got)
	}
	if got := m.MaxContainment(); got != 700*time.Millisecond {
		t.Errorf("expected max containment 700ms, got %v", got)
	}

	snap := m.Snapshot()
	if snap.SkippedThreats != 2 || snap.AbortedThreats != 1 {
		t.Errorf("expected skipped=2 aborted=1, got skipped=%d aborted=%d", snap.SkippedThreats, snap.AbortedThreats)
	}
}

func TestMetricsP99Containment(t *testing.T) {
	m := New()

	for i := 1; i <= 100; i++ {
		m.RecordOutcome(Observation{Quorum: true, Containment: time.Duration(i) * time.Millisecond})
	}

	p99 := m.P99Containment()
	if p99 < 99*time.Millisecond {
		t.Errorf("expected P99 >= 99ms, got %v", p99)
	}
}

func TestMetricsMaxSamples(t *testing.T) {
	m := NewWithConfig(Config{MaxSamples: 2})

	m.RecordOutcome(Observation{Containment: time.Millisecond})
	m.RecordOutcome(Observation{Containment: 2 * time.Millisecond})
	m.RecordOutcome(Observation{Containment: 9 * time.Millisecond})

	if m.Scenarios() != 3 {
		t.Errorf("expected 3 scenarios, got %d", m.Scenarios())
	}
	if m.MaxContainment() != 9*time.Millisecond {
		t.Errorf("max should track unsampled values, got %v", m.MaxContainment())
	}
}

func TestMetricsConcurrentAccess(t *testing.T) {
	m := New()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(quorum bool) {
			defer wg.Done()
			m.RecordOutcome(Observation{Quorum: quorum, Containment: time.Millisecond})
		}(i%2 == 0)
	}
	wg.Wait()

	if m.Scenarios() != 100 {
		t.Errorf("expected 100 scenarios, got %d", m.Scenarios())
	}
	if m.QuorumRate() != 0.5 {
		t.Errorf("expected quorum rate 0.5, got %f", m.QuorumRate())
	}
}

func TestTimerMonotonic(t *testing.T) {
	timer := StartTimer()
	time.Sleep(20 * time.Millisecond)

	elapsed := timer.Stop()
	if elapsed < 20*time.Millisecond {
		t.Errorf("expected elapsed >= 20ms, got %v", elapsed)
	}

	time.Sleep(5 * time.Millisecond)
	if again := timer.Stop(); again != elapsed {
		t.Errorf("second Stop should return the first measurement, got %v want %v", again, elapsed)
	}
	if timer.Elapsed() != elapsed {
		t.Errorf("Elapsed after Stop should be fixed, got %v", timer.Elapsed())
	}
	if timer.ElapsedMs() != Milliseconds(elapsed) {
		t.Errorf("ElapsedMs mismatch: %f", timer.ElapsedMs())
	}
}

func TestMilliseconds(t *testing.T) {
	if got := Milliseconds(1500 * time.Microsecond); got != 1.5 {
		t.Errorf("expected 1.5, got %f", got)
	}
}
