// Package metrics measures containment latency and aggregates run
// statistics.
//
// Timer records a start instant with time.Now(), whose monotonic reading
// makes every later Sub/Since immune to wall-clock adjustments. The
// harness starts one Timer per scenario and stops it when the fail-safe
// reaches COMPLETED.
//
// Metrics collects per-run counters (scenarios, quorum vs lease triggers,
// skipped and aborted threats) and containment latency samples for
// average, P99 and max.
//
// # Basic Usage
//
//	timer := metrics.StartTimer()
//	// ... run the scenario ...
//	elapsed := timer.Stop()
//
//	m := metrics.New()
//	m.RecordOutcome(metrics.Observation{Quorum: true, Containment: elapsed})
//	snap := m.Snapshot()
//
// # Thread Safety
//
// Counters are atomic; the sample buffer is guarded by an RWMutex.
package metrics
