// Package failsafe implements the per-scenario fail-safe state machine.
//
// A Trigger starts ARMED, moves to TRIGGERED exactly once (Fire), and
// ends COMPLETED after the join barrier (Complete). The first Fire wins;
// later calls are no-ops, so quorum and lease expiry can race safely.
//
// Resolve maps a quorum.Result to a Reason. Lease expiry and
// cancellation both resolve to LEASE_EXPIRY: the fail-safe triggers when
// no quorum is reached in time.
//
// Containment runs between TRIGGERED and COMPLETED. HostContainment
// checks the threat count with the host BoundaryCheck capability and
// raises the containment alert signal.
//
// # Basic Usage
//
//	trig := failsafe.New("SC1", start)
//	trig.SetAlerter(device)
//	trig.Fire(failsafe.Resolve(result), result.ResolvedAt)
//	_ = containment.Contain(ctx, failsafe.Activation{ScenarioID: "SC1"})
//	// ... join barrier ...
//	_ = trig.Complete(time.Now())
//	outcome, _ := trig.Outcome(failsafe.Outcome{ThreatCount: 3})
package failsafe
