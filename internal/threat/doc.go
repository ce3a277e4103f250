// Package threat simulates concurrent threat actors.
//
// A Spec describes one simulated attack: its Type (ransomware,
// privilege_escalation, prompt_injection, dos_spike, key_compromise or
// unknown), a free-form intensity label and an attack window in
// milliseconds. The Simulator starts one task per Spec on a worker pool
// sized to the threat count, so every actor sleeps on its own goroutine
// and a slow actor never delays a fast one.
//
// # Usage
//
//	sim := threat.NewSimulator()
//	run := sim.Start(ctx, "SC1", specs, threat.Hooks{
//	    OnStart: func(a threat.Actor) { /* cast a detection vote */ },
//	})
//	result := run.Wait() // join barrier
//
// # Failure Handling
//
// An actor whose task cannot be submitted is recorded as StatusSkipped
// (a zero-duration no-op wrapping ErrSpawnFailure) and never blocks the
// barrier. Cancelling ctx ends sleeping actors early as StatusAborted.
package threat
