// Package hal defines the host capability surface consumed by the harness
// and the vendor implementations selected at runtime.
//
// Capability covers boot/shutdown lifecycle hooks, the periodic runtime
// tick, a pure boundary predicate, entropy and timestamp sources used for
// vote nonces, an optional biometric presence confirmation and an alert
// signal raised by the fail-safe trigger.
//
// Vendors are named configurations of a single Device type:
//
//	stub       firmware stub, no biometric support
//	xai        zero-filled entropy, unix-second timestamps
//	anthropic  biometric quorum stub
//	nvidia     biometric quorum stub
//	openai     biometric quorum stub
//
//	dev, ok := hal.Get("xai")
//	if !ok { /* unknown vendor */ }
//	_ = dev.Boot()
//	defer dev.Shutdown(ticks)
package hal
