// Package quorum collects independent TRIGGER/HOLD votes against a lease
// deadline.
//
// A Lease opens when a scenario starts; its deadline is the start time plus
// a window (by default the longest threat duration plus DefaultGrace). A
// Monitor knows its k monitor IDs and a threshold q (default: majority,
// ⌈k/2⌉). It reports Satisfied as soon as q TRIGGER votes stamped strictly
// before the deadline have been cast, without waiting for the deadline.
// Otherwise Wait returns at the deadline with Expired set, even when no
// vote ever arrived.
//
//	lease := quorum.NewLease("SC1", start, quorum.Window(maxThreat, quorum.DefaultGrace))
//	mon := quorum.NewMonitor(lease, []string{"detector-1", "detector-2"}, 0)
//	go func() { _ = mon.Cast(quorum.Vote{MonitorID: "detector-1", Verdict: quorum.VerdictTrigger}) }()
//	res := mon.Wait(ctx)
//
// The tally is the only state written by concurrent actors and is guarded
// by a mutex. Each monitor votes at most once; votes after Close are
// rejected with ErrClosed.
package quorum
