// Package meeting contains the session orchestrator: it owns the message bus
// and the registered experts, schedules turns through a pluggable policy with
// the leader always speaking last, detects explicit and implicit termination,
// manages human-in-the-loop suspension and produces the final synthesis.
//
// The scheduling model is single cooperative control flow: exactly one
// expert's reasoning cycle executes at a time, which makes the leader-last
// ordering a true read-after-write guarantee. The only concurrent entry
// point is InjectHumanInput, which may be called from any goroutine.
package meeting
