// Package work reports the lifecycle of long-running lookahead computations.
//
// # Events
//
// A ProgressReporter is created per computation and stamps every event with
// the computation's id:
//   - LookaheadStarted: once, when the computation is set up
//   - LookaheadProgress: as work units complete, throttled to one per 100ms
//   - LookaheadCompleted: once, when every unit is done
//   - LookaheadCancelled: once, if the host abandons the computation
//
// The final progress event (current == total) is never throttled, so a host
// that only listens for progress still sees 100%.
package work
