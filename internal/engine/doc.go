// Package engine is a durable workflow host backed by internal/store.
//
// Workflows are plain Go functions registered by name. They run as
// instances identified by a caller-chosen id and are re-executed from the
// top whenever an instance is loaded; each step they take (activity,
// sub-workflow, timer, Now) is numbered by a per-instance logical clock
// and recorded in history, so steps completed before a crash are answered
// from history instead of running again. See replay.go.
//
// Hosting:
//
//	h := engine.NewHost(st, engine.WithWorkerID("w1"))
//	engine.RegisterWorkflow(h, "TeamSync", teamSync)
//	engine.RegisterActivity(h, "FetchWeek", fetchWeek)
//	go h.Run(ctx)
//	h.TryStartSingleton(ctx, "TeamSync", teamID, input)
//
// Run claims pending root instances, and running roots whose worker lock
// expired, heartbeats the ones it owns and cancels any that were
// terminated elsewhere. Children run in-process under their root.
//
// Rules for workflow code:
//   - No I/O, randomness or time.Now: use activities, CreateTimer and Now.
//   - Start steps from the workflow goroutine; await futures anywhere.
//   - Return c.ContinueAsNew(input) to restart with an empty history.
//
// Logical time orders history; wall time (TimeSource) only decides when
// durable timers fire.
package engine
