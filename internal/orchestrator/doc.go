// Package orchestrator implements the team synchronization workflows on
// top of the durable engine.
//
// Workflow tree of one subscribed team:
//
//	TeamSync {team}                      loops forever via continue-as-new
//	├── ClearSchedule {team}-ClearSchedule   optional, once
//	└── EntitySync {team}-{entity}       one per enabled entity type
//	    └── WeekSync {team}-{entity}-{week}  one per week of the rolling window
//
// WeekSync fetches one week from the WFM source, diffs it against the
// tracked snapshot, enriches the changed records with destination ids and
// pushes them. Only the week instance that holds the snapshot lease may
// persist the outcome.
//
// DeferredAction instances are started independently to approve, decline
// or share after a durable delay.
package orchestrator
