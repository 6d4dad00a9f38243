// Package delta computes and applies the minimal change-set between the
// tracked snapshot of a week and the state just fetched from the WFM source.
//
// # Compute
//
// Compute is a pure function. Records are matched by Key(); keys only in
// "to" are Created, keys only in "from" are Deleted, and shared keys are
// Updated when HasChanges reports a difference after CarryIDs has copied
// the destination ids forward. Output order follows input order, so the
// result is deterministic for deterministic input.
//
// Duplicate keys inside one collection are tolerated (last write wins):
// upstream data defects must not abort a sync cycle.
//
// # Apply
//
// Apply pushes Created, Updated and Deleted concurrently through a Pusher
// and reclassifies each item:
//
//	push ok                 -> stays in its bucket (Created/Updated/Deleted)
//	*ValidationError        -> Skipped (permanent; remembered by the snapshot)
//	any other error         -> Failed  (re-offered by the next cycle's delta)
//
// One failing item never prevents the others from being attempted.
package delta
