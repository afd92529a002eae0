// Package engine implements the version/activation state machine for
// package copies. A pure planner maps (index snapshot, requested
// operation) to an ordered list of primitive actions — remove, move,
// materialize, write tracking, run dependency step — and an executor
// applies the actions against the filesystem with per-step error
// capture. The split keeps "what should happen" testable against
// in-memory snapshots while "how it happens" is integration-tested
// against real directories.
//
// The engine enforces the package-state invariants: at most one enabled
// copy per package, at most one disabled CNR copy per package, disabled
// nightly copies accumulating without limit, tracking metadata written
// last so a crash mid-operation leaves an untracked copy rather than a
// falsely tracked one.
package engine
