// Package index scans the enabled and disabled package directories and
// produces a normalized per-package view: zero or one enabled copy, zero
// or one disabled CNR copy, and zero or more disabled nightly copies.
// Snapshots are computed fresh on every call since the filesystem can
// change between operations; copies with unreadable or inconsistent
// tracking metadata are reported as distinct corrupt entries rather than
// silently skipped or silently trusted.
package index
