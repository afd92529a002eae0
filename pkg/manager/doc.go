// Package manager is the front door for package operations. It owns the
// operation lifecycle: acquire the per-package lock, take a fresh index
// snapshot, plan the transition, execute it, and journal the outcome.
// Listing goes through the same snapshot machinery so the reported state
// always reflects the disk.
package manager
