package engine

import (
	"fmt"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

// Op identifies a state-mutating operation.
type Op string

const (
	OpInstall   Op = "install"
	OpEnable    Op = "enable"
	OpDisable   Op = "disable"
	OpUninstall Op = "uninstall"
	OpUpdate    Op = "update"
)

// ActionKind identifies a primitive action in a plan.
type ActionKind string

const (
	// ActionRemove deletes a copy directory recursively.
	ActionRemove ActionKind = "remove"

	// ActionMove renames a copy directory to a new location, never
	// overwriting an existing one.
	ActionMove ActionKind = "move"

	// ActionMaterialize creates a fresh copy: download and extract a
	// CNR release archive, or clone a nightly checkout.
	ActionMaterialize ActionKind = "materialize"

	// ActionWriteTracking persists the tracking marker. Always the last
	// filesystem mutation of an install or upgrade.
	ActionWriteTracking ActionKind = "write-tracking"

	// ActionRefresh pulls the latest revision into an existing nightly
	// checkout.
	ActionRefresh ActionKind = "refresh"

	// ActionRunDeps runs the package's dependency-installation step.
	ActionRunDeps ActionKind = "run-deps"
)

// Action is one primitive step of a plan. Path is the acted-on
// directory; Dest is the move target for ActionMove.
type Action struct {
	Kind ActionKind

	Path string
	Dest string

	// Release drives ActionMaterialize for CNR copies and carries the
	// metadata ActionWriteTracking persists.
	Release *pack.Release

	// RepoURL drives ActionMaterialize for nightly copies.
	RepoURL string

	// PackageKind is the kind of the copy being materialized.
	PackageKind pack.Kind
}

// String renders the action for logs and error messages.
func (a Action) String() string {
	switch a.Kind {
	case ActionMove:
		return fmt.Sprintf("move %s -> %s", a.Path, a.Dest)
	case ActionMaterialize:
		return fmt.Sprintf("materialize %s %s", a.PackageKind, a.Path)
	default:
		return fmt.Sprintf("%s %s", a.Kind, a.Path)
	}
}

// Plan is an ordered action list for one operation on one package.
type Plan struct {
	Op      Op
	Package string
	Actions []Action
}

// Empty reports whether the plan has no actions; an empty plan is a
// successful no-op, such as enabling an already-enabled copy.
func (p *Plan) Empty() bool {
	return len(p.Actions) == 0
}
