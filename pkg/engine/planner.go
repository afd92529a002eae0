package engine

import (
	"fmt"

	"github.com/nodekeeper/nodekeeper/pkg/index"
	"github.com/nodekeeper/nodekeeper/pkg/layout"
	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

// Planner computes action plans from index snapshots. It is pure: no
// filesystem or network access, so every transition is testable against
// an in-memory entry.
type Planner struct {
	layout layout.Layout
}

// NewPlanner creates a planner over the given layout.
func NewPlanner(l layout.Layout) *Planner {
	return &Planner{layout: l}
}

// InstallCNR plans installing or upgrading to a concrete CNR release.
//
// An enabled CNR copy is removed in place (upgrade path, no
// preservation); an enabled nightly copy is parked in a fresh disabled
// nightly slot. Any disabled CNR copy is removed before the new release
// lands, so at most one disabled CNR copy ever exists. Prior disabled
// nightlies are untouched. Tracking is written after extraction and
// before the dependency step.
func (p *Planner) InstallCNR(e *index.Entry, release *pack.Release) (*Plan, error) {
	if release == nil || release.Version == "" {
		return nil, pack.NewValidationError("install requires a resolved release", nil).
			WithPackage(e.Name).WithOperation(string(OpInstall))
	}
	if err := p.guardCorruptEnabled(e, OpInstall); err != nil {
		return nil, err
	}

	plan := &Plan{Op: OpInstall, Package: e.Name}
	taken := e.TakenSlots()

	if e.Enabled != nil {
		if e.Enabled.IsCNR() {
			plan.Actions = append(plan.Actions, Action{Kind: ActionRemove, Path: e.Enabled.Path})
		} else {
			slot := layout.NightlySlot(e.Name, taken)
			taken[slot] = true
			plan.Actions = append(plan.Actions, Action{
				Kind: ActionMove, Path: e.Enabled.Path, Dest: p.layout.SlotPath(slot),
			})
		}
	}

	if e.DisabledCNR != nil {
		plan.Actions = append(plan.Actions, Action{Kind: ActionRemove, Path: e.DisabledCNR.Path})
	}

	dest := p.layout.EnabledPath(e.Name)
	plan.Actions = append(plan.Actions,
		Action{Kind: ActionMaterialize, Path: dest, Release: release, PackageKind: pack.KindCNR},
		Action{Kind: ActionWriteTracking, Path: dest, Release: release},
		Action{Kind: ActionRunDeps, Path: dest},
	)
	return plan, nil
}

// InstallNightly plans installing a fresh nightly checkout. An enabled
// copy of either kind is disabled first, never removed; disabled CNR
// copies are not removed to make room for the nightly.
func (p *Planner) InstallNightly(e *index.Entry, repoURL string) (*Plan, error) {
	if repoURL == "" {
		return nil, pack.NewValidationError("nightly install requires a repository URL", nil).
			WithPackage(e.Name).WithOperation(string(OpInstall))
	}
	if err := p.guardCorruptEnabled(e, OpInstall); err != nil {
		return nil, err
	}

	plan := &Plan{Op: OpInstall, Package: e.Name}
	taken := e.TakenSlots()

	park, err := p.disableActions(e, taken, "")
	if err != nil {
		return nil, err
	}
	plan.Actions = append(plan.Actions, park...)

	dest := p.layout.EnabledPath(e.Name)
	plan.Actions = append(plan.Actions,
		Action{Kind: ActionMaterialize, Path: dest, RepoURL: repoURL, PackageKind: pack.KindNightly},
		Action{Kind: ActionRunDeps, Path: dest},
	)
	return plan, nil
}

// Disable plans parking the enabled copy in the disabled area. A CNR
// copy goes to the slot named after its own installed version, removing
// any colliding disabled CNR copy first; a nightly copy goes to a fresh
// disambiguated nightly slot, leaving all other nightlies alone.
func (p *Planner) Disable(e *index.Entry) (*Plan, error) {
	if e.Enabled == nil {
		return nil, pack.NewNotFoundError("nothing enabled to disable", nil).
			WithPackage(e.Name).WithOperation(string(OpDisable))
	}

	plan := &Plan{Op: OpDisable, Package: e.Name}
	taken := e.TakenSlots()

	acts, err := p.disableActions(e, taken, "")
	if err != nil {
		return nil, err
	}
	plan.Actions = acts
	return plan, nil
}

// Enable plans activating the disabled copy the selector resolves to.
// Enabling the already-enabled copy is an empty plan, a successful
// no-op. When a different copy is enabled it is disabled first; if the
// target is the disabled CNR copy, the disable step spares it and the
// slot it vacates restores the single-disabled-CNR invariant.
func (p *Planner) Enable(e *index.Entry, selector string) (*Plan, error) {
	if err := p.guardCorruptEnabled(e, OpEnable); err != nil {
		return nil, err
	}

	plan := &Plan{Op: OpEnable, Package: e.Name}

	if e.Enabled != nil && selectorMatchesEnabled(e.Enabled, selector, e) {
		return plan, nil
	}

	target, err := p.resolveSelector(e, selector)
	if err != nil {
		return nil, err
	}

	taken := e.TakenSlots()

	// A CNR target vacates its slot in this plan, so the slot is freed
	// for the collision check and spared from removal. A nightly target
	// keeps its slot reserved: it still occupies the directory when the
	// enabled copy parks, and NightlySlot must not hand it out.
	spare := ""
	if target.IsCNR() {
		spare = target.Slot
		delete(taken, target.Slot)
	}

	if e.Enabled != nil && e.Enabled.IsCNR() && target.IsCNR() {
		version := e.Enabled.Version
		if e.Enabled.Tracking != nil {
			version = e.Enabled.Tracking.Version
		}
		if layout.CNRSlot(e.Name, version) == target.Slot {
			// Both copies hold the same release, so parking the enabled
			// one would land in the directory the target still occupies.
			// The duplicate is removed instead, as an upgrade would do.
			plan.Actions = append(plan.Actions,
				Action{Kind: ActionRemove, Path: e.Enabled.Path},
				Action{Kind: ActionMove, Path: target.Path, Dest: p.layout.EnabledPath(e.Name)},
			)
			return plan, nil
		}
	}

	park, err := p.disableActions(e, taken, spare)
	if err != nil {
		return nil, err
	}
	plan.Actions = append(plan.Actions, park...)

	plan.Actions = append(plan.Actions, Action{
		Kind: ActionMove, Path: target.Path, Dest: p.layout.EnabledPath(e.Name),
	})
	return plan, nil
}

// Uninstall plans removing every copy of the package, enabled and
// disabled, corrupt ones included.
func (p *Planner) Uninstall(e *index.Entry) (*Plan, error) {
	plan := &Plan{Op: OpUninstall, Package: e.Name}

	if e.Enabled != nil {
		plan.Actions = append(plan.Actions, Action{Kind: ActionRemove, Path: e.Enabled.Path})
	}
	if e.DisabledCNR != nil {
		plan.Actions = append(plan.Actions, Action{Kind: ActionRemove, Path: e.DisabledCNR.Path})
	}
	for _, c := range e.DisabledNightlies {
		plan.Actions = append(plan.Actions, Action{Kind: ActionRemove, Path: c.Path})
	}
	for _, c := range e.Corrupt {
		plan.Actions = append(plan.Actions, Action{Kind: ActionRemove, Path: c.Path})
	}

	if plan.Empty() {
		return nil, pack.NewNotFoundError("not installed", nil).
			WithPackage(e.Name).WithOperation(string(OpUninstall))
	}
	return plan, nil
}

// RefreshNightly plans updating the enabled nightly checkout in place.
func (p *Planner) RefreshNightly(e *index.Entry) (*Plan, error) {
	if e.Enabled == nil || !e.Enabled.IsNightly() {
		return nil, pack.NewNotFoundError("no enabled nightly copy to refresh", nil).
			WithPackage(e.Name).WithOperation(string(OpUpdate))
	}

	return &Plan{Op: OpUpdate, Package: e.Name, Actions: []Action{
		{Kind: ActionRefresh, Path: e.Enabled.Path},
		{Kind: ActionRunDeps, Path: e.Enabled.Path},
	}}, nil
}

// disableActions builds the steps that vacate the enabled location.
// spareCNRSlot names a disabled CNR slot that must not be removed even
// though the enabled CNR copy is about to land in the disabled area,
// because its occupant is being enabled by the same plan.
func (p *Planner) disableActions(e *index.Entry, taken map[string]bool, spareCNRSlot string) ([]Action, error) {
	en := e.Enabled
	if en == nil {
		return nil, nil
	}

	if en.IsCNR() {
		// Slot name comes from the copy's own installed version, read
		// from its tracking marker, never from a registry-advertised
		// version.
		version := en.Version
		if en.Tracking != nil {
			version = en.Tracking.Version
		}
		slot := layout.CNRSlot(e.Name, version)

		var acts []Action
		if e.DisabledCNR != nil && e.DisabledCNR.Slot != spareCNRSlot {
			acts = append(acts, Action{Kind: ActionRemove, Path: e.DisabledCNR.Path})
			delete(taken, e.DisabledCNR.Slot)
		}
		if taken[slot] {
			return nil, pack.NewConflictError(
				fmt.Sprintf("disabled slot %s is already occupied", slot), nil).
				WithPackage(e.Name).WithOperation(string(OpDisable))
		}
		taken[slot] = true
		return append(acts, Action{Kind: ActionMove, Path: en.Path, Dest: p.layout.SlotPath(slot)}), nil
	}

	slot := layout.NightlySlot(e.Name, taken)
	taken[slot] = true
	return []Action{{Kind: ActionMove, Path: en.Path, Dest: p.layout.SlotPath(slot)}}, nil
}

// resolveSelector maps an enable selector to a disabled copy. Accepted
// selectors: "" (disabled CNR first, then the newest nightly slot),
// "cnr", "nightly", a concrete version, or a full slot name.
func (p *Planner) resolveSelector(e *index.Entry, selector string) (*pack.Copy, error) {
	switch selector {
	case "":
		if e.DisabledCNR != nil {
			return e.DisabledCNR, nil
		}
		if c := newestNightly(e); c != nil {
			return c, nil
		}
	case "cnr":
		if e.DisabledCNR != nil {
			return e.DisabledCNR, nil
		}
	case pack.VersionNightly:
		if c := newestNightly(e); c != nil {
			return c, nil
		}
	default:
		if e.DisabledCNR != nil && (e.DisabledCNR.Version == selector || e.DisabledCNR.Slot == selector) {
			return e.DisabledCNR, nil
		}
		for i := range e.DisabledNightlies {
			if e.DisabledNightlies[i].Slot == selector {
				return &e.DisabledNightlies[i], nil
			}
		}
	}

	// A selector landing on a corrupt copy gets a descriptive error
	// rather than an attempt to activate broken files.
	for _, c := range e.Corrupt {
		if c.Location == pack.LocationDisabled && (c.Slot == selector || c.Version == selector) {
			return nil, pack.NewCorruptCopyError(
				fmt.Sprintf("slot %s holds a corrupt copy and cannot be enabled", c.Slot), nil).
				WithPackage(e.Name).WithOperation(string(OpEnable))
		}
	}

	return nil, pack.NewNotFoundError(
		fmt.Sprintf("no disabled copy matches selector %q", selector), nil).
		WithPackage(e.Name).WithOperation(string(OpEnable)).WithSlots(e.SlotNames())
}

// newestNightly picks the disabled nightly with the highest slot
// ordinal. Slot numbers grow as snapshots are parked, so the highest
// ordinal is the most recent snapshot; plain lexical order would sort
// "-10" before "-2".
func newestNightly(e *index.Entry) *pack.Copy {
	var best *pack.Copy
	bestOrd := 0
	for i := range e.DisabledNightlies {
		if ord := layout.NightlyOrdinal(e.DisabledNightlies[i].Slot); best == nil || ord > bestOrd {
			best = &e.DisabledNightlies[i]
			bestOrd = ord
		}
	}
	return best
}

// guardCorruptEnabled rejects operations that need the enabled location
// while a corrupt copy occupies it.
func (p *Planner) guardCorruptEnabled(e *index.Entry, op Op) error {
	for _, c := range e.Corrupt {
		if c.Location == pack.LocationEnabled {
			return pack.NewCorruptCopyError(
				fmt.Sprintf("enabled directory %s holds a corrupt copy; uninstall it first", c.Path), nil).
				WithPackage(e.Name).WithOperation(string(op))
		}
	}
	return nil
}

// selectorMatchesEnabled reports whether the selector denotes the copy
// that is already enabled.
func selectorMatchesEnabled(en *pack.Copy, selector string, e *index.Entry) bool {
	switch selector {
	case "":
		// With nothing disabled to activate, an enabled copy satisfies
		// an unqualified enable.
		return e.DisabledCNR == nil && len(e.DisabledNightlies) == 0
	case "cnr":
		return en.IsCNR()
	case pack.VersionNightly:
		return en.IsNightly()
	default:
		return en.IsCNR() && en.Version == selector
	}
}
