// Package view produces the externally visible installed-package list.
// It applies two priority rules per logical package so the listing never
// reports duplicate or ambiguous entries: an enabled copy always wins,
// and among disabled copies a CNR copy wins over nightlies.
package view

import (
	"sort"

	"github.com/nodekeeper/nodekeeper/pkg/index"
	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

// List reduces a snapshot to one Summary per logical package, sorted by
// name. Packages with no usable copies are absent. The function is pure.
func List(snap *index.Snapshot) []pack.Summary {
	summaries := make([]pack.Summary, 0, len(snap.Packages))
	for _, name := range snap.Names() {
		if s, ok := summarize(snap.Packages[name]); ok {
			summaries = append(summaries, s)
		}
	}
	return summaries
}

// summarize applies the priority rules to one entry.
func summarize(e *index.Entry) (pack.Summary, bool) {
	switch {
	case e.Enabled != nil:
		// Rule 1: an enabled copy shadows every disabled copy.
		return pack.Summary{
			Name:    e.Name,
			Kind:    e.Enabled.Kind,
			Version: e.Enabled.Version,
			Enabled: true,
		}, true
	case e.DisabledCNR != nil:
		// Rule 2: with nothing enabled, the disabled CNR copy shadows
		// disabled nightlies.
		return pack.Summary{
			Name:    e.Name,
			Kind:    pack.KindCNR,
			Version: e.DisabledCNR.Version,
			Enabled: false,
		}, true
	case len(e.DisabledNightlies) > 0:
		// Distinct nightly slots are one logical package for listing.
		return pack.Summary{
			Name:    e.Name,
			Kind:    pack.KindNightly,
			Version: pack.VersionNightly,
			Enabled: false,
		}, true
	default:
		return pack.Summary{}, false
	}
}

// Corrupt returns the corrupt copies across the snapshot, sorted by
// package name, for surfacing in diagnostics output.
func Corrupt(snap *index.Snapshot) []pack.Copy {
	var out []pack.Copy
	for _, name := range snap.Names() {
		out = append(out, snap.Packages[name].Corrupt...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out
}
