// Package layout models the on-disk arrangement of package copies: the
// enabled packages directory, the disabled side directory, and the naming
// scheme for disabled slots. The roots are explicit configuration passed
// into every component, never ambient globals, so tests can run in
// parallel against temporary directories.
package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

// DisabledDirName is the side directory under the packages root that
// holds disabled copies.
const DisabledDirName = ".disabled"

// Layout describes where enabled and disabled copies live.
type Layout struct {
	// PackagesDir is the primary directory holding enabled copies, one
	// subdirectory per package.
	PackagesDir string

	// DisabledDir is the side directory holding disabled copies, one
	// subdirectory per slot.
	DisabledDir string
}

// New builds a Layout rooted at packagesDir, with the disabled area as
// its ".disabled" subdirectory.
func New(packagesDir string) Layout {
	return Layout{
		PackagesDir: packagesDir,
		DisabledDir: filepath.Join(packagesDir, DisabledDirName),
	}
}

// EnabledPath returns the directory an enabled copy of name occupies.
func (l Layout) EnabledPath(name string) string {
	return filepath.Join(l.PackagesDir, pack.NormalizeName(name))
}

// SlotPath returns the directory for a disabled slot.
func (l Layout) SlotPath(slot string) string {
	return filepath.Join(l.DisabledDir, slot)
}

// CNRSlot returns the slot name for a disabled CNR copy. The version is
// the copy's own installed version; dots are encoded as underscores so
// the slot name stays a single path element on every filesystem.
func CNRSlot(name, version string) string {
	return fmt.Sprintf("%s@%s", pack.NormalizeName(name), strings.ReplaceAll(version, ".", "_"))
}

// NightlySlot returns a nightly slot name distinct from every name in
// taken. The first slot is "name@nightly"; later ones append a numeric
// disambiguator ("name@nightly-2", "name@nightly-3", ...). Selection is
// deterministic: the lowest unused index wins, and an existing slot is
// never overwritten.
func NightlySlot(name string, taken map[string]bool) string {
	base := fmt.Sprintf("%s@%s", pack.NormalizeName(name), pack.VersionNightly)
	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		slot := fmt.Sprintf("%s-%d", base, i)
		if !taken[slot] {
			return slot
		}
	}
}

// NightlyOrdinal returns the numeric disambiguator encoded in a nightly
// slot name: 1 for "name@nightly", N for "name@nightly-N". Names that
// are not nightly slots return 0. Ordinals grow as snapshots are
// parked, so the highest ordinal marks the most recent one.
func NightlyOrdinal(slot string) int {
	_, ver, ok := strings.Cut(slot, "@")
	if !ok {
		return 0
	}
	if ver == pack.VersionNightly {
		return 1
	}
	suffix, found := strings.CutPrefix(ver, pack.VersionNightly+"-")
	if !found {
		return 0
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0
	}
	return n
}

// Slot is the parsed form of a disabled slot's directory name.
type Slot struct {
	// Name is the normalized package name encoded in the slot.
	Name string

	// Version is the decoded version: a semantic version for CNR slots,
	// "nightly" for nightly slots regardless of disambiguator.
	Version string

	// Nightly reports whether the slot holds a nightly copy according
	// to its name. The kind discriminator on disk is authoritative; the
	// slot name is a hint used for listing and selector resolution.
	Nightly bool
}

// ParseSlot decodes a disabled slot directory name. It returns false for
// names that do not follow the "name@version" scheme; such directories
// are not managed copies.
func ParseSlot(dirName string) (Slot, bool) {
	name, ver, ok := strings.Cut(dirName, "@")
	if !ok || name == "" || ver == "" {
		return Slot{}, false
	}

	s := Slot{Name: pack.NormalizeName(name)}
	if ver == pack.VersionNightly || strings.HasPrefix(ver, pack.VersionNightly+"-") {
		s.Version = pack.VersionNightly
		s.Nightly = true
		if suffix, found := strings.CutPrefix(ver, pack.VersionNightly+"-"); found {
			if _, err := strconv.Atoi(suffix); err != nil {
				return Slot{}, false
			}
		}
		return s, true
	}

	s.Version = strings.ReplaceAll(ver, "_", ".")
	return s, true
}
