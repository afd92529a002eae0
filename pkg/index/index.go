package index

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodekeeper/nodekeeper/pkg/layout"
	"github.com/nodekeeper/nodekeeper/pkg/pack"
	"github.com/nodekeeper/nodekeeper/pkg/tracking"
)

// Entry is the normalized view of one logical package's copies.
type Entry struct {
	// Name is the normalized package name.
	Name string

	// Enabled is the copy in the primary packages directory, if any.
	Enabled *pack.Copy

	// DisabledCNR is the single disabled CNR copy, if any.
	DisabledCNR *pack.Copy

	// DisabledNightlies are the disabled nightly copies, ordered by
	// slot name.
	DisabledNightlies []pack.Copy

	// Corrupt are copies whose tracking metadata is unreadable or
	// inconsistent. They are never eligible enable targets; callers
	// decide whether they block an operation.
	Corrupt []pack.Copy
}

// HasCopies reports whether the entry holds any usable copy.
func (e *Entry) HasCopies() bool {
	return e.Enabled != nil || e.DisabledCNR != nil || len(e.DisabledNightlies) > 0
}

// TakenSlots returns the disabled slot names already occupied for this
// package, including corrupt ones, so a new slot never overwrites an
// existing directory.
func (e *Entry) TakenSlots() map[string]bool {
	taken := make(map[string]bool)
	if e.DisabledCNR != nil {
		taken[e.DisabledCNR.Slot] = true
	}
	for _, c := range e.DisabledNightlies {
		taken[c.Slot] = true
	}
	for _, c := range e.Corrupt {
		if c.Slot != "" {
			taken[c.Slot] = true
		}
	}
	return taken
}

// SlotNames returns the eligible disabled slots for this package, for
// selector errors that must enumerate what is available.
func (e *Entry) SlotNames() []string {
	var slots []string
	if e.DisabledCNR != nil {
		slots = append(slots, e.DisabledCNR.Slot)
	}
	for _, c := range e.DisabledNightlies {
		slots = append(slots, c.Slot)
	}
	return slots
}

// Snapshot is a point-in-time view of every package's copies. It is a
// pure read of the directory listings and tracking markers; callers that
// span a long operation over one snapshot re-validate before commit.
type Snapshot struct {
	Packages map[string]*Entry
	TakenAt  time.Time
}

// Entry returns the entry for a normalized name. The returned entry is
// never nil; a package with no copies yields an empty entry.
func (s *Snapshot) Entry(name string) *Entry {
	name = pack.NormalizeName(name)
	if e, ok := s.Packages[name]; ok {
		return e
	}
	return &Entry{Name: name}
}

// Names returns the package names present in the snapshot, sorted.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Packages))
	for name := range s.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scanner produces snapshots from the configured layout.
type Scanner struct {
	layout layout.Layout
	store  *tracking.Store
	logger zerolog.Logger
}

// NewScanner creates a scanner over the given layout.
func NewScanner(l layout.Layout, store *tracking.Store, logger zerolog.Logger) *Scanner {
	return &Scanner{layout: l, store: store, logger: logger}
}

// Snapshot scans both directories and builds the per-package index.
// A corrupt copy never aborts the scan; it is recorded on its entry so
// operations on unrelated packages proceed.
func (s *Scanner) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{
		Packages: make(map[string]*Entry),
		TakenAt:  time.Now(),
	}

	if err := s.scanEnabled(snap); err != nil {
		return nil, err
	}
	if err := s.scanDisabled(snap); err != nil {
		return nil, err
	}

	for _, e := range snap.Packages {
		sort.Slice(e.DisabledNightlies, func(i, j int) bool {
			return e.DisabledNightlies[i].Slot < e.DisabledNightlies[j].Slot
		})
	}

	return snap, nil
}

func (s *Scanner) scanEnabled(snap *Snapshot) error {
	entries, err := os.ReadDir(s.layout.PackagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if os.IsPermission(err) {
			return pack.NewPermissionError(fmt.Sprintf("listing packages directory %s", s.layout.PackagesDir), err)
		}
		return fmt.Errorf("listing packages directory %s: %w", s.layout.PackagesDir, err)
	}

	for _, de := range entries {
		if !de.IsDir() || de.Name() == layout.DisabledDirName || strings.HasPrefix(de.Name(), ".") {
			continue
		}

		name := pack.NormalizeName(de.Name())
		path := s.layout.EnabledPath(de.Name())
		cp, corrupt := s.identify(name, path, "")
		if cp == nil && corrupt == nil {
			continue // untracked, not ours to manage
		}

		entry := s.entry(snap, name)
		switch {
		case corrupt != nil:
			corrupt.Location = pack.LocationEnabled
			entry.Corrupt = append(entry.Corrupt, *corrupt)
		case entry.Enabled != nil:
			// Two enabled directories normalizing to one name. Keep the
			// first and surface the rest as corrupt so the conflict is
			// visible instead of silently picking a winner per scan.
			s.logger.Warn().Str("package", name).Str("path", path).
				Msg("Duplicate enabled copy for package")
			entry.Corrupt = append(entry.Corrupt, *cp)
		default:
			cp.Location = pack.LocationEnabled
			entry.Enabled = cp
		}
	}

	return nil
}

func (s *Scanner) scanDisabled(snap *Snapshot) error {
	entries, err := os.ReadDir(s.layout.DisabledDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if os.IsPermission(err) {
			return pack.NewPermissionError(fmt.Sprintf("listing disabled directory %s", s.layout.DisabledDir), err)
		}
		return fmt.Errorf("listing disabled directory %s: %w", s.layout.DisabledDir, err)
	}

	for _, de := range entries {
		if !de.IsDir() {
			continue
		}

		slot, ok := layout.ParseSlot(de.Name())
		if !ok {
			s.logger.Debug().Str("dir", de.Name()).Msg("Skipping unmanaged directory in disabled area")
			continue
		}

		path := s.layout.SlotPath(de.Name())
		cp, corrupt := s.identify(slot.Name, path, de.Name())
		entry := s.entry(snap, slot.Name)

		switch {
		case corrupt != nil:
			corrupt.Location = pack.LocationDisabled
			entry.Corrupt = append(entry.Corrupt, *corrupt)
		case cp == nil:
			// A slot-named directory with neither marker nor VCS
			// metadata claims to be a copy but cannot prove it.
			entry.Corrupt = append(entry.Corrupt, pack.Copy{
				Name:     slot.Name,
				Kind:     kindFromSlot(slot),
				Version:  slot.Version,
				Location: pack.LocationDisabled,
				Path:     path,
				Slot:     de.Name(),
			})
		case cp.IsCNR():
			cp.Location = pack.LocationDisabled
			cp.Slot = de.Name()
			if entry.DisabledCNR != nil {
				s.logger.Warn().Str("package", slot.Name).Str("slot", de.Name()).
					Msg("Multiple disabled CNR copies for package")
				entry.Corrupt = append(entry.Corrupt, *cp)
				break
			}
			entry.DisabledCNR = cp
		default:
			cp.Location = pack.LocationDisabled
			cp.Slot = de.Name()
			entry.DisabledNightlies = append(entry.DisabledNightlies, *cp)
		}
	}

	return nil
}

// identify classifies the directory at path as a CNR copy, a nightly
// copy, a corrupt copy, or nothing (untracked). Exactly one of the two
// return values is non-nil, or both are nil for untracked directories.
func (s *Scanner) identify(name, path, slot string) (*pack.Copy, *pack.Copy) {
	switch s.store.KindOf(path) {
	case tracking.CNR:
		info, err := s.store.Read(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("package", name).Str("path", path).
				Msg("Corrupt tracking metadata")
			return nil, &pack.Copy{
				Name: name, Kind: pack.KindCNR, Version: "unknown",
				Path: path, Slot: slot,
			}
		}
		return &pack.Copy{
			Name: name, Kind: pack.KindCNR, Version: info.Version,
			Path: path, Tracking: info,
		}, nil
	case tracking.Nightly:
		return &pack.Copy{
			Name: name, Kind: pack.KindNightly, Version: pack.VersionNightly,
			Path: path,
		}, nil
	default:
		return nil, nil
	}
}

func (s *Scanner) entry(snap *Snapshot, name string) *Entry {
	if e, ok := snap.Packages[name]; ok {
		return e
	}
	e := &Entry{Name: name}
	snap.Packages[name] = e
	return e
}

func kindFromSlot(slot layout.Slot) pack.Kind {
	if slot.Nightly {
		return pack.KindNightly
	}
	return pack.KindCNR
}
