// Package tracking reads and writes the per-copy marker file that records
// install metadata for CNR copies. The marker file is the kind
// discriminator: a copy with a marker is CNR, a copy with a version
// control directory is Nightly, and a copy with neither is untracked and
// excluded from version management entirely.
package tracking

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

const (
	// MarkerFile is the tracking marker written into every CNR copy.
	MarkerFile = ".tracking.yaml"

	// VCSDir is the version-control directory that tags a nightly copy.
	VCSDir = ".git"
)

// ErrNotTracked is returned by Read for a path with no marker file.
var ErrNotTracked = errors.New("tracking: path is not tracked")

// Kind is the discriminated kind of a copy directory.
type Kind int

const (
	// Untracked means neither a marker file nor a VCS directory is
	// present. Untracked directories are invisible to the manager.
	Untracked Kind = iota

	// CNR means the tracking marker file is present.
	CNR

	// Nightly means the version-control directory is present.
	Nightly
)

// Store reads and writes tracking markers. The zero value is usable.
type Store struct{}

// NewStore returns a marker store.
func NewStore() *Store {
	return &Store{}
}

// KindOf discriminates the kind of the copy at path. The marker file
// wins over the VCS directory when both are present, matching the rule
// that a copy's kind is fixed at install time.
func (s *Store) KindOf(path string) Kind {
	if fileExists(filepath.Join(path, MarkerFile)) {
		return CNR
	}
	if dirExists(filepath.Join(path, VCSDir)) {
		return Nightly
	}
	return Untracked
}

// Read parses the tracking marker at path. It returns ErrNotTracked when
// no marker exists, and a corrupt-copy error when the marker exists but
// cannot be parsed or names no version.
func (s *Store) Read(path string) (*pack.TrackingInfo, error) {
	raw, err := os.ReadFile(filepath.Join(path, MarkerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotTracked
		}
		if os.IsPermission(err) {
			return nil, pack.NewPermissionError(fmt.Sprintf("reading tracking marker in %s", path), err)
		}
		return nil, pack.NewCorruptCopyError(fmt.Sprintf("unreadable tracking marker in %s", path), err)
	}

	var info pack.TrackingInfo
	if err := yaml.Unmarshal(raw, &info); err != nil {
		return nil, pack.NewCorruptCopyError(fmt.Sprintf("malformed tracking marker in %s", path), err)
	}
	if info.Version == "" {
		return nil, pack.NewCorruptCopyError(fmt.Sprintf("tracking marker in %s has no version", path), nil)
	}

	return &info, nil
}

// Write persists the tracking marker into path. Callers invoke this as
// the last step of an install or move so a crash beforehand leaves the
// copy untracked rather than tracked with stale data.
func (s *Store) Write(path string, info *pack.TrackingInfo) error {
	raw, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding tracking marker: %w", err)
	}

	marker := filepath.Join(path, MarkerFile)
	if err := os.WriteFile(marker, raw, 0o644); err != nil {
		if os.IsPermission(err) {
			return pack.NewPermissionError(fmt.Sprintf("writing tracking marker %s", marker), err)
		}
		return fmt.Errorf("writing tracking marker %s: %w", marker, err)
	}
	return nil
}

// Remove deletes the tracking marker at path, if present.
func (s *Store) Remove(path string) error {
	err := os.Remove(filepath.Join(path, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing tracking marker in %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
