package pack

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the distribution form of a package copy.
type Kind string

const (
	// KindCNR is a stable, versioned release obtained from the package
	// registry and tracked via a marker file.
	KindCNR Kind = "cnr"

	// KindNightly is a development snapshot tracked via version-control
	// metadata. Multiple disabled nightly copies may coexist.
	KindNightly Kind = "nightly"
)

// Location identifies the activation state of a package copy.
type Location string

const (
	// LocationEnabled means the copy lives in the primary packages
	// directory and is loaded by the host application.
	LocationEnabled Location = "enabled"

	// LocationDisabled means the copy is parked in the disabled side
	// directory and is not loaded.
	LocationDisabled Location = "disabled"
)

// VersionNightly is the version tag used for nightly copies, which carry
// no semantic version.
const VersionNightly = "nightly"

// Copy is one physical installation of a package on disk.
// A copy's Kind never changes in place; switching between CNR and Nightly
// always moves or creates copies.
type Copy struct {
	// Name is the normalized logical package name.
	Name string `json:"name"`

	// Kind is the distribution form (CNR or Nightly).
	Kind Kind `json:"kind"`

	// Version is the semantic version for CNR copies, or "nightly".
	Version string `json:"version"`

	// Location is where the copy currently lives.
	Location Location `json:"location"`

	// Path is the directory holding the copy's files.
	Path string `json:"path"`

	// Slot is the directory basename under the disabled area for
	// disabled copies. Empty for enabled copies.
	Slot string `json:"slot,omitempty"`

	// Tracking is the parsed marker metadata, nil for nightly and
	// corrupt copies.
	Tracking *TrackingInfo `json:"-"`
}

// IsCNR reports whether the copy is a registry release.
func (c *Copy) IsCNR() bool { return c.Kind == KindCNR }

// IsNightly reports whether the copy is a development snapshot.
func (c *Copy) IsNightly() bool { return c.Kind == KindNightly }

// String returns a short human-readable identity for error messages.
func (c *Copy) String() string {
	return fmt.Sprintf("%s@%s (%s)", c.Name, c.Version, c.Location)
}

// TrackingInfo is the marker metadata persisted alongside a CNR copy.
// Writing it is always the last step of an install or move, so a crash
// mid-operation leaves the copy looking untracked rather than falsely
// tracked with stale data.
type TrackingInfo struct {
	// Version is the version actually materialized on disk, never a
	// registry-advertised version that was not installed.
	Version string `yaml:"version"`

	// RegistryID is the package identifier in the registry.
	RegistryID string `yaml:"registry_id,omitempty"`

	// RepoURL is the upstream repository URL, when known.
	RepoURL string `yaml:"repo_url,omitempty"`

	// InstalledAt records when the copy was materialized.
	InstalledAt time.Time `yaml:"installed_at"`

	// Files lists the relative paths extracted from the release
	// archive, used to compute garbage on in-place upgrades.
	Files []string `yaml:"files,omitempty"`
}

// Summary is the externally visible, deduplicated view of one logical
// package, as produced by the installed-package listing.
type Summary struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Version string `json:"version"`
	Enabled bool   `json:"enabled"`
}

// NormalizeName canonicalizes a package name for use as the logical
// package key. Names differing only in case or surrounding whitespace
// refer to the same package.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
