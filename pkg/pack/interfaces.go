package pack

import "context"

// Release describes a resolved registry release for a package.
type Release struct {
	// RegistryID is the canonical package identifier in the registry.
	RegistryID string

	// Version is the concrete version the registry resolved to.
	Version string

	// DownloadURL points at the release archive.
	DownloadURL string

	// RepoURL is the upstream repository, when the registry knows it.
	RepoURL string
}

// Fetcher resolves package identifiers against the registry and downloads
// release archives. Implementations must honor context cancellation.
type Fetcher interface {
	// Resolve maps (id, version) to a concrete release. Version may be
	// empty, meaning the registry's latest release.
	Resolve(ctx context.Context, id, version string) (*Release, error)

	// Download retrieves the release archive to a local file and returns
	// its path. The file is created under dir with an unpredictable name;
	// the caller removes it when done.
	Download(ctx context.Context, release *Release, dir string) (string, error)
}

// Extractor unpacks a downloaded archive into a target directory and
// returns the relative paths of the extracted files.
type Extractor interface {
	Extract(ctx context.Context, archivePath, targetDir string) ([]string, error)
}

// Cloner materializes and refreshes nightly copies from version control.
type Cloner interface {
	// Clone checks out repoURL into targetDir.
	Clone(ctx context.Context, repoURL, targetDir string) error

	// Pull refreshes an existing checkout in dir.
	Pull(ctx context.Context, dir string) error

	// Revision returns the current checkout revision of dir.
	Revision(ctx context.Context, dir string) (string, error)
}

// DepsRunner executes a package's declared dependency-installation step
// after its files have been materialized. It is independent of the
// version state machine.
type DepsRunner interface {
	Run(ctx context.Context, packageDir string, opts DepsOptions) error
}

// DepsOptions control the dependency-installation step.
type DepsOptions struct {
	// Skip disables the dependency step entirely.
	Skip bool

	// Env holds extra environment variables for the step.
	Env map[string]string
}
