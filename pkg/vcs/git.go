// Package vcs materializes and refreshes nightly checkouts by shelling
// out to git. Nightly copies are identified by their checkout metadata,
// so a clone is what creates the kind discriminator on disk.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

// Git implements pack.Cloner with the git binary.
type Git struct {
	// Binary is the git executable, "git" by default.
	Binary string
}

// NewGit returns a cloner using the git binary on PATH.
func NewGit() *Git {
	return &Git{Binary: "git"}
}

// Clone checks out repoURL into targetDir, submodules included.
func (g *Git) Clone(ctx context.Context, repoURL, targetDir string) error {
	out, err := g.run(ctx, "", "clone", "--recursive", repoURL, targetDir)
	if err != nil {
		return pack.NewFetchError(fmt.Sprintf("git clone %s failed: %s", repoURL, out), err)
	}
	return nil
}

// Pull refreshes an existing checkout in dir.
func (g *Git) Pull(ctx context.Context, dir string) error {
	out, err := g.run(ctx, dir, "pull", "--ff-only")
	if err != nil {
		return pack.NewFetchError(fmt.Sprintf("git pull in %s failed: %s", dir, out), err)
	}
	return nil
}

// Revision returns the current HEAD commit hash of the checkout in dir.
func (g *Git) Revision(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", pack.NewFetchError(fmt.Sprintf("git rev-parse in %s failed: %s", dir, out), err)
	}
	return strings.TrimSpace(out), nil
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
