package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

const (
	// RequirementsFile lists the package's runtime dependencies.
	RequirementsFile = "requirements.txt"

	// InstallScript is an optional post-install hook in the package root.
	InstallScript = "install.py"
)

// Runner implements pack.DepsRunner by shelling out to an interpreter.
type Runner struct {
	// Interpreter is the executable used for both the requirements step
	// and the install script, typically a python binary.
	Interpreter string

	logger zerolog.Logger
}

// NewRunner creates a Runner using interpreter. An empty interpreter
// defaults to "python3".
func NewRunner(interpreter string, logger zerolog.Logger) *Runner {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &Runner{Interpreter: interpreter, logger: logger}
}

// Run executes the dependency step for packageDir. Packages without a
// requirements file or install script need no step and return nil.
func (r *Runner) Run(ctx context.Context, packageDir string, opts pack.DepsOptions) error {
	if opts.Skip {
		r.logger.Debug().Str("dir", packageDir).Msg("Dependency step skipped")
		return nil
	}

	reqs := filepath.Join(packageDir, RequirementsFile)
	if fileExists(reqs) {
		args := []string{"-m", "pip", "install", "-r", reqs}
		if err := r.exec(ctx, packageDir, opts.Env, args); err != nil {
			return pack.NewDependencyError(fmt.Sprintf("installing requirements for %s", filepath.Base(packageDir)), err)
		}
	}

	script := filepath.Join(packageDir, InstallScript)
	if fileExists(script) {
		if err := r.exec(ctx, packageDir, opts.Env, []string{script}); err != nil {
			return pack.NewDependencyError(fmt.Sprintf("running install script for %s", filepath.Base(packageDir)), err)
		}
	}

	return nil
}

func (r *Runner) exec(ctx context.Context, dir string, env map[string]string, args []string) error {
	cmd := exec.CommandContext(ctx, r.Interpreter, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	r.logger.Debug().
		Str("dir", dir).
		Strs("args", args).
		Msg("Running dependency step")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", r.Interpreter, args, err, out)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
