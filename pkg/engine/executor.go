package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
	"github.com/nodekeeper/nodekeeper/pkg/tracking"
)

// Executor applies plans against the filesystem, invoking the external
// collaborators for downloads, extraction, checkouts, and the
// dependency step. Execution stops at the first failing action; the
// error identifies the step so the caller can report what state the
// package was left in.
type Executor struct {
	fetcher   pack.Fetcher
	extractor pack.Extractor
	cloner    pack.Cloner
	deps      pack.DepsRunner
	store     *tracking.Store
	logger    zerolog.Logger
}

// NewExecutor creates an executor over the given collaborators.
func NewExecutor(fetcher pack.Fetcher, extractor pack.Extractor, cloner pack.Cloner, deps pack.DepsRunner, store *tracking.Store, logger zerolog.Logger) *Executor {
	return &Executor{
		fetcher:   fetcher,
		extractor: extractor,
		cloner:    cloner,
		deps:      deps,
		store:     store,
		logger:    logger,
	}
}

// Result reports what an execution did.
type Result struct {
	// Completed counts the actions that ran to completion.
	Completed int

	// ExtractedFiles lists the files the materialize step produced,
	// recorded in the tracking marker.
	ExtractedFiles []string
}

// Execute runs the plan's actions in order. On failure the returned
// error wraps the failing step; completed steps are not rolled back —
// every transition is ordered so a mid-plan failure leaves the package
// in the per-transition safe state (never a falsely tracked copy, since
// tracking is written last).
func (x *Executor) Execute(ctx context.Context, plan *Plan, depsOpts pack.DepsOptions) (*Result, error) {
	res := &Result{}

	for _, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return res, pack.NewFetchError("operation cancelled", err).
				WithPackage(plan.Package).WithOperation(string(plan.Op))
		}

		x.logger.Debug().
			Str("package", plan.Package).
			Str("op", string(plan.Op)).
			Str("action", action.String()).
			Msg("Executing action")

		var err error
		switch action.Kind {
		case ActionRemove:
			err = x.remove(action)
		case ActionMove:
			err = x.move(action)
		case ActionMaterialize:
			res.ExtractedFiles, err = x.materialize(ctx, action)
		case ActionWriteTracking:
			err = x.writeTracking(action, res.ExtractedFiles)
		case ActionRefresh:
			err = x.refresh(ctx, action)
		case ActionRunDeps:
			err = x.runDeps(ctx, action, depsOpts)
		default:
			err = pack.NewValidationError(fmt.Sprintf("unknown action kind %q", action.Kind), nil)
		}

		if err != nil {
			var pe *pack.PackError
			if errors.As(err, &pe) {
				if pe.Package == "" {
					pe.Package = plan.Package
				}
				if pe.Operation == "" {
					pe.Operation = string(plan.Op)
				}
				return res, pe
			}
			return res, &pack.PackError{
				Class:     pack.ErrorClassPermanent,
				Message:   fmt.Sprintf("action failed: %s", action),
				Package:   plan.Package,
				Operation: string(plan.Op),
				Err:       err,
			}
		}

		res.Completed++
	}

	return res, nil
}

func (x *Executor) remove(a Action) error {
	if err := os.RemoveAll(a.Path); err != nil {
		if os.IsPermission(err) {
			return pack.NewPermissionError(fmt.Sprintf("removing %s", a.Path), err)
		}
		return fmt.Errorf("removing %s: %w", a.Path, err)
	}
	return nil
}

func (x *Executor) move(a Action) error {
	if _, err := os.Stat(a.Dest); err == nil {
		// Moves never overwrite. A plan computes fresh, unoccupied slot
		// names, so an occupied destination means the filesystem moved
		// under us.
		return pack.NewConflictError(fmt.Sprintf("move destination %s already exists", a.Dest), nil)
	}
	if err := os.MkdirAll(filepath.Dir(a.Dest), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", a.Dest, err)
	}
	if err := os.Rename(a.Path, a.Dest); err != nil {
		if os.IsPermission(err) {
			return pack.NewPermissionError(fmt.Sprintf("moving %s to %s", a.Path, a.Dest), err)
		}
		return fmt.Errorf("moving %s to %s: %w", a.Path, a.Dest, err)
	}
	return nil
}

// materialize creates a fresh copy at a.Path. A failure after the
// preceding remove/move steps leaves the package with nothing enabled;
// that is the documented recoverable state, and since no tracking was
// written the directory is at worst untracked debris that the next
// install may not reuse.
func (x *Executor) materialize(ctx context.Context, a Action) ([]string, error) {
	if _, err := os.Stat(a.Path); err == nil {
		return nil, pack.NewConflictError(fmt.Sprintf("install path %s already exists", a.Path), nil)
	}

	if a.PackageKind == pack.KindNightly {
		if err := x.cloner.Clone(ctx, a.RepoURL, a.Path); err != nil {
			x.cleanupFailed(a.Path)
			return nil, pack.NewFetchError(fmt.Sprintf("cloning %s", a.RepoURL), err)
		}
		return nil, nil
	}

	archive, err := x.fetcher.Download(ctx, a.Release, filepath.Dir(a.Path))
	if err != nil {
		return nil, err
	}
	defer os.Remove(archive)

	if err := os.MkdirAll(a.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", a.Path, err)
	}

	files, err := x.extractor.Extract(ctx, archive, a.Path)
	if err != nil {
		x.cleanupFailed(a.Path)
		return nil, err
	}
	if len(files) == 0 {
		x.cleanupFailed(a.Path)
		return nil, pack.NewExtractError(fmt.Sprintf("empty archive for %s@%s", a.Release.RegistryID, a.Release.Version), nil)
	}

	return files, nil
}

func (x *Executor) writeTracking(a Action, files []string) error {
	info := &pack.TrackingInfo{
		Version:     a.Release.Version,
		RegistryID:  a.Release.RegistryID,
		RepoURL:     a.Release.RepoURL,
		InstalledAt: time.Now().UTC(),
		Files:       files,
	}
	return x.store.Write(a.Path, info)
}

func (x *Executor) refresh(ctx context.Context, a Action) error {
	if err := x.cloner.Pull(ctx, a.Path); err != nil {
		return pack.NewFetchError(fmt.Sprintf("refreshing checkout %s", a.Path), err)
	}
	return nil
}

func (x *Executor) runDeps(ctx context.Context, a Action, opts pack.DepsOptions) error {
	if opts.Skip {
		return nil
	}
	if err := x.deps.Run(ctx, a.Path, opts); err != nil {
		var pe *pack.PackError
		if errors.As(err, &pe) {
			return pe
		}
		return pack.NewDependencyError(fmt.Sprintf("dependency step in %s", a.Path), err)
	}
	return nil
}

// cleanupFailed best-effort removes a partially materialized directory.
// The failure it follows is already being reported; debris removal must
// not mask it.
func (x *Executor) cleanupFailed(path string) {
	if err := os.RemoveAll(path); err != nil {
		x.logger.Warn().Err(err).Str("path", path).Msg("Failed to clean up partial copy")
	}
}
