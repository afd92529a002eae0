package manager

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nodekeeper/nodekeeper/pkg/engine"
	"github.com/nodekeeper/nodekeeper/pkg/index"
	"github.com/nodekeeper/nodekeeper/pkg/layout"
	"github.com/nodekeeper/nodekeeper/pkg/pack"
	"github.com/nodekeeper/nodekeeper/pkg/stores"
	"github.com/nodekeeper/nodekeeper/pkg/telemetry"
	"github.com/nodekeeper/nodekeeper/pkg/tracking"
	"github.com/nodekeeper/nodekeeper/pkg/view"
)

// Journal records finished operations. A nil journal disables recording.
type Journal interface {
	AppendOperation(ctx context.Context, rec *stores.OperationRecord) error
	ListOperations(ctx context.Context, pkgName *string, limit, offset int) ([]*stores.OperationRecord, error)
}

// Options configure a Manager.
type Options struct {
	Layout    layout.Layout
	Fetcher   pack.Fetcher
	Extractor pack.Extractor
	Cloner    pack.Cloner
	Deps      pack.DepsRunner

	// Journal is optional; operations are not recorded without one.
	Journal Journal

	// Telemetry is optional; without it only the plain logger is used.
	Telemetry *telemetry.Telemetry

	// DepsOptions apply to every operation's dependency step.
	DepsOptions pack.DepsOptions

	Logger zerolog.Logger
}

// Manager coordinates package operations end to end.
type Manager struct {
	layout   layout.Layout
	scanner  *index.Scanner
	planner  *engine.Planner
	executor *engine.Executor
	locks    *engine.OperationLock
	fetcher  pack.Fetcher
	journal  Journal
	tel      *telemetry.Telemetry
	depsOpts pack.DepsOptions
	logger   zerolog.Logger
}

// New creates a Manager from its collaborators.
func New(opts Options) *Manager {
	store := tracking.NewStore()
	logger := opts.Logger.With().Str("component", "manager").Logger()

	return &Manager{
		layout:   opts.Layout,
		scanner:  index.NewScanner(opts.Layout, store, opts.Logger),
		planner:  engine.NewPlanner(opts.Layout),
		executor: engine.NewExecutor(opts.Fetcher, opts.Extractor, opts.Cloner, opts.Deps, store, opts.Logger),
		locks:    engine.NewOperationLock(),
		fetcher:  opts.Fetcher,
		journal:  opts.Journal,
		tel:      opts.Telemetry,
		depsOpts: opts.DepsOptions,
		logger:   logger,
	}
}

// InstallOrUpgrade installs the CNR release of name at version, or the
// registry's latest release when version is empty. Installing the
// version that is already enabled is a successful no-op.
func (m *Manager) InstallOrUpgrade(ctx context.Context, name, version string) (summary *pack.Summary, err error) {
	name = pack.NormalizeName(name)
	defer m.instrument(ctx, "install", name, &version, time.Now())(&err)

	release, err := m.fetcher.Resolve(ctx, name, version)
	if err != nil {
		return nil, err
	}
	version = release.Version

	releaseLock, err := m.locks.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer releaseLock()

	snap, err := m.scanner.Snapshot()
	if err != nil {
		return nil, err
	}
	e := snap.Entry(name)

	// Already enabled at this exact version: nothing to do.
	if e.Enabled != nil && e.Enabled.IsCNR() && e.Enabled.Version == release.Version {
		s := summarize(e)
		return &s, nil
	}

	plan, err := m.planner.InstallCNR(e, release)
	if err != nil {
		return nil, err
	}
	if _, err := m.executor.Execute(ctx, plan, m.depsOpts); err != nil {
		return nil, err
	}

	return m.currentSummary(name)
}

// InstallNightly installs a fresh nightly checkout of name. An empty
// repoURL is resolved through the registry's repository metadata.
func (m *Manager) InstallNightly(ctx context.Context, name, repoURL string) (summary *pack.Summary, err error) {
	name = pack.NormalizeName(name)
	version := pack.VersionNightly
	defer m.instrument(ctx, "install", name, &version, time.Now())(&err)

	if repoURL == "" {
		release, resolveErr := m.fetcher.Resolve(ctx, name, "")
		if resolveErr != nil {
			return nil, resolveErr
		}
		if release.RepoURL == "" {
			return nil, pack.NewNotFoundError("registry has no repository for nightly install", nil).
				WithPackage(name).WithOperation("install")
		}
		repoURL = release.RepoURL
	}

	releaseLock, err := m.locks.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer releaseLock()

	snap, err := m.scanner.Snapshot()
	if err != nil {
		return nil, err
	}

	plan, err := m.planner.InstallNightly(snap.Entry(name), repoURL)
	if err != nil {
		return nil, err
	}
	if _, err := m.executor.Execute(ctx, plan, m.depsOpts); err != nil {
		return nil, err
	}

	return m.currentSummary(name)
}

// Enable activates the disabled copy the selector resolves to. An empty
// selector prefers the disabled CNR copy, then the first nightly slot.
func (m *Manager) Enable(ctx context.Context, name, selector string) (summary *pack.Summary, err error) {
	name = pack.NormalizeName(name)
	defer m.instrument(ctx, "enable", name, &selector, time.Now())(&err)

	releaseLock, err := m.locks.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer releaseLock()

	snap, err := m.scanner.Snapshot()
	if err != nil {
		return nil, err
	}

	plan, err := m.planner.Enable(snap.Entry(name), selector)
	if err != nil {
		return nil, err
	}
	if _, err := m.executor.Execute(ctx, plan, m.depsOpts); err != nil {
		return nil, err
	}

	return m.currentSummary(name)
}

// Disable parks the enabled copy in the disabled area.
func (m *Manager) Disable(ctx context.Context, name string) (summary *pack.Summary, err error) {
	name = pack.NormalizeName(name)
	defer m.instrument(ctx, "disable", name, nil, time.Now())(&err)

	releaseLock, err := m.locks.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer releaseLock()

	snap, err := m.scanner.Snapshot()
	if err != nil {
		return nil, err
	}

	plan, err := m.planner.Disable(snap.Entry(name))
	if err != nil {
		return nil, err
	}
	if _, err := m.executor.Execute(ctx, plan, m.depsOpts); err != nil {
		return nil, err
	}

	return m.currentSummary(name)
}

// Uninstall removes every copy of the package, corrupt ones included.
func (m *Manager) Uninstall(ctx context.Context, name string) (err error) {
	name = pack.NormalizeName(name)
	defer m.instrument(ctx, "uninstall", name, nil, time.Now())(&err)

	releaseLock, err := m.locks.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer releaseLock()

	snap, err := m.scanner.Snapshot()
	if err != nil {
		return err
	}

	plan, err := m.planner.Uninstall(snap.Entry(name))
	if err != nil {
		return err
	}
	_, err = m.executor.Execute(ctx, plan, m.depsOpts)
	return err
}

// Update brings the enabled copy up to date: a nightly checkout is
// pulled in place, a CNR copy is upgraded to the registry's latest
// release (a no-op when already current).
func (m *Manager) Update(ctx context.Context, name string) (summary *pack.Summary, err error) {
	name = pack.NormalizeName(name)

	snap, err := m.scanner.Snapshot()
	if err != nil {
		return nil, err
	}
	e := snap.Entry(name)

	if e.Enabled == nil {
		return nil, pack.NewNotFoundError("nothing enabled to update", nil).
			WithPackage(name).WithOperation("update")
	}

	if e.Enabled.IsCNR() {
		return m.InstallOrUpgrade(ctx, name, "")
	}

	defer m.instrument(ctx, "update", name, nil, time.Now())(&err)

	releaseLock, err := m.locks.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	defer releaseLock()

	// Re-snapshot under the lock; the pre-lock read only routed the
	// operation.
	snap, err = m.scanner.Snapshot()
	if err != nil {
		return nil, err
	}

	plan, err := m.planner.RefreshNightly(snap.Entry(name))
	if err != nil {
		return nil, err
	}
	if _, err := m.executor.Execute(ctx, plan, m.depsOpts); err != nil {
		return nil, err
	}

	return m.currentSummary(name)
}

// ListInstalled returns one summary per logical package.
func (m *Manager) ListInstalled(ctx context.Context) ([]pack.Summary, error) {
	snap, err := m.scanner.Snapshot()
	if err != nil {
		return nil, err
	}

	m.recordInventory(snap)
	return view.List(snap), nil
}

// ListCorrupt returns the corrupt copies found on disk.
func (m *Manager) ListCorrupt(ctx context.Context) ([]pack.Copy, error) {
	snap, err := m.scanner.Snapshot()
	if err != nil {
		return nil, err
	}
	return view.Corrupt(snap), nil
}

// History returns journaled operations, newest first. pkgName filters by
// package when non-empty.
func (m *Manager) History(ctx context.Context, pkgName string, limit int) ([]*stores.OperationRecord, error) {
	if m.journal == nil {
		return nil, nil
	}
	var filter *string
	if pkgName != "" {
		normalized := pack.NormalizeName(pkgName)
		filter = &normalized
	}
	if limit <= 0 {
		limit = 50
	}
	return m.journal.ListOperations(ctx, filter, limit, 0)
}

// currentSummary re-scans the package after a successful operation.
func (m *Manager) currentSummary(name string) (*pack.Summary, error) {
	snap, err := m.scanner.Snapshot()
	if err != nil {
		return nil, err
	}
	s := summarize(snap.Entry(name))
	return &s, nil
}

func summarize(e *index.Entry) pack.Summary {
	for _, s := range view.List(&index.Snapshot{Packages: map[string]*index.Entry{e.Name: e}}) {
		return s
	}
	return pack.Summary{Name: e.Name}
}

// instrument wraps one operation: span, duration, journal entry and
// metrics. version may be nil when the operation has no version facet.
func (m *Manager) instrument(ctx context.Context, op, name string, version *string, start time.Time) func(*error) {
	ic := telemetry.StartOperation(ctx, "package."+op,
		telemetry.AttrPackage.String(name),
		telemetry.AttrOperation.String(op),
	)

	return func(errp *error) {
		err := *errp
		duration := time.Since(start)
		ic.End(err)

		status := stores.OperationStatusCompleted
		event := m.logger.Info()
		if err != nil {
			status = stores.OperationStatusFailed
			event = m.logger.Error().Err(err)
		}
		event.
			Str("package", name).
			Str("operation", op).
			Dur("duration", duration).
			Msg("Operation finished")

		if m.tel != nil {
			m.tel.Metrics.RecordOperation(op, string(status), duration)
			var pe *pack.PackError
			if errors.As(err, &pe) {
				m.tel.Metrics.RecordError(string(pe.Class), pe.Code)
			}
		}

		if m.journal != nil {
			rec := &stores.OperationRecord{
				ID:        uuid.NewString(),
				Operation: op,
				Package:   name,
				Status:    status,
				StartedAt: start.UTC(),
				Duration:  duration,
			}
			if version != nil {
				rec.Version = *version
			}
			if err != nil {
				msg := err.Error()
				rec.Error = &msg
			}
			if jerr := m.journal.AppendOperation(context.WithoutCancel(ctx), rec); jerr != nil {
				m.logger.Warn().Err(jerr).Msg("Failed to journal operation")
			}
		}
	}
}

// recordInventory updates the installed-package gauges from a snapshot.
func (m *Manager) recordInventory(snap *index.Snapshot) {
	if m.tel == nil {
		return
	}

	counts := map[[2]string]float64{}
	corrupt := 0.0
	for _, e := range snap.Packages {
		if e.Enabled != nil {
			counts[[2]string{string(e.Enabled.Kind), string(pack.LocationEnabled)}]++
		}
		if e.DisabledCNR != nil {
			counts[[2]string{string(pack.KindCNR), string(pack.LocationDisabled)}]++
		}
		counts[[2]string{string(pack.KindNightly), string(pack.LocationDisabled)}] += float64(len(e.DisabledNightlies))
		corrupt += float64(len(e.Corrupt))
	}

	for key, n := range counts {
		m.tel.Metrics.SetInstalledPackages(key[0], key[1], n)
	}
	m.tel.Metrics.SetCorruptCopies(corrupt)
}
