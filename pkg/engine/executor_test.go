package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nodekeeper/nodekeeper/pkg/layout"
	"github.com/nodekeeper/nodekeeper/pkg/pack"
	"github.com/nodekeeper/nodekeeper/pkg/tracking"
)

// Fakes for the external collaborators.

type fakeFetcher struct {
	downloads int
	fail      bool
}

func (f *fakeFetcher) Resolve(_ context.Context, id, version string) (*pack.Release, error) {
	return &pack.Release{RegistryID: id, Version: version}, nil
}

func (f *fakeFetcher) Download(_ context.Context, release *pack.Release, dir string) (string, error) {
	if f.fail {
		return "", pack.NewFetchError("registry unreachable", nil)
	}
	f.downloads++
	path := filepath.Join(dir, "archive-"+uuid.NewString()+".zip")
	if err := os.WriteFile(path, []byte("zip"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeExtractor struct {
	files []string
	fail  bool
}

func (f *fakeExtractor) Extract(_ context.Context, _, targetDir string) ([]string, error) {
	if f.fail {
		return nil, pack.NewExtractError("corrupt archive", nil)
	}
	for _, name := range f.files {
		if err := os.WriteFile(filepath.Join(targetDir, name), []byte("content"), 0o644); err != nil {
			return nil, err
		}
	}
	return f.files, nil
}

type fakeCloner struct {
	cloned []string
	pulled []string
}

func (f *fakeCloner) Clone(_ context.Context, _, targetDir string) error {
	if err := os.MkdirAll(filepath.Join(targetDir, tracking.VCSDir), 0o755); err != nil {
		return err
	}
	f.cloned = append(f.cloned, targetDir)
	return nil
}

func (f *fakeCloner) Pull(_ context.Context, dir string) error {
	f.pulled = append(f.pulled, dir)
	return nil
}

func (f *fakeCloner) Revision(_ context.Context, _ string) (string, error) {
	return "deadbeef", nil
}

type fakeDeps struct {
	runs []string
	fail bool
}

func (f *fakeDeps) Run(_ context.Context, packageDir string, _ pack.DepsOptions) error {
	if f.fail {
		return pack.NewDependencyError("pip failed", nil)
	}
	f.runs = append(f.runs, packageDir)
	return nil
}

type executorFixture struct {
	executor  *Executor
	layout    layout.Layout
	fetcher   *fakeFetcher
	extractor *fakeExtractor
	cloner    *fakeCloner
	deps      *fakeDeps
	store     *tracking.Store
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	l := layout.New(t.TempDir())
	if err := os.MkdirAll(l.DisabledDir, 0o755); err != nil {
		t.Fatal(err)
	}

	f := &executorFixture{
		layout:    l,
		fetcher:   &fakeFetcher{},
		extractor: &fakeExtractor{files: []string{"node.py"}},
		cloner:    &fakeCloner{},
		deps:      &fakeDeps{},
		store:     tracking.NewStore(),
	}
	f.executor = NewExecutor(f.fetcher, f.extractor, f.cloner, f.deps, f.store, zerolog.Nop())
	return f
}

func TestExecuteInstallCNRPlan(t *testing.T) {
	f := newExecutorFixture(t)
	dest := f.layout.EnabledPath("pack")
	rel := &pack.Release{RegistryID: "pack", Version: "1.0.2"}

	plan := &Plan{Op: OpInstall, Package: "pack", Actions: []Action{
		{Kind: ActionMaterialize, Path: dest, Release: rel, PackageKind: pack.KindCNR},
		{Kind: ActionWriteTracking, Path: dest, Release: rel},
		{Kind: ActionRunDeps, Path: dest},
	}}

	res, err := f.executor.Execute(context.Background(), plan, pack.DepsOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Completed != 3 {
		t.Errorf("completed = %d, want 3", res.Completed)
	}

	info, err := f.store.Read(dest)
	if err != nil {
		t.Fatalf("tracking marker missing: %v", err)
	}
	if info.Version != "1.0.2" || len(info.Files) != 1 {
		t.Errorf("tracking = %+v", info)
	}
	if len(f.deps.runs) != 1 {
		t.Errorf("deps runs = %v", f.deps.runs)
	}

	// The downloaded archive is removed after extraction.
	entries, _ := os.ReadDir(f.layout.PackagesDir)
	for _, de := range entries {
		if !de.IsDir() {
			t.Errorf("leftover file %s in packages dir", de.Name())
		}
	}
}

func TestExecuteExtractFailureLeavesNoTrackedCopy(t *testing.T) {
	f := newExecutorFixture(t)
	f.extractor.fail = true
	dest := f.layout.EnabledPath("pack")
	rel := &pack.Release{RegistryID: "pack", Version: "1.0.2"}

	plan := &Plan{Op: OpInstall, Package: "pack", Actions: []Action{
		{Kind: ActionMaterialize, Path: dest, Release: rel, PackageKind: pack.KindCNR},
		{Kind: ActionWriteTracking, Path: dest, Release: rel},
	}}

	res, err := f.executor.Execute(context.Background(), plan, pack.DepsOptions{})
	if !pack.IsCode(err, pack.ErrCodeExtract) {
		t.Fatalf("Execute err = %v, want EXTRACT", err)
	}
	if res.Completed != 0 {
		t.Errorf("completed = %d, want 0", res.Completed)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Errorf("partial copy left at %s", dest)
	}
}

func TestExecuteEmptyArchiveFails(t *testing.T) {
	f := newExecutorFixture(t)
	f.extractor.files = nil
	dest := f.layout.EnabledPath("pack")

	plan := &Plan{Op: OpInstall, Package: "pack", Actions: []Action{
		{Kind: ActionMaterialize, Path: dest, Release: &pack.Release{RegistryID: "pack", Version: "1.0.0"}, PackageKind: pack.KindCNR},
	}}

	_, err := f.executor.Execute(context.Background(), plan, pack.DepsOptions{})
	if !pack.IsCode(err, pack.ErrCodeExtract) {
		t.Fatalf("Execute err = %v, want EXTRACT", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Errorf("empty archive left a directory at %s", dest)
	}
}

func TestExecuteMaterializeNightly(t *testing.T) {
	f := newExecutorFixture(t)
	dest := f.layout.EnabledPath("pack")

	plan := &Plan{Op: OpInstall, Package: "pack", Actions: []Action{
		{Kind: ActionMaterialize, Path: dest, RepoURL: "https://example.com/pack.git", PackageKind: pack.KindNightly},
	}}

	if _, err := f.executor.Execute(context.Background(), plan, pack.DepsOptions{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.store.KindOf(dest) != tracking.Nightly {
		t.Errorf("materialized copy is not a nightly checkout")
	}
}

func TestExecuteMoveRefusesOverwrite(t *testing.T) {
	f := newExecutorFixture(t)

	src := f.layout.EnabledPath("pack")
	dst := f.layout.SlotPath("pack@1_0_0")
	for _, dir := range []string{src, dst} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	plan := &Plan{Op: OpDisable, Package: "pack", Actions: []Action{
		{Kind: ActionMove, Path: src, Dest: dst},
	}}

	_, err := f.executor.Execute(context.Background(), plan, pack.DepsOptions{})
	if !pack.IsCode(err, pack.ErrCodeConflict) {
		t.Fatalf("Execute err = %v, want CONFLICT", err)
	}
	if _, statErr := os.Stat(src); statErr != nil {
		t.Errorf("source was moved despite the conflict: %v", statErr)
	}
}

func TestExecuteSkipDeps(t *testing.T) {
	f := newExecutorFixture(t)
	dir := f.layout.EnabledPath("pack")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	plan := &Plan{Op: OpInstall, Package: "pack", Actions: []Action{
		{Kind: ActionRunDeps, Path: dir},
	}}

	if _, err := f.executor.Execute(context.Background(), plan, pack.DepsOptions{Skip: true}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(f.deps.runs) != 0 {
		t.Errorf("deps ran despite Skip")
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	f := newExecutorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := &Plan{Op: OpInstall, Package: "pack", Actions: []Action{
		{Kind: ActionRemove, Path: f.layout.EnabledPath("pack")},
	}}

	res, err := f.executor.Execute(ctx, plan, pack.DepsOptions{})
	if err == nil {
		t.Fatal("Execute succeeded with cancelled context")
	}
	if res.Completed != 0 {
		t.Errorf("completed = %d", res.Completed)
	}
}

func TestExecuteErrorCarriesPackageContext(t *testing.T) {
	f := newExecutorFixture(t)
	f.fetcher.fail = true

	plan := &Plan{Op: OpInstall, Package: "pack", Actions: []Action{
		{Kind: ActionMaterialize, Path: f.layout.EnabledPath("pack"), Release: &pack.Release{RegistryID: "pack", Version: "1.0.0"}, PackageKind: pack.KindCNR},
	}}

	_, err := f.executor.Execute(context.Background(), plan, pack.DepsOptions{})
	var pe *pack.PackError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PackError", err)
	}
	if pe.Package != "pack" || pe.Operation != string(OpInstall) {
		t.Errorf("error context = package %q operation %q", pe.Package, pe.Operation)
	}
}
