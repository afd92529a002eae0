package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodekeeper/nodekeeper/pkg/layout"
	"github.com/nodekeeper/nodekeeper/pkg/pack"
	"github.com/nodekeeper/nodekeeper/pkg/stores"
)

// fakeFetcher serves releases from a fixed map keyed by "id@version",
// with "id@" meaning latest.
type fakeFetcher struct {
	releases map[string]*pack.Release
}

func (f *fakeFetcher) Resolve(_ context.Context, id, version string) (*pack.Release, error) {
	if r, ok := f.releases[id+"@"+version]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, pack.NewNotFoundError(fmt.Sprintf("registry has no release %s@%s", id, version), nil).WithPackage(id)
}

func (f *fakeFetcher) Download(_ context.Context, release *pack.Release, dir string) (string, error) {
	tmp, err := os.CreateTemp(dir, "cnr-*.zip")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := tmp.WriteString(release.Version); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}

// fakeExtractor ignores the archive and writes a single node file.
type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, _, targetDir string) ([]string, error) {
	if err := os.WriteFile(filepath.Join(targetDir, "node.py"), []byte("pass\n"), 0o644); err != nil {
		return nil, err
	}
	return []string{"node.py"}, nil
}

// fakeCloner materializes a minimal checkout with VCS metadata.
type fakeCloner struct {
	mu     sync.Mutex
	pulled []string
}

func (c *fakeCloner) Clone(_ context.Context, repoURL, targetDir string) error {
	if err := os.MkdirAll(filepath.Join(targetDir, ".git"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(targetDir, "node.py"), []byte(repoURL+"\n"), 0o644)
}

func (c *fakeCloner) Pull(_ context.Context, dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pulled = append(c.pulled, dir)
	return nil
}

func (c *fakeCloner) Revision(_ context.Context, _ string) (string, error) {
	return "deadbeef", nil
}

// fakeDeps counts runs and tracks concurrent invocations.
type fakeDeps struct {
	mu          sync.Mutex
	runs        []string
	inFlight    int
	maxInFlight int
	delayPerRun time.Duration
}

func (d *fakeDeps) Run(_ context.Context, packageDir string, _ pack.DepsOptions) error {
	d.mu.Lock()
	d.runs = append(d.runs, packageDir)
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	delay := d.delayPerRun
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
	return nil
}

// memJournal is an in-memory Journal.
type memJournal struct {
	mu      sync.Mutex
	records []*stores.OperationRecord
}

func (j *memJournal) AppendOperation(_ context.Context, rec *stores.OperationRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *memJournal) ListOperations(_ context.Context, pkgName *string, limit, _ int) ([]*stores.OperationRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []*stores.OperationRecord
	for i := len(j.records) - 1; i >= 0 && len(out) < limit; i-- {
		if pkgName != nil && j.records[i].Package != *pkgName {
			continue
		}
		out = append(out, j.records[i])
	}
	return out, nil
}

type fixture struct {
	m       *Manager
	layout  layout.Layout
	cloner  *fakeCloner
	deps    *fakeDeps
	journal *memJournal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lay := layout.New(t.TempDir())

	releases := map[string]*pack.Release{
		"comfy-pack@":      {RegistryID: "comfy-pack", Version: "1.2.0", DownloadURL: "https://cdn/comfy-pack-1.2.0.zip", RepoURL: "https://github.com/acme/comfy-pack"},
		"comfy-pack@1.0.1": {RegistryID: "comfy-pack", Version: "1.0.1", DownloadURL: "https://cdn/comfy-pack-1.0.1.zip"},
		"comfy-pack@1.0.2": {RegistryID: "comfy-pack", Version: "1.0.2", DownloadURL: "https://cdn/comfy-pack-1.0.2.zip"},
		"comfy-pack@1.2.0": {RegistryID: "comfy-pack", Version: "1.2.0", DownloadURL: "https://cdn/comfy-pack-1.2.0.zip"},
	}

	cloner := &fakeCloner{}
	deps := &fakeDeps{}
	journal := &memJournal{}

	m := New(Options{
		Layout:    lay,
		Fetcher:   &fakeFetcher{releases: releases},
		Extractor: fakeExtractor{},
		Cloner:    cloner,
		Deps:      deps,
		Journal:   journal,
		Logger:    zerolog.Nop(),
	})

	return &fixture{m: m, layout: lay, cloner: cloner, deps: deps, journal: journal}
}

func (f *fixture) mustInstall(t *testing.T, version string) {
	t.Helper()
	if _, err := f.m.InstallOrUpgrade(context.Background(), "comfy-pack", version); err != nil {
		t.Fatalf("InstallOrUpgrade(%q) error = %v", version, err)
	}
}

func (f *fixture) mustInstallNightly(t *testing.T) {
	t.Helper()
	if _, err := f.m.InstallNightly(context.Background(), "comfy-pack", "https://github.com/acme/comfy-pack"); err != nil {
		t.Fatalf("InstallNightly() error = %v", err)
	}
}

func (f *fixture) summaries(t *testing.T) []pack.Summary {
	t.Helper()
	list, err := f.m.ListInstalled(context.Background())
	if err != nil {
		t.Fatalf("ListInstalled() error = %v", err)
	}
	return list
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func TestInstallFreshCNR(t *testing.T) {
	f := newFixture(t)

	summary, err := f.m.InstallOrUpgrade(context.Background(), "comfy-pack", "1.0.1")
	if err != nil {
		t.Fatalf("InstallOrUpgrade() error = %v", err)
	}
	if !summary.Enabled || summary.Kind != pack.KindCNR || summary.Version != "1.0.1" {
		t.Errorf("summary = %+v, want enabled cnr 1.0.1", summary)
	}

	if len(f.deps.runs) != 1 {
		t.Errorf("dependency step ran %d times, want 1", len(f.deps.runs))
	}
	if !dirExists(f.layout.EnabledPath("comfy-pack")) {
		t.Error("enabled directory missing")
	}
}

func TestUpgradeReplacesInPlace(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.1")
	f.mustInstall(t, "1.0.2")

	list := f.summaries(t)
	if len(list) != 1 {
		t.Fatalf("ListInstalled() = %d entries, want 1", len(list))
	}
	if list[0].Version != "1.0.2" || !list[0].Enabled {
		t.Errorf("summary = %+v, want enabled 1.0.2", list[0])
	}

	// The old release is gone, not parked.
	if dirExists(f.layout.SlotPath("comfy-pack@1_0_1")) {
		t.Error("upgrade parked the old release instead of removing it")
	}
}

func TestInstallSameVersionIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.1")
	f.mustInstall(t, "1.0.1")

	if len(f.deps.runs) != 1 {
		t.Errorf("dependency step ran %d times, want 1 (second install must be a no-op)", len(f.deps.runs))
	}
}

func TestInstallCNROverNightlyParksCheckout(t *testing.T) {
	f := newFixture(t)
	f.mustInstallNightly(t)
	f.mustInstall(t, "1.0.2")

	list := f.summaries(t)
	if len(list) != 1 || list[0].Kind != pack.KindCNR || !list[0].Enabled {
		t.Fatalf("ListInstalled() = %+v, want one enabled cnr entry", list)
	}

	if !dirExists(f.layout.SlotPath("comfy-pack@nightly")) {
		t.Error("nightly checkout was not parked in the disabled area")
	}
}

func TestInstallNightlyParksCNRAtItsVersion(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.2")
	f.mustInstallNightly(t)

	list := f.summaries(t)
	if len(list) != 1 || list[0].Kind != pack.KindNightly || !list[0].Enabled {
		t.Fatalf("ListInstalled() = %+v, want one enabled nightly entry", list)
	}

	if !dirExists(f.layout.SlotPath("comfy-pack@1_0_2")) {
		t.Error("CNR copy was not parked at its version slot")
	}
}

func TestDisableEnableRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.2")

	summary, err := f.m.Disable(context.Background(), "comfy-pack")
	if err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if summary.Enabled {
		t.Errorf("summary after disable = %+v, want disabled", summary)
	}

	// Disabled CNR copies keep their identity in the listing.
	list := f.summaries(t)
	if len(list) != 1 || list[0].Enabled || list[0].Version != "1.0.2" {
		t.Fatalf("ListInstalled() = %+v, want disabled cnr 1.0.2", list)
	}

	summary, err = f.m.Enable(context.Background(), "comfy-pack", "")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if !summary.Enabled || summary.Version != "1.0.2" {
		t.Errorf("summary after enable = %+v, want enabled 1.0.2", summary)
	}
}

func TestDisableNothingEnabled(t *testing.T) {
	f := newFixture(t)

	_, err := f.m.Disable(context.Background(), "comfy-pack")
	if !pack.IsCode(err, pack.ErrCodeNotFound) {
		t.Fatalf("Disable() error = %v, want %s", err, pack.ErrCodeNotFound)
	}
}

func TestEnableSwapsNightlyForCNR(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.2")
	f.mustInstallNightly(t)

	summary, err := f.m.Enable(context.Background(), "comfy-pack", "1.0.2")
	if err != nil {
		t.Fatalf("Enable(1.0.2) error = %v", err)
	}
	if !summary.Enabled || summary.Kind != pack.KindCNR || summary.Version != "1.0.2" {
		t.Errorf("summary = %+v, want enabled cnr 1.0.2", summary)
	}

	// The nightly went to the disabled area, the CNR slot was vacated.
	if !dirExists(f.layout.SlotPath("comfy-pack@nightly")) {
		t.Error("nightly checkout not parked")
	}
	if dirExists(f.layout.SlotPath("comfy-pack@1_0_2")) {
		t.Error("CNR slot still occupied after its copy was enabled")
	}
}

// Two nightly checkouts of the same package: one enabled, one parked at
// comfy-pack@nightly. Enabling the parked one must park the enabled
// checkout in a fresh slot, not in the directory the target occupies.
func TestEnableNightlyOverNightly(t *testing.T) {
	f := newFixture(t)
	f.mustInstallNightly(t)
	if _, err := f.m.Disable(context.Background(), "comfy-pack"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	f.mustInstallNightly(t)

	summary, err := f.m.Enable(context.Background(), "comfy-pack", "comfy-pack@nightly")
	if err != nil {
		t.Fatalf("Enable(comfy-pack@nightly) error = %v", err)
	}
	if !summary.Enabled || summary.Kind != pack.KindNightly {
		t.Errorf("summary = %+v, want enabled nightly", summary)
	}

	if !dirExists(f.layout.EnabledPath("comfy-pack")) {
		t.Error("no enabled checkout after the swap")
	}
	if !dirExists(f.layout.SlotPath("comfy-pack@nightly-2")) {
		t.Error("previously enabled checkout not parked at comfy-pack@nightly-2")
	}
	if dirExists(f.layout.SlotPath("comfy-pack@nightly")) {
		t.Error("target slot still occupied after its copy was enabled")
	}
}

func TestEnableUnknownSelector(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.2")

	_, err := f.m.Enable(context.Background(), "comfy-pack", "9.9.9")
	if !pack.IsCode(err, pack.ErrCodeNotFound) {
		t.Fatalf("Enable(9.9.9) error = %v, want %s", err, pack.ErrCodeNotFound)
	}
}

func TestUninstallRemovesEverything(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.2")
	f.mustInstallNightly(t)

	if err := f.m.Uninstall(context.Background(), "comfy-pack"); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}

	if list := f.summaries(t); len(list) != 0 {
		t.Errorf("ListInstalled() after uninstall = %+v, want empty", list)
	}
	if dirExists(f.layout.EnabledPath("comfy-pack")) || dirExists(f.layout.SlotPath("comfy-pack@1_0_2")) {
		t.Error("copies left on disk after uninstall")
	}
}

func TestUninstallUnknownPackage(t *testing.T) {
	f := newFixture(t)

	err := f.m.Uninstall(context.Background(), "comfy-pack")
	if !pack.IsCode(err, pack.ErrCodeNotFound) {
		t.Fatalf("Uninstall() error = %v, want %s", err, pack.ErrCodeNotFound)
	}
}

func TestUpdateNightlyPullsInPlace(t *testing.T) {
	f := newFixture(t)
	f.mustInstallNightly(t)

	summary, err := f.m.Update(context.Background(), "comfy-pack")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !summary.Enabled || summary.Kind != pack.KindNightly {
		t.Errorf("summary = %+v, want enabled nightly", summary)
	}
	if len(f.cloner.pulled) != 1 {
		t.Errorf("Pull() called %d times, want 1", len(f.cloner.pulled))
	}
}

func TestUpdateCNRUpgradesToLatest(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.1")

	summary, err := f.m.Update(context.Background(), "comfy-pack")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if summary.Version != "1.2.0" || !summary.Enabled {
		t.Errorf("summary = %+v, want enabled 1.2.0", summary)
	}
}

func TestHistoryRecordsOperations(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.1")
	if _, err := f.m.Disable(context.Background(), "comfy-pack"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.InstallOrUpgrade(context.Background(), "comfy-pack", "9.9.9"); err == nil {
		t.Fatal("install of unknown version succeeded")
	}

	records, err := f.m.History(context.Background(), "comfy-pack", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("History() = %d records, want 3", len(records))
	}
	if records[0].Status != stores.OperationStatusFailed || records[0].Error == nil {
		t.Errorf("newest record = %+v, want failed install with error", records[0])
	}
	if records[1].Operation != "disable" || records[1].Status != stores.OperationStatusCompleted {
		t.Errorf("middle record = %+v, want completed disable", records[1])
	}
}

func TestConcurrentInstallsSerialize(t *testing.T) {
	f := newFixture(t)
	f.deps.delayPerRun = 50 * time.Millisecond

	var wg sync.WaitGroup
	for _, version := range []string{"1.0.1", "1.0.2"} {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			if _, err := f.m.InstallOrUpgrade(context.Background(), "comfy-pack", v); err != nil {
				t.Errorf("InstallOrUpgrade(%q) error = %v", v, err)
			}
		}(version)
	}
	wg.Wait()

	if f.deps.maxInFlight != 1 {
		t.Errorf("max concurrent dependency steps = %d, want 1", f.deps.maxInFlight)
	}

	list := f.summaries(t)
	if len(list) != 1 || !list[0].Enabled {
		t.Fatalf("ListInstalled() = %+v, want exactly one enabled entry", list)
	}
	if list[0].Version != "1.0.1" && list[0].Version != "1.0.2" {
		t.Errorf("final version = %s, want one of the installed versions", list[0].Version)
	}
}

func TestNormalizesNames(t *testing.T) {
	f := newFixture(t)
	f.mustInstall(t, "1.0.1")

	summary, err := f.m.Disable(context.Background(), "  Comfy-Pack ")
	if err != nil {
		t.Fatalf("Disable() with unnormalized name error = %v", err)
	}
	if summary.Name != "comfy-pack" {
		t.Errorf("summary.Name = %q, want comfy-pack", summary.Name)
	}
}
