package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/nodekeeper/nodekeeper/pkg/telemetry"
)

// The context handed back by newApp must carry the telemetry handle, so
// every manager operation invoked by a command produces a span instead
// of taking the bare-logger fallback.
func TestNewAppContextCarriesTelemetry(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "nodekeeper.yaml")
	doc := fmt.Sprintf("packages_dir: %s\ndatabase:\n  path: %s\n",
		filepath.Join(dir, "custom_nodes"), filepath.Join(dir, "nodekeeper.db"))
	if err := os.WriteFile(cfgPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	prev := configPath
	configPath = cfgPath
	t.Cleanup(func() { configPath = prev })

	app, ctx, cleanup, err := newApp(context.Background())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer cleanup()

	tel := telemetry.FromTelemetryContext(ctx)
	if tel == nil {
		t.Fatal("newApp() context carries no telemetry")
	}

	ic := telemetry.StartOperation(ctx, "package.install")
	if ic.Span == nil {
		t.Error("StartOperation() on the newApp context created no span")
	}
	ic.End(nil)

	if app.manager == nil {
		t.Error("manager not wired")
	}
}
