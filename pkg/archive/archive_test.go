package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "release.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtract(t *testing.T) {
	archivePath := writeZip(t, map[string]string{
		"node.py":          "print('hi')",
		"assets/icon.png":  "png",
		"assets/extra.txt": "x",
	})
	target := t.TempDir()

	files, err := NewZipExtractor().Extract(context.Background(), archivePath, target)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %v, want 3 entries", files)
	}

	content, err := os.ReadFile(filepath.Join(target, "node.py"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(content) != "print('hi')" {
		t.Errorf("content = %q", content)
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	archivePath := writeZip(t, map[string]string{
		"../escape.txt": "bad",
	})
	target := t.TempDir()

	_, err := NewZipExtractor().Extract(context.Background(), archivePath, target)
	if !pack.IsCode(err, pack.ErrCodeExtract) {
		t.Fatalf("Extract err = %v, want EXTRACT", err)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(target), "escape.txt")); !os.IsNotExist(statErr) {
		t.Error("traversal entry was written outside the target")
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewZipExtractor().Extract(context.Background(), path, t.TempDir())
	if !pack.IsCode(err, pack.ErrCodeExtract) {
		t.Fatalf("Extract err = %v, want EXTRACT", err)
	}
}

func TestExtractEmptyArchiveReturnsNoFiles(t *testing.T) {
	archivePath := writeZip(t, nil)

	files, err := NewZipExtractor().Extract(context.Background(), archivePath, t.TempDir())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %v, want none", files)
	}
}
