// Package archive unpacks downloaded release archives into package
// directories. Release archives are zip files; extraction rejects
// entries that would escape the target directory.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

// ZipExtractor implements pack.Extractor for zip release archives.
type ZipExtractor struct{}

// NewZipExtractor returns a zip extractor.
func NewZipExtractor() *ZipExtractor {
	return &ZipExtractor{}
}

// Extract unpacks archivePath into targetDir and returns the relative
// paths of the extracted files. Directory entries are created but not
// reported; the returned list is what the tracking marker records.
func (z *ZipExtractor) Extract(ctx context.Context, archivePath, targetDir string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, pack.NewExtractError(fmt.Sprintf("opening archive %s", archivePath), err)
	}
	defer reader.Close()

	var files []string
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, pack.NewExtractError("extraction cancelled", err)
		}

		rel, err := sanitizeEntryName(entry.Name)
		if err != nil {
			return nil, err
		}
		if rel == "" {
			continue
		}

		dest := filepath.Join(targetDir, rel)
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return nil, pack.NewExtractError(fmt.Sprintf("creating directory %s", dest), err)
			}
			continue
		}

		if err := extractFile(entry, dest); err != nil {
			return nil, err
		}
		files = append(files, filepath.ToSlash(rel))
	}

	return files, nil
}

func extractFile(entry *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return pack.NewExtractError(fmt.Sprintf("creating parent of %s", dest), err)
	}

	src, err := entry.Open()
	if err != nil {
		return pack.NewExtractError(fmt.Sprintf("reading archive entry %s", entry.Name), err)
	}
	defer src.Close()

	mode := entry.FileInfo().Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		if os.IsPermission(err) {
			return pack.NewPermissionError(fmt.Sprintf("writing %s", dest), err)
		}
		return pack.NewExtractError(fmt.Sprintf("writing %s", dest), err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return pack.NewExtractError(fmt.Sprintf("writing %s", dest), err)
	}
	return out.Close()
}

// sanitizeEntryName normalizes an archive entry name and rejects paths
// that would escape the extraction root.
func sanitizeEntryName(name string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(name))
	if rel == "." {
		return "", nil
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", pack.NewExtractError(fmt.Sprintf("archive entry %q escapes the target directory", name), nil)
	}
	return rel, nil
}
