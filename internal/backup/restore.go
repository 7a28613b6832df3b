package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/LabGraphTeam/labgraph/internal/version"
	"golang.org/x/mod/semver"
)

// ErrInvalidBackup reports an archive that cannot be restored as a whole.
var ErrInvalidBackup = errors.New("invalid backup")

// Restore extracts a backup archive to the target directory.
// Entries are staged first and only moved into place once the manifest
// checks out, so a rejected archive leaves targetDir untouched. Existing
// files are kept unless force is true.
func Restore(_ context.Context, archivePath, targetDir string, force bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("decompressing archive: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)

	// Ensure target directory exists.
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	// Staging lives inside targetDir so the final moves are renames.
	staging, err := os.MkdirTemp(targetDir, ".restore-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	var files []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive entry: %w", err)
		}

		// Security: reject entries that escape the target directory.
		if err := validateTarEntry(hdr.Name, targetDir); err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Clean(hdr.Name)
		if err := extractFile(tr, filepath.Join(staging, name), hdr); err != nil { //nolint:gosec // G305: path traversal checked by validateTarEntry above
			return fmt.Errorf("extracting %s: %w", hdr.Name, err)
		}
		if !slices.Contains(files, name) {
			files = append(files, name)
		}
	}

	manifest, err := readManifest(filepath.Join(staging, ManifestName))
	if err != nil {
		return err
	}
	if err := manifest.check(files, version.Short()); err != nil {
		return err
	}

	// Check for existing files when force is disabled.
	if !force {
		for _, name := range files {
			destPath := filepath.Join(targetDir, name)
			if _, err := os.Stat(destPath); err == nil {
				return fmt.Errorf("file already exists (use -force to overwrite): %s", destPath)
			}
		}
	}

	for _, name := range files {
		destPath := filepath.Join(targetDir, name)
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(staging, name), destPath); err != nil {
			return fmt.Errorf("restoring %s: %w", name, err)
		}
	}
	return nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: archive has no %s", ErrInvalidBackup, ManifestName)
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding manifest: %v", ErrInvalidBackup, err)
	}
	return &m, nil
}

// check verifies the manifest against the extracted entries and the running
// build. Archives written by a newer release are refused, as the store
// would refuse their schema on open.
func (m *Manifest) check(files []string, running string) error {
	if m.Format != FormatVersion {
		return fmt.Errorf("%w: unsupported archive format %d (this build reads %d)",
			ErrInvalidBackup, m.Format, FormatVersion)
	}

	present := make(map[string]bool, len(files))
	for _, name := range files {
		present[name] = true
	}
	if m.Database == "" || !strings.HasSuffix(m.Database, ".db") {
		return fmt.Errorf("%w: manifest names no .db file", ErrInvalidBackup)
	}
	if !present[m.Database] {
		return fmt.Errorf("%w: archive does not contain the database %s named in the manifest",
			ErrInvalidBackup, m.Database)
	}
	for _, name := range files {
		if strings.HasSuffix(name, ".db") && name != m.Database {
			return fmt.Errorf("%w: database %s does not match manifest database %s",
				ErrInvalidBackup, name, m.Database)
		}
	}
	if m.Config != "" && !present[m.Config] {
		return fmt.Errorf("%w: archive does not contain the config %s named in the manifest",
			ErrInvalidBackup, m.Config)
	}

	if m.Version == "" {
		return fmt.Errorf("%w: manifest has no version", ErrInvalidBackup)
	}
	if m.Version == "dev" || running == "dev" {
		return nil
	}
	archived, cur := normalizeVersion(m.Version), normalizeVersion(running)
	if !semver.IsValid(archived) {
		return fmt.Errorf("%w: manifest version %q is not a semantic version", ErrInvalidBackup, m.Version)
	}
	if semver.IsValid(cur) && semver.Compare(archived, cur) > 0 {
		return fmt.Errorf("%w: archive from LabGraph %s is newer than this build (%s)",
			ErrInvalidBackup, m.Version, running)
	}
	return nil
}

func normalizeVersion(v string) string {
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}

// validateTarEntry checks that a tar entry name does not escape the target
// directory via path traversal.
func validateTarEntry(name, targetDir string) error {
	// Reject absolute paths.
	if filepath.IsAbs(name) {
		return fmt.Errorf("path traversal detected: absolute path %q", name)
	}

	// Clean the path and check for directory escape.
	cleaned := filepath.Clean(name)
	if strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("path traversal detected: %q", name)
	}

	// Double-check: resolved path must be within target.
	dest := filepath.Join(targetDir, cleaned)
	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving target directory: %w", err)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolving destination path: %w", err)
	}
	if !strings.HasPrefix(absDest, absTarget+string(filepath.Separator)) && absDest != absTarget {
		return fmt.Errorf("path traversal detected: %q resolves outside target", name)
	}

	return nil
}

// extractFile writes a single regular tar entry to disk.
func extractFile(tr *tar.Reader, destPath string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777)) //nolint:gosec // G115: mode bits safely within uint32 range
	if err != nil {
		return err
	}
	defer out.Close()

	// Limit copy size to prevent decompression bombs.
	const maxFileSize = 10 << 30 // 10 GiB
	_, err = io.Copy(out, io.LimitReader(tr, maxFileSize))
	return err
}
