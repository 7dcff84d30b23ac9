package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docverify/internal/docverify"
)

// FileSystemVault stores snapshots under a root directory:
//
//	<root>/
//	  snapshots/
//	    <instanceID>.age      (sealed record mapping)
//	    <instanceID>.version  (decimal version)
type FileSystemVault struct {
	name         string
	root         string
	snapshotsDir string
}

var _ docverify.Vault = (*FileSystemVault)(nil)

// NewFileSystemVault creates a filesystem vault rooted at root.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	snapshotsDir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(snapshotsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}
	return &FileSystemVault{name: name, root: root, snapshotsDir: snapshotsDir}, nil
}

// PutSnapshot writes the snapshot first and the version second, so a reader
// never sees a version whose data is missing.
func (v *FileSystemVault) PutSnapshot(_ context.Context, instanceID string, r io.Reader, size int64, version int64) error {
	if err := v.writeFile(v.snapshotPath(instanceID), r, size); err != nil {
		return err
	}
	data := strconv.FormatInt(version, 10)
	return v.writeFile(v.versionPath(instanceID), strings.NewReader(data), int64(len(data)))
}

func (v *FileSystemVault) GetSnapshot(_ context.Context, instanceID string, w io.Writer) error {
	f, err := os.Open(v.snapshotPath(instanceID))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: snapshot for instance %s", docverify.ErrNotFound, instanceID)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns 0 if no version file exists.
func (v *FileSystemVault) SnapshotVersion(_ context.Context, instanceID string) (int64, error) {
	data, err := os.ReadFile(v.versionPath(instanceID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the snapshots directory exists and accepts writes.
func (v *FileSystemVault) ValidateSetup(context.Context) error {
	info, err := os.Stat(v.snapshotsDir)
	if err != nil {
		return fmt.Errorf("vault directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", v.snapshotsDir)
	}

	probe, err := os.CreateTemp(v.snapshotsDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("vault directory not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (v *FileSystemVault) snapshotPath(instanceID string) string {
	return filepath.Join(v.snapshotsDir, instanceID+".age")
}

func (v *FileSystemVault) versionPath(instanceID string) string {
	return filepath.Join(v.snapshotsDir, instanceID+".version")
}

// writeFile writes r to destPath atomically (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
