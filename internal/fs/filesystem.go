// Package fs finds documents on the local filesystem for upload and
// verification.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// Finder resolves document paths and discovers documents under directories.
type Finder struct {
	ignore []string
}

// NewFinder creates a Finder that skips documents matching ignore in every
// directory it walks, in addition to the patterns of that directory's
// .docverifyignore file.
func NewFinder(ignore []string) *Finder {
	return &Finder{ignore: ignore}
}

// Resolve returns the absolute form of rawPath and whether it names a
// directory. Anything other than a regular file or a directory is rejected.
func (f *Finder) Resolve(rawPath string) (string, bool, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", false, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Lstat(absPath)
	if err != nil {
		return "", false, fmt.Errorf("stat path: %w", err)
	}

	switch mode := info.Mode(); {
	case mode.IsDir():
		return absPath, true, nil
	case mode.IsRegular():
		return absPath, false, nil
	case mode&os.ModeSymlink != 0:
		return "", false, fmt.Errorf("symlinks not supported: %s", absPath)
	default:
		return "", false, fmt.Errorf("not a regular file: %s", absPath)
	}
}

// FindDocuments returns the regular files under dir in lexical order,
// descending into subdirectories when recursive is set. Ignore patterns are
// matched against paths relative to dir.
func (f *Finder) FindDocuments(dir string, recursive bool) ([]string, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(dir, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := NewIgnoreMatcher(slices.Concat(defaultIgnorePatterns, f.ignore, fromFile))

	var paths []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && (!recursive || matcher.Match(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !matcher.Match(rel) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return paths, nil
}
