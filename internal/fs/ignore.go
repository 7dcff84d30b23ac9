package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-directory file listing patterns of documents that
// directory uploads skip.
const IgnoreFileName = ".docverifyignore"

// defaultIgnorePatterns are always applied: the ignore file itself and
// editor or OS droppings that are never documents.
var defaultIgnorePatterns = []string{IgnoreFileName, ".DS_Store", "*~", "*.swp"}

type ignorePattern struct {
	pattern   string
	matchPath bool // match the relative path instead of the basename
}

// IgnoreMatcher checks document paths against glob patterns. Patterns without
// '/' match the basename; patterns with '/' match the path relative to the
// upload root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings. Blank
// lines and '#' comments are skipped, as are patterns filepath.Match rejects.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if _, err := filepath.Match(raw, ""); err != nil {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   filepath.ToSlash(raw),
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether relativePath should be skipped.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		subject := basename
		if p.matchPath {
			subject = normalized
		}
		if ok, _ := filepath.Match(p.pattern, subject); ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads patterns from path, one per line. A missing file
// yields no patterns and no error.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
