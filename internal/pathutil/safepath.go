// Package pathutil resolves configured file locations against a project
// directory.
//
// Calendar stores, log files and config files may be named relative to the
// project directory or absolutely. Either way the final location, after
// symlinks are followed, must stay inside the project directory.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyPath reports an empty or whitespace-only path.
	ErrEmptyPath = errors.New("path is empty")

	// ErrInvalidPath reports a path containing a NUL byte.
	ErrInvalidPath = errors.New("path contains null byte")

	// ErrOutsideBase reports a path that resolves outside the base
	// directory.
	ErrOutsideBase = errors.New("path escapes base directory")
)

// ResolveSafePath returns the symlink-free absolute location of p inside
// baseDir. Relative paths are taken relative to baseDir. Missing trailing
// components are allowed so a store file can be named before it exists.
func ResolveSafePath(baseDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsRune(p, 0) {
		return "", ErrInvalidPath
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}

	resolved, err := resolveLenient(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	base, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	base, err = filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}

	if !within(base, resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, p)
	}
	return resolved, nil
}

// EnsureParent creates the directory that will hold path.
func EnsureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}

// resolveLenient follows symlinks in the longest existing prefix of p and
// appends the components that do not exist yet.
func resolveLenient(p string) (string, error) {
	var missing []string
	current := p
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return filepath.Abs(resolved)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("failed to resolve %s: no existing parent directory", p)
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
