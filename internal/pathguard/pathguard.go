// Package pathguard confines viewer-supplied file names to the configured log
// directory.
//
// Resolve performs a lexical containment check first, so a name that escapes
// the root is rejected before anything on disk is touched and its existence
// is never revealed. Names that pass the lexical check are then re-checked
// with symlinks evaluated on both sides, which closes the gap where a link
// inside the root points somewhere outside it. When the target does not
// exist yet, its deepest existing ancestor is evaluated instead, so a missing
// file behind an escaping link is rejected the same way as an existing one.
package pathguard

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tripwire/logviewer/internal/fault"
)

var (
	// ErrNotConfigured is returned when no log directory has been set.
	ErrNotConfigured = fault.New(fault.NotConfigured, "log directory is not configured")

	// ErrInvalidPath is returned when the name resolves outside the root.
	ErrInvalidPath = fault.New(fault.InvalidPath, "invalid file path")
)

// Resolve joins name onto root and returns the absolute, cleaned path when it
// is equal to or nested under root. It returns ErrNotConfigured when root is
// blank and ErrInvalidPath when the result would leave root.
func Resolve(root, name string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", ErrNotConfigured
	}
	if strings.ContainsRune(name, 0) {
		return "", ErrInvalidPath
	}

	base, err := filepath.Abs(root)
	if err != nil {
		return "", fault.Wrap(fault.IOError, "cannot resolve log directory", err)
	}
	candidate := filepath.Join(base, name)

	if !Within(base, candidate) {
		return "", ErrInvalidPath
	}

	// A root that does not exist has nothing beneath it to follow; the
	// inspector reports the target's state later.
	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return candidate, nil
	}
	realCandidate, err := evalExisting(candidate)
	if err != nil || !Within(realBase, realCandidate) {
		return "", ErrInvalidPath
	}
	return candidate, nil
}

var errDanglingLink = errors.New("dangling symlink")

// evalExisting evaluates symlinks in the longest existing prefix of p and
// re-appends the components that do not exist. A dangling link anywhere on
// the way is an error since its target cannot be checked.
func evalExisting(p string) (string, error) {
	var missing []string
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{real}, missing...)...), nil
		}
		if fi, lerr := os.Lstat(p); lerr == nil && fi.Mode()&fs.ModeSymlink != 0 {
			return "", errDanglingLink
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		missing = append([]string{filepath.Base(p)}, missing...)
		p = parent
	}
}

// Within reports whether target is base itself or lexically nested under it.
// Both arguments must already be absolute and cleaned.
func Within(base, target string) bool {
	if base == target {
		return true
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
