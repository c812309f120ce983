package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrOutsideRoots = errors.New("path is outside the allowed roots")
	ErrEmptyPath    = errors.New("empty path not allowed")
	ErrNoRoots      = errors.New("no allowed roots configured")
	ErrRootPath     = errors.New("an allowed root itself cannot be targeted")
)

// PathValidator confines operator-supplied paths to a set of allowed root
// directories. Paths arrive as free text from chat, so every file operation
// resolves them here first.
type PathValidator struct {
	roots []string
}

// New creates a PathValidator for the given roots. Each root is made
// absolute and has its symlinks resolved so containment checks compare
// real locations.
func New(roots []string) (*PathValidator, error) {
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}

	resolved := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(expandHome(root))
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", root, err)
		}
		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
		}
		resolved = append(resolved, real)
	}

	return &PathValidator{roots: resolved}, nil
}

// Roots returns the resolved allowed roots
func (pv *PathValidator) Roots() []string {
	return append([]string(nil), pv.roots...)
}

// Resolve validates a user-provided path and returns its cleaned absolute
// form. Relative paths are taken relative to the first root. It rejects:
// - Empty paths
// - Paths that fall outside every root after cleaning
// - Paths whose existing ancestors are symlinks leading outside every root
// - A root directory itself (locking or deleting a whole root is refused)
func (pv *PathValidator) Resolve(userPath string) (string, error) {
	userPath = strings.TrimSpace(userPath)
	if userPath == "" {
		return "", ErrEmptyPath
	}

	p := expandHome(userPath)
	if !filepath.IsAbs(p) {
		p = filepath.Join(pv.roots[0], p)
	}
	p = filepath.Clean(p)

	if !pv.within(p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoots, userPath)
	}

	// Resolve symlinks on the deepest existing ancestor; the leaf may not exist yet
	real, err := resolveExisting(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", userPath, err)
	}
	if !pv.within(real) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoots, userPath)
	}

	for _, root := range pv.roots {
		if real == root {
			return "", fmt.Errorf("%w: %s", ErrRootPath, userPath)
		}
	}

	return p, nil
}

// within reports whether p is a root or lies beneath one
func (pv *PathValidator) within(p string) bool {
	for _, root := range pv.roots {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		if rel == "." || filepath.IsLocal(rel) {
			return true
		}
	}
	return false
}

// resolveExisting evaluates symlinks for the longest existing prefix of p
// and re-attaches the remaining components.
func resolveExisting(p string) (string, error) {
	var rest []string
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			real, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			for i := len(rest) - 1; i >= 0; i-- {
				real = filepath.Join(real, rest[i])
			}
			return real, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append(rest, filepath.Base(cur))
		cur = parent
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
