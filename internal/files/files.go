// Package files removes and copies files and directory trees inside the
// allowed roots. Vault artifacts are never touched so the registry stays in
// step with the disk.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("path not found")
	ErrExists        = errors.New("destination already exists")
	ErrVaultArtifact = errors.New("path is or contains a locked artifact")
	ErrInvalidPath   = errors.New("invalid path")
)

// Resolver turns operator input into a validated absolute path
type Resolver interface {
	Resolve(path string) (string, error)
}

// Manager performs file operations confined by a Resolver
type Manager struct {
	resolver Resolver
	suffix   string
	log      *zap.Logger
}

// New creates a Manager. Paths ending in artifactSuffix are refused.
func New(resolver Resolver, artifactSuffix string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{resolver: resolver, suffix: artifactSuffix, log: log.Named("files")}
}

func (m *Manager) resolve(path string) (string, error) {
	p, err := m.resolver.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return p, nil
}

// guard stats path and refuses artifacts, including ones nested in a tree
func (m *Manager) guard(path string) (os.FileInfo, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	if m.isArtifact(path) {
		return nil, fmt.Errorf("%w: %s", ErrVaultArtifact, path)
	}
	if !info.IsDir() {
		return info, nil
	}

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != path && m.isArtifact(p) {
			return fmt.Errorf("%w: %s", ErrVaultArtifact, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (m *Manager) isArtifact(path string) bool {
	return m.suffix != "" && strings.HasSuffix(path, m.suffix)
}

// Remove deletes a file or a whole directory tree and returns the resolved path
func (m *Manager) Remove(path string) (string, error) {
	p, err := m.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := m.guard(p)
	if err != nil {
		return "", err
	}

	if info.IsDir() {
		err = os.RemoveAll(p)
	} else {
		err = os.Remove(p)
	}
	if err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", p, err)
	}

	m.log.Info("removed", zap.String("path", p), zap.Bool("dir", info.IsDir()))
	return p, nil
}

// Copy copies src to dst and returns the final destination. When dst is an
// existing directory the copy is placed inside it. Existing files are never
// overwritten; a tree is assembled in a hidden sibling and renamed into place.
func (m *Manager) Copy(ctx context.Context, src, dst string) (string, error) {
	s, err := m.resolve(src)
	if err != nil {
		return "", err
	}
	d, err := m.resolve(dst)
	if err != nil {
		return "", err
	}
	info, err := m.guard(s)
	if err != nil {
		return "", err
	}

	if st, err := os.Stat(d); err == nil && st.IsDir() {
		d = filepath.Join(d, filepath.Base(s))
		if _, err := m.resolve(d); err != nil {
			return "", err
		}
	}
	if m.isArtifact(d) {
		return "", fmt.Errorf("%w: %s", ErrVaultArtifact, d)
	}
	if _, err := os.Lstat(d); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, d)
	}
	if d == s || strings.HasPrefix(d, s+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: cannot copy %s into itself", ErrInvalidPath, s)
	}

	if info.IsDir() {
		err = copyTree(ctx, s, d)
	} else {
		err = copyFileAtomic(s, d, info.Mode().Perm())
	}
	if err != nil {
		return "", err
	}

	m.log.Info("copied", zap.String("src", s), zap.String("dst", d))
	return d, nil
}

func copyTree(ctx context.Context, src, dst string) error {
	tmp, err := os.MkdirTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".copy-*")
	if err != nil {
		return err
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(tmp, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			if rel == "." {
				return os.Chmod(tmp, info.Mode().Perm()|0700)
			}
			return os.Mkdir(target, info.Mode().Perm()|0700)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// Symlinks and special files are not followed
			return nil
		}
	})
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

func copyFileAtomic(src, dst string, perm os.FileMode) error {
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".copy")
	if err := copyFile(src, tmp, perm); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
