package vault

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/illarion/lockbot/internal/storage"
)

// Report lists what Reconcile changed
type Report struct {
	Adopted []string // artifacts on disk that had no entry
	Pruned  []string // entries whose artifact is gone
	Corrupt []string // artifacts with an unreadable header
}

// Reconcile brings the registry in line with the artifacts found under
// roots. Orphaned artifacts are adopted with the parameters stored in
// their header (no fingerprint, so decryption alone proves the password).
// Entries whose artifact no longer exists are pruned.
func (e *Engine) Reconcile(ctx context.Context, roots []string) (*Report, error) {
	report := &Report{}

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				if d != nil && d.IsDir() && path != root {
					e.log.Debug("skipping unreadable directory", zap.String("path", path), zap.Error(walkErr))
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() || !IsArtifact(path) {
				return nil
			}
			// Hidden temp files from interrupted operations never count as artifacts
			if strings.HasPrefix(d.Name(), ".") && strings.Contains(d.Name(), ".tmp-") {
				return nil
			}
			return e.adopt(ctx, path, report)
		})
		if err != nil {
			return report, ctxOrIO(ctx, "walk "+root, err)
		}
	}

	entries, err := e.registry.List()
	if err != nil {
		return report, ioErr("list registry", err)
	}
	for _, entry := range entries {
		if _, err := os.Lstat(entry.LockedPath); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		unlock, err := e.locks.Lock(ctx, entry.LockedPath)
		if err != nil {
			return report, err
		}
		if _, err := os.Lstat(entry.LockedPath); errors.Is(err, os.ErrNotExist) {
			if err := e.registry.Remove(entry.LockedPath); err != nil {
				unlock()
				return report, ioErr("prune entry", err)
			}
			report.Pruned = append(report.Pruned, entry.LockedPath)
		}
		unlock()
	}

	if len(report.Adopted)+len(report.Pruned)+len(report.Corrupt) > 0 {
		e.log.Info("registry reconciled",
			zap.Int("adopted", len(report.Adopted)),
			zap.Int("pruned", len(report.Pruned)),
			zap.Int("corrupt", len(report.Corrupt)))
	}
	return report, nil
}

func (e *Engine) adopt(ctx context.Context, path string, report *Report) error {
	unlock, err := e.locks.Lock(ctx, path)
	if err != nil {
		return err
	}
	defer unlock()

	entry, err := e.registry.Get(path)
	if err != nil {
		return err
	}
	if entry != nil {
		return nil
	}

	hdr, err := readHeader(path)
	if err != nil {
		e.log.Warn("unreadable artifact", zap.String("path", path), zap.Error(err))
		report.Corrupt = append(report.Corrupt, path)
		return nil
	}
	st, err := os.Stat(path)
	if err != nil {
		return err
	}

	if err := e.registry.Put(storage.Entry{
		LockedPath:   path,
		OriginalPath: OriginalPathFor(path),
		IsDir:        hdr.Dir,
		Salt:         hdr.Salt,
		Iterations:   hdr.Iterations,
		Size:         st.Size(),
		LockedAt:     st.ModTime(),
	}); err != nil {
		return err
	}
	report.Adopted = append(report.Adopted, path)
	return nil
}

func ctxOrIO(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctxErr(ctx)
	}
	return ioErr(op, err)
}
