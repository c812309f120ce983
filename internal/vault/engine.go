package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/illarion/lockbot/internal/crypto"
	"github.com/illarion/lockbot/internal/storage"
)

const (
	DefaultTimeout = 5 * time.Minute
	FilePermSecure = 0600 // File: owner rw only
)

// Registry is the subset of the registry store the engine needs
type Registry interface {
	Put(entry storage.Entry) error
	Get(lockedPath string) (*storage.Entry, error)
	Remove(lockedPath string) error
	List() ([]storage.Entry, error)
}

// Resolver turns operator input into a validated absolute path
type Resolver interface {
	Resolve(path string) (string, error)
}

// Options configures an Engine
type Options struct {
	Iterations int           // PBKDF2 iterations for new artifacts; 0 selects the default
	Timeout    time.Duration // upper bound of one lock/unlock; 0 selects DefaultTimeout
	Resolver   Resolver      // optional path confinement
	Logger     *zap.Logger
}

// Engine locks and unlocks files and directories under password-derived keys
type Engine struct {
	registry   Registry
	resolver   Resolver
	locks      *pathLocks
	iterations int
	timeout    time.Duration
	log        *zap.Logger
}

// New creates an Engine backed by registry
func New(registry Registry, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		registry:   registry,
		resolver:   opts.Resolver,
		locks:      newPathLocks(),
		iterations: opts.Iterations,
		timeout:    opts.Timeout,
		log:        opts.Logger.Named("vault"),
	}
}

func (e *Engine) resolve(path string) (string, error) {
	if e.resolver != nil {
		p, err := e.resolver.Resolve(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		return p, nil
	}
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return p, nil
}

// Lock encrypts the file or directory at path into path + Suffix and
// registers it. The original is removed only after the artifact has been
// written, synced, re-read and verified, and the entry has been recorded.
// On any failure the original is left untouched and no entry remains.
func (e *Engine) Lock(ctx context.Context, path string, password []byte) (*storage.Entry, error) {
	if len(password) == 0 {
		return nil, ErrPasswordRequired
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	original, err := e.resolve(path)
	if err != nil {
		return nil, err
	}
	if IsArtifact(original) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLocked, original)
	}
	lockedPath := LockedPathFor(original)

	unlock, err := e.locks.Lock(ctx, lockedPath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	info, err := os.Lstat(original)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, original)
	}
	if err != nil {
		return nil, ioErr("stat", err)
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, original)
	}
	if _, err := os.Lstat(lockedPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLocked, lockedPath)
	}

	plaintext, err := e.readPlaintext(ctx, original, info)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(plaintext)

	kdf, err := crypto.NewKDF(e.iterations)
	if err != nil {
		return nil, err
	}
	key, err := kdf.DeriveKeyContext(ctx, password)
	if err != nil {
		return nil, ctxErr(ctx)
	}
	defer crypto.ClearBytes(key)

	hdr := header{Dir: info.IsDir(), Iterations: kdf.Iterations, Salt: kdf.Salt}
	artifact, err := seal(key, hdr, plaintext)
	if err != nil {
		return nil, ioErr("encrypt", err)
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	tmp, err := writeTemp(filepath.Dir(lockedPath), filepath.Base(lockedPath), artifact, FilePermSecure)
	if err != nil {
		return nil, ioErr("write artifact", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	if err := verifyArtifact(tmp, key, plaintext); err != nil {
		return nil, err
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	if err := os.Rename(tmp, lockedPath); err != nil {
		return nil, ioErr("commit artifact", err)
	}
	committed = true

	entry := storage.Entry{
		LockedPath:   lockedPath,
		OriginalPath: original,
		IsDir:        info.IsDir(),
		Fingerprint:  crypto.Fingerprint(key),
		Salt:         kdf.Salt,
		Iterations:   kdf.Iterations,
		Size:         int64(len(plaintext)),
		Mode:         uint32(info.Mode()),
		LockedAt:     time.Now(),
	}
	if err := e.registry.Put(entry); err != nil {
		os.Remove(lockedPath)
		return nil, ioErr("register entry", err)
	}

	if err := removeOriginal(original, info.IsDir(), e.log); err != nil {
		// Keep the plaintext; drop the artifact and the entry instead
		e.registry.Remove(lockedPath)
		os.Remove(lockedPath)
		return nil, ioErr("remove original", err)
	}

	e.log.Info("locked", zap.String("path", original), zap.Bool("dir", entry.IsDir), zap.Int64("size", entry.Size))
	return &entry, nil
}

// readPlaintext returns the bytes to encrypt. Directories are archived to
// a temporary zip next to the original first.
func (e *Engine) readPlaintext(ctx context.Context, original string, info os.FileInfo) ([]byte, error) {
	if !info.IsDir() {
		data, err := os.ReadFile(original)
		if err != nil {
			return nil, ioErr("read original", err)
		}
		return data, nil
	}

	f, err := os.CreateTemp(filepath.Dir(original), "."+filepath.Base(original)+"-*.zip")
	if err != nil {
		return nil, ioErr("create archive", err)
	}
	defer os.Remove(f.Name())

	skipped, err := archiveDir(ctx, original, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctxErr(ctx)
		}
		return nil, fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if len(skipped) > 0 {
		e.log.Warn("skipped non-regular entries while archiving", zap.String("path", original), zap.Strings("entries", skipped))
	}

	data, err := os.ReadFile(f.Name())
	if err != nil {
		return nil, ioErr("read archive", err)
	}
	return data, nil
}

// verifyArtifact re-reads a written artifact and checks it decrypts back to plaintext
func verifyArtifact(path string, key, plaintext []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ioErr("verify artifact", err)
	}
	if _, err := parseHeader(data); err != nil {
		return ioErr("verify artifact", err)
	}
	decrypted, err := open(key, data)
	if err != nil {
		return ioErr("verify artifact", err)
	}
	defer crypto.ClearBytes(decrypted)

	want := sha256.Sum256(plaintext)
	got := sha256.Sum256(decrypted)
	if !bytes.Equal(want[:], got[:]) {
		return ioErr("verify artifact", errors.New("content mismatch"))
	}
	return nil
}

// removeOriginal deletes the plaintext. A directory is first renamed to a
// hidden sibling so that a failure never leaves it half deleted in place.
func removeOriginal(original string, isDir bool, log *zap.Logger) error {
	if !isDir {
		return os.Remove(original)
	}

	trash, err := os.MkdirTemp(filepath.Dir(original), "."+filepath.Base(original)+".trash-*")
	if err != nil {
		return err
	}
	target := filepath.Join(trash, "d")
	if err := os.Rename(original, target); err != nil {
		os.Remove(trash)
		return err
	}
	if err := os.RemoveAll(trash); err != nil {
		log.Warn("failed to purge original directory", zap.String("path", trash), zap.Error(err))
	}
	return nil
}

// Unlock restores the resource locked at lockedPath and returns its original
// path. The artifact and its entry are deleted only after the restored file
// or directory is in place.
func (e *Engine) Unlock(ctx context.Context, lockedPath string, password []byte) (string, error) {
	if len(password) == 0 {
		return "", ErrPasswordRequired
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	lp, err := e.resolve(lockedPath)
	if err != nil {
		return "", err
	}
	if !IsArtifact(lp) {
		return "", fmt.Errorf("%w: %s has no %s suffix", ErrEntryNotFound, lp, Suffix)
	}

	unlock, err := e.locks.Lock(ctx, lp)
	if err != nil {
		return "", err
	}
	defer unlock()

	plaintext, hdr, entry, err := e.decrypt(ctx, lp, password)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(plaintext)

	original := OriginalPathFor(lp)
	if _, err := os.Lstat(original); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, original)
	}
	if err := ctxErr(ctx); err != nil {
		return "", err
	}

	mode := os.FileMode(0)
	if entry != nil {
		mode = os.FileMode(entry.Mode).Perm()
	}
	if hdr.Dir {
		err = restoreDir(ctx, original, plaintext, mode)
	} else {
		err = restoreFile(ctx, original, plaintext, mode)
	}
	if err != nil {
		return "", err
	}

	if err := os.Remove(lp); err != nil {
		e.log.Warn("restored but could not remove artifact", zap.String("path", lp), zap.Error(err))
		return original, nil
	}
	if err := e.registry.Remove(lp); err != nil {
		e.log.Warn("restored but could not remove registry entry", zap.String("path", lp), zap.Error(err))
	}

	e.log.Info("unlocked", zap.String("path", original), zap.Bool("dir", hdr.Dir))
	return original, nil
}

// decrypt reads and authenticates the artifact at lp. When an entry is on
// record its salt and iterations must match the header, and its fingerprint
// is checked before the decryption attempt. Key derivation honours ctx.
func (e *Engine) decrypt(ctx context.Context, lp string, password []byte) ([]byte, header, *storage.Entry, error) {
	data, err := os.ReadFile(lp)
	if errors.Is(err, os.ErrNotExist) {
		return nil, header{}, nil, fmt.Errorf("%w: %s", ErrEntryNotFound, lp)
	}
	if err != nil {
		return nil, header{}, nil, ioErr("read artifact", err)
	}

	hdr, err := parseHeader(data)
	if err != nil {
		return nil, header{}, nil, err
	}

	entry, err := e.registry.Get(lp)
	if err != nil {
		return nil, header{}, nil, ioErr("registry lookup", err)
	}

	if entry != nil && len(entry.Salt) > 0 &&
		(entry.Iterations != hdr.Iterations || !bytes.Equal(entry.Salt, hdr.Salt)) {
		return nil, header{}, nil, fmt.Errorf("%w: header does not match registry entry", ErrCorruptArtifact)
	}

	kdf, err := crypto.LoadKDF(hdr.Salt, hdr.Iterations)
	if err != nil {
		return nil, header{}, nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	key, err := kdf.DeriveKeyContext(ctx, password)
	if err != nil {
		return nil, header{}, nil, ctxErr(ctx)
	}
	defer crypto.ClearBytes(key)

	if entry != nil && entry.HasFingerprint() && !crypto.MatchFingerprint(entry.Fingerprint, crypto.Fingerprint(key)) {
		return nil, header{}, nil, ErrWrongPassword
	}

	plaintext, err := open(key, data)
	if err != nil {
		return nil, header{}, nil, err
	}
	return plaintext, hdr, entry, nil
}

// Open decrypts the artifact at lockedPath without restoring it.
// The returned bytes are a zip archive when isDir is true.
func (e *Engine) Open(ctx context.Context, lockedPath string, password []byte) (data []byte, isDir bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	lp, err := e.resolve(lockedPath)
	if err != nil {
		return nil, false, err
	}

	unlock, err := e.locks.Lock(ctx, lp)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	plaintext, hdr, _, err := e.decrypt(ctx, lp, password)
	if err != nil {
		return nil, false, err
	}
	return plaintext, hdr.Dir, nil
}

func restoreFile(ctx context.Context, original string, plaintext []byte, mode os.FileMode) error {
	if mode == 0 {
		mode = FilePermSecure
	}
	tmp, err := writeTemp(filepath.Dir(original), filepath.Base(original), plaintext, mode)
	if err != nil {
		return ioErr("write restored file", err)
	}
	if err := ctxErr(ctx); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, original); err != nil {
		os.Remove(tmp)
		return ioErr("commit restored file", err)
	}
	return nil
}

func restoreDir(ctx context.Context, original string, archive []byte, mode os.FileMode) error {
	tmp, err := os.MkdirTemp(filepath.Dir(original), "."+filepath.Base(original)+".restore-*")
	if err != nil {
		return ioErr("create restore directory", err)
	}

	if err := extractArchive(ctx, archive, tmp); err != nil {
		os.RemoveAll(tmp)
		if ctx.Err() != nil {
			return ctxErr(ctx)
		}
		if errors.Is(err, ErrArchive) {
			return err
		}
		return ioErr("extract archive", err)
	}
	if mode != 0 {
		if err := os.Chmod(tmp, mode|0700); err != nil {
			os.RemoveAll(tmp)
			return ioErr("chmod restored directory", err)
		}
	}
	if err := ctxErr(ctx); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, original); err != nil {
		os.RemoveAll(tmp)
		return ioErr("commit restored directory", err)
	}
	return nil
}

// writeTemp writes data to a hidden temporary file in dir and syncs it
func writeTemp(dir, base string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// Info describes a locked artifact without decrypting it
type Info struct {
	LockedPath   string
	OriginalPath string
	IsDir        bool
	Iterations   int
	Size         int64
	Registered   bool
}

// Inspect reads an artifact header and its registry entry. No password is needed.
func (e *Engine) Inspect(lockedPath string) (*Info, error) {
	lp, err := e.resolve(lockedPath)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(lp)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, lp)
	}
	if err != nil {
		return nil, ioErr("stat artifact", err)
	}
	hdr, err := readHeader(lp)
	if err != nil {
		return nil, err
	}
	entry, err := e.registry.Get(lp)
	if err != nil {
		return nil, ioErr("registry lookup", err)
	}
	return &Info{
		LockedPath:   lp,
		OriginalPath: OriginalPathFor(lp),
		IsDir:        hdr.Dir,
		Iterations:   hdr.Iterations,
		Size:         st.Size(),
		Registered:   entry != nil,
	}, nil
}

// List returns all registered entries
func (e *Engine) List() ([]storage.Entry, error) {
	return e.registry.List()
}
