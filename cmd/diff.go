package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/illarion/lockbot/internal/crypto"
	"github.com/illarion/lockbot/internal/textdiff"
	"github.com/illarion/lockbot/internal/vault"
)

// Diff compares a locked artifact with a plaintext file or directory.
// When against is empty the artifact's original path is used.
func Diff(ctx context.Context, configPath, lockedPath, against string) {
	o := openOffline(configPath)
	defer o.Close()

	lockedPath = absPath(lockedPath)
	if against == "" {
		against = vault.OriginalPathFor(lockedPath)
	}
	against = absPath(against)

	password := GetPasswordOrExit("Enter password: ", false)
	defer crypto.ClearBytes(password)

	data, isDir, err := o.engine.Open(ctx, lockedPath, password)
	if err != nil {
		o.Close()
		HandleError(err)
	}
	defer crypto.ClearBytes(data)

	var out string
	if isDir {
		locked, err := vault.ArchiveEntries(data)
		if err != nil {
			o.Close()
			HandleError(err)
		}
		local, err := readTree(against)
		if err != nil {
			o.Close()
			HandleError(err)
		}
		out = textdiff.Tree(locked, local)
	} else {
		local, err := os.ReadFile(against)
		if err != nil {
			o.Close()
			HandleError(err)
		}
		out = textdiff.Unified(filepath.Base(against), data, local)
	}

	if out == "" {
		fmt.Println("No differences")
		return
	}
	fmt.Print(out)
}

// readTree loads the regular files under dir keyed like archive entries
func readTree(dir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = content
		return nil
	})
	return files, err
}
