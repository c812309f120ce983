package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/lockbot/internal/crypto"
	"github.com/illarion/lockbot/internal/git"
)

// Lock encrypts each path into a .locked artifact
func Lock(ctx context.Context, configPath string, paths []string) {
	o := openOffline(configPath)
	defer o.Close()

	password := GetPasswordOrExit("Enter password: ", true)
	defer crypto.ClearBytes(password)

	for _, p := range paths {
		p = absPath(p)
		if w := git.Warning(p, git.Check(ctx, p)); w != "" {
			fmt.Fprint(os.Stderr, w)
		}

		entry, err := o.engine.Lock(ctx, p, password)
		if err != nil {
			o.Close()
			HandleError(err)
		}
		kind := "file"
		if entry.IsDir {
			kind = "directory"
		}
		fmt.Printf("Locked %s: %s (%s)\n", kind, entry.LockedPath, formatSize(entry.Size))
	}
}
