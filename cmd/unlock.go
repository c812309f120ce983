package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/lockbot/internal/crypto"
)

// Unlock restores each .locked artifact to its original location
func Unlock(ctx context.Context, configPath string, paths []string) {
	o := openOffline(configPath)
	defer o.Close()

	// Check every artifact before asking for the password
	for i, p := range paths {
		info, err := o.engine.Inspect(absPath(p))
		if err != nil {
			o.Close()
			HandleError(err)
		}
		paths[i] = info.LockedPath
	}

	password := GetPasswordOrExit("Enter password: ", false)
	defer crypto.ClearBytes(password)

	for _, p := range paths {
		restored, err := o.engine.Unlock(ctx, p, password)
		if err != nil {
			o.Close()
			HandleError(err)
		}
		fmt.Printf("Unlocked: %s\n", restored)
	}
}
