package cmd

import (
	"fmt"
	"time"
)

// Ls shows the resources recorded in the registry
func Ls(configPath string) {
	o := openOffline(configPath)
	defer o.Close()

	// No password required
	entries, err := o.engine.List()
	if err != nil {
		o.Close()
		HandleError(err)
	}

	if len(entries) == 0 {
		fmt.Println("Nothing is locked")
		return
	}

	fmt.Println("Locked resources:")
	for _, e := range entries {
		marker := " "
		if e.IsDir {
			marker = "/"
		}
		fmt.Printf("  %s%s (%s, %s)\n", e.LockedPath, marker, formatSize(e.Size), e.LockedAt.Local().Format(time.DateTime))
	}

	if modified, err := o.store.GetModified(); err == nil {
		fmt.Printf("\nRegistry: %s (last modified: %s)\n", o.store.Path(), modified.Local().Format(time.RFC3339))
	}
}
