package cmd

import (
	"fmt"
	"os"
)

// Compact compacts the registry database to reclaim unused space
func Compact(configPath string) {
	o := openOffline(configPath)
	defer o.Close()

	path := o.store.Path()

	// Get file size before
	info, err := os.Stat(path)
	if err != nil {
		o.Close()
		HandleError(err)
	}
	sizeBefore := info.Size()

	if err := o.store.Compact(); err != nil {
		o.Close()
		HandleError(err)
	}

	// Get file size after
	info, err = os.Stat(path)
	if err != nil {
		o.Close()
		HandleError(err)
	}
	sizeAfter := info.Size()

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
}
