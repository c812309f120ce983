package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Status describes how git sees a path about to be locked
type Status struct {
	IsRepo  bool
	Tracked []string // files under the path that git tracks
	Ignored bool
}

// IsRepo checks if dir is inside a git work tree
func IsRepo(ctx context.Context, dir string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// TrackedFiles lists the files git tracks at or below path
func TrackedFiles(ctx context.Context, dir, path string) []string {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--", path)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return nil
	}

	var files []string
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}

// IsIgnored checks if path is ignored by git (handles all .gitignore files)
func IsIgnored(ctx context.Context, dir, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "check-ignore", "-q", "--", path)
	cmd.Dir = dir
	// git check-ignore returns exit code 0 if file is ignored
	return cmd.Run() == nil
}

// Check inspects path, which must be absolute. Without git on PATH or
// outside a repository the result is an empty Status.
func Check(ctx context.Context, path string) *Status {
	status := &Status{}
	if _, err := exec.LookPath("git"); err != nil {
		return status
	}

	dir := filepath.Dir(path)
	if !IsRepo(ctx, dir) {
		return status
	}
	status.IsRepo = true
	status.Tracked = TrackedFiles(ctx, dir, path)
	status.Ignored = IsIgnored(ctx, dir, path)
	return status
}

// Warning formats what an operator should know before locking path.
// Empty when git holds no plaintext copy.
func Warning(path string, status *Status) string {
	if !status.IsRepo || len(status.Tracked) == 0 {
		return ""
	}

	var result strings.Builder
	fmt.Fprintf(&result, "warning: %d file(s) under %s are tracked by git; their plaintext stays in history\n",
		len(status.Tracked), path)
	fmt.Fprintf(&result, "   run: git rm -r --cached %s\n", path)
	if !status.Ignored {
		fmt.Fprintf(&result, "   and add %s to .gitignore\n", filepath.Base(path))
	}
	return result.String()
}
