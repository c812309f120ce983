// Package git checks whether a path about to be locked is tracked by git.
//
// Locking removes the plaintext from disk but not from repository history,
// so the CLI warns when:
//   - files under the path are tracked by git
//   - the path is not covered by .gitignore
package git
