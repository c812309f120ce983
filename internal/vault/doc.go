// Package vault locks files and directories under a password.
//
// Lock turns path into path.locked:
//   - directories are zipped to a temporary archive first
//   - a fresh salt is drawn and a key derived with PBKDF2-HMAC-SHA256
//   - the payload is sealed with AES-256-GCM behind a small header
//     (magic, kind flag, iterations, salt) that is authenticated as
//     additional data
//   - the artifact is written to a temp file, synced, re-read and verified,
//     renamed into place, registered, and only then is the original removed
//
// Unlock reverses it with the same intact-until-confirmed ordering: the
// artifact and its registry entry go away only after the restored file or
// directory has been renamed into place.
//
// Every operation on one resource holds a per-path slot keyed by the
// locked path, so lock(P) and unlock(P.locked) never overlap while work on
// other paths proceeds in parallel. Each operation runs under a deadline
// checked between archive entries and before every commit rename.
package vault
