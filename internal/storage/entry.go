package storage

import (
	"sort"
	"time"
)

// Entry records one locked resource. The password is never stored; the
// fingerprint is a one-way digest of the derived key.
type Entry struct {
	LockedPath   string    `json:"lockedPath"`
	OriginalPath string    `json:"originalPath"`
	IsDir        bool      `json:"isDir"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	Salt         []byte    `json:"salt"`
	Iterations   int       `json:"iterations"`
	Size         int64     `json:"size"`
	Mode         uint32    `json:"mode"`
	LockedAt     time.Time `json:"lockedAt"`
}

// HasFingerprint reports whether a credential fingerprint is on record.
// Entries adopted from orphaned artifacts have none.
func (e *Entry) HasFingerprint() bool {
	return e.Fingerprint != ""
}

// AuditRecord is one line of the action log
type AuditRecord struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	User    int64     `json:"user"`
	Action  string    `json:"action"`
	Target  string    `json:"target,omitempty"`
	Outcome string    `json:"outcome"`
}

// sortEntries orders entries by locked path so listings are stable.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LockedPath < entries[j].LockedPath
	})
}
