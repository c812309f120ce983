// Package textdiff renders differences between the locked copy of a
// resource and what is on disk.
package textdiff

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text files
)

// IsText determines if data is likely text.
//
// Detection heuristic (in order):
//  1. Null bytes present → binary
//  2. Invalid UTF-8 → binary
//  3. >10% non-printable control chars → binary
func IsText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data[:min(len(data), BinarySampleSize)]
	if !utf8.Valid(sample) {
		// A multi-byte rune may straddle the sample boundary
		if len(sample) < len(data) && utf8.Valid(sample[:len(sample)-utf8.UTFMax]) {
			sample = sample[:len(sample)-utf8.UTFMax]
		} else {
			return false
		}
	}

	nonPrintable := 0
	for _, b := range sample {
		// Allow common whitespace: tab, newline, carriage return
		if b < 32 && b != 9 && b != 10 && b != 13 {
			nonPrintable++
		}
		if b == 127 {
			nonPrintable++
		}
	}
	return nonPrintable <= len(sample)*BinaryThresholdPct/100
}

// Equal reports whether two contents are identical by SHA-256
func Equal(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return bytes.Equal(ha[:], hb[:])
}

// Unified returns a unified diff from locked to local, or "" when equal
func Unified(name string, locked, local []byte) string {
	if Equal(locked, local) {
		return ""
	}
	if !IsText(locked) || !IsText(local) {
		return fmt.Sprintf("Binary file %s has changed\n", name)
	}

	dmp := diffmatchpatch.New()

	// Line-mode diff for readable hunks
	lockedStr, localStr := string(locked), string(local)
	a, b, lines := dmp.DiffLinesToChars(lockedStr, localStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	patches := dmp.PatchMake(lockedStr, diffs)
	if len(patches) == 0 {
		return ""
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- locked/%s\n", name)
	fmt.Fprintf(&out, "+++ local/%s\n", name)
	out.WriteString(dmp.PatchToText(patches))
	return out.String()
}

// Tree compares two file sets keyed by slash-separated relative path. Files
// only in locked are reported as removed, files only in local as added, and
// changed files get a unified diff.
func Tree(locked, local map[string][]byte) string {
	names := make(map[string]struct{}, len(locked)+len(local))
	for name := range locked {
		names[name] = struct{}{}
	}
	for name := range local {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var out strings.Builder
	for _, name := range sorted {
		l, inLocked := locked[name]
		c, inLocal := local[name]
		switch {
		case !inLocal:
			fmt.Fprintf(&out, "Only in locked: %s\n", name)
		case !inLocked:
			fmt.Fprintf(&out, "Only in local: %s\n", name)
		default:
			out.WriteString(Unified(name, l, c))
		}
	}
	return out.String()
}
