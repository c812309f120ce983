package textdiff

import (
	"strings"
	"testing"
)

func TestIsText(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    bool
	}{
		{"plain ASCII text", []byte("Hello, World!\nThis is a test."), true},
		{"UTF-8 with special chars", []byte("Hello 世界! Ñoño café"), true},
		{"empty file", []byte(""), true},
		{"newlines and spaces", []byte("\n\n  \t  \n"), true},
		{"JSON content", []byte(`{"key": "value", "number": 123}`), true},
		{"null bytes", []byte("abc\x00def"), false},
		{"invalid UTF-8", []byte{0xff, 0xfe, 0xfd}, false},
		{"control characters", []byte("\x01\x02\x03\x04\x05abc"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsText(tt.content); got != tt.want {
				t.Errorf("IsText() for %s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestIsTextRuneOnSampleBoundary(t *testing.T) {
	data := []byte(strings.Repeat("a", BinarySampleSize-1) + "é" + "tail")
	if !IsText(data) {
		t.Error("A rune split by the sample boundary should not make text binary")
	}
}

func TestEqual(t *testing.T) {
	if !Equal([]byte("same"), []byte("same")) {
		t.Error("Identical content should be equal")
	}
	if Equal([]byte("a"), []byte("b")) {
		t.Error("Different content should not be equal")
	}
	if !Equal(nil, []byte{}) {
		t.Error("Empty inputs should be equal")
	}
}

func TestUnified(t *testing.T) {
	if d := Unified("a.txt", []byte("x\n"), []byte("x\n")); d != "" {
		t.Errorf("Expected no diff, got %q", d)
	}

	d := Unified("notes.txt", []byte("line1\nline2\nline3\n"), []byte("line1\nchanged\nline3\n"))
	if !strings.HasPrefix(d, "--- locked/notes.txt\n+++ local/notes.txt\n") {
		t.Errorf("Missing headers:\n%s", d)
	}
	if !strings.Contains(d, "-line2") || !strings.Contains(d, "+changed") {
		t.Errorf("Missing changed lines:\n%s", d)
	}

	d = Unified("img.bin", []byte{0, 1, 2}, []byte{0, 1, 3})
	if d != "Binary file img.bin has changed\n" {
		t.Errorf("Unexpected binary diff: %q", d)
	}
}

func TestTree(t *testing.T) {
	locked := map[string][]byte{
		"README":    []byte("readme\n"),
		"gone.txt":  []byte("bye\n"),
		"src/a.txt": []byte("one\n"),
	}
	local := map[string][]byte{
		"README":    []byte("readme\n"),
		"new.txt":   []byte("hi\n"),
		"src/a.txt": []byte("two\n"),
	}

	out := Tree(locked, local)
	for _, want := range []string{"Only in locked: gone.txt", "Only in local: new.txt", "--- locked/src/a.txt", "+two"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "README") {
		t.Errorf("Unchanged file should not be listed:\n%s", out)
	}
	if Tree(local, local) != "" {
		t.Error("Identical trees should produce no output")
	}
}
