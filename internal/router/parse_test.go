package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		text string
		kind Kind
		name string
		args []string
	}{
		{"/start", KindCommand, "start", nil},
		{"/LOCK /docs/notes.txt", KindCommand, "lock", []string{"/docs/notes.txt"}},
		{"/lock@lockbot \"/docs/my notes.txt\"", KindCommand, "lock", []string{"/docs/my notes.txt"}},
		{"/cp a 'b c'", KindCommand, "cp", []string{"a", "b c"}},
		{"/cp \"unbalanced a", KindCommand, "cp", []string{"\"unbalanced", "a"}},
		{"lock /docs/notes.txt", KindText, "", nil},
		{"secret123", KindText, "", nil},
		{"/", KindText, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			trig := ParseText(1, 2, 3, tt.text)
			require.Equal(t, tt.kind, trig.Kind)
			require.Equal(t, tt.name, trig.Name)
			require.Equal(t, tt.args, trig.Args)
			require.Equal(t, tt.text, trig.Raw)
			require.Equal(t, int64(1), trig.Sender)
			require.Equal(t, int64(2), trig.Chat)
		})
	}
}

func TestParseButton(t *testing.T) {
	trig := ParseButton(1, 2, 3, " Torch_On ")
	require.Equal(t, KindButton, trig.Kind)
	require.Equal(t, "torch_on", trig.Name)
	require.Equal(t, " Torch_On ", trig.Raw)
}
