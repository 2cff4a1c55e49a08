package reveal

import (
	"testing"
	"unicode/utf8"

	"github.com/use-agent/pagesnap/models"
)

func TestMarkClicked_ZeroValueState(t *testing.T) {
	var state models.PageState

	if !markClicked(&state, "tab#0|Specs") {
		t.Fatal("first key on a zero-value state should be recorded")
	}
	if markClicked(&state, "tab#0|Specs") {
		t.Error("repeated key should report already clicked")
	}
	if !markClicked(&state, "tab#1|Reviews") {
		t.Error("distinct key should be recorded")
	}
	if len(state.Clicked) != 2 {
		t.Errorf("len(state.Clicked) = %d, want 2", len(state.Clicked))
	}
}

func TestTruncateKeyText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "Shipping", keyTextLen, "Shipping"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"multibyte boundary kept", "naïve", 3, "na"},
		{"multibyte cut walks back", "日本語", 4, "日"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncateKeyText(tc.in, tc.max)
			if got != tc.want {
				t.Errorf("truncateKeyText(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result is not valid UTF-8: %q", got)
			}
		})
	}
}
