package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
		cut  bool
	}{
		{"short ascii", "hello", 10, "hello", false},
		{"exact", "hello", 5, "hello", false},
		{"ascii cut", "hello", 3, "hel", true},
		{"cjk cut", "今天天气很好", 2, "今天", true},
		{"mixed", "a天b", 2, "a天", true},
		{"zero", "abc", 0, "", true},
		{"empty", "", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cut := TruncateRunes(tt.in, tt.n)
			if got != tt.want || cut != tt.cut {
				t.Errorf("TruncateRunes(%q, %d) = %q, %v; want %q, %v", tt.in, tt.n, got, cut, tt.want, tt.cut)
			}
		})
	}
}

func TestTruncateRunesKeepsValidUTF8(t *testing.T) {
	s := strings.Repeat("天", 10000)
	got, cut := TruncateRunes(s, 20000)
	if cut || got != s {
		t.Fatalf("text under the limit must be untouched, got %d runes", utf8.RuneCountInString(got))
	}
	got, _ = TruncateRunes(s, 6667)
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != 6667 {
		t.Errorf("got %d runes, valid=%v", utf8.RuneCountInString(got), utf8.ValidString(got))
	}
}
