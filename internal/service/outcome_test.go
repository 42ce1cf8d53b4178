package service

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestStringPreview(t *testing.T) {
	cases := []struct {
		name string
		body string
		max  int
		want string
	}{
		{"short", "printer jam", 20, "printer jam"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii", "abcdefghij", 6, "abc..."},
		{"multibyte", "überschrift ünd mehr", 6, "übe..."},
		{"emoji", strings.Repeat("🔥", 10), 5, "🔥🔥..."},
		{"tiny max", "日本語テキスト", 2, "日本"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := stringPreview(tc.body, tc.max)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("preview %q is not valid UTF-8", got)
			}
		})
	}
}
