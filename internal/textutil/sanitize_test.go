package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Cat Song", "Cat Song"},
		{"slashes", "AC/DC: Live", "AC-DC- Live"},
		{"removed", `What? "Now" <here>|`, "What Now here"},
		{"whitespace", "  Line\none\t ", "Line one"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFileName(tt.in); got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileNameNormalizesComposedForms(t *testing.T) {
	decomposed := "Cafe\u0301"
	if got := SanitizeFileName(decomposed); got != "Caf\u00e9" {
		t.Errorf("SanitizeFileName(%q) = %q, want NFC form", decomposed, got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Truncate("a long song title", 7); got != "a long…" {
		t.Errorf("Truncate long = %q", got)
	}
	if got := Truncate("anything", 0); got != "anything" {
		t.Errorf("Truncate zero limit = %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"abc":         "•••",
		"sk-abcdef12": "••••ef12",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Errorf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}
