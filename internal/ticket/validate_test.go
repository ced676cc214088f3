package ticket

import (
	"strings"
	"testing"
)

func TestValidateContentBounds(t *testing.T) {
	if err := ValidateContent(""); err == nil {
		t.Fatal("empty content should be rejected")
	}
	if err := ValidateContent("   \n "); err == nil {
		t.Fatal("whitespace-only content should be rejected")
	}
	if err := ValidateContent("hello"); err != nil {
		t.Fatalf("valid content rejected: %v", err)
	}
	if err := ValidateContent(strings.Repeat("x", MaxContentLength+1)); err == nil {
		t.Fatal("oversized content should be rejected")
	}
}

func TestSanitizeContent(t *testing.T) {
	got := SanitizeContent("hi\x00there\x07  friend")
	if got != "hithere friend" {
		t.Fatalf("got %q", got)
	}
	// Newlines and tabs survive, but runs of blank lines collapse.
	got = SanitizeContent("a\n\n\n\nb")
	if got != "a\n\nb" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "etcpasswd",
		"dir/file.txt":     "dirfile.txt",
		"re\x00port.pdf":   "report.pdf",
		"":                 "unnamed",
		"normal.png":       "normal.png",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileTypeSafe(t *testing.T) {
	if FileTypeSafe("malware.EXE") {
		t.Fatal("executable extensions must be rejected regardless of case")
	}
	if FileTypeSafe("script.sh") {
		t.Fatal("shell scripts must be rejected")
	}
	if !FileTypeSafe("report.pdf") {
		t.Fatal("document types should pass")
	}
}
