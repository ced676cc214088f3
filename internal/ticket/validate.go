package ticket

import (
	"fmt"
	"strings"
)

const (
	MinContentLength = 1
	MaxContentLength = 5000
	MaxFileNameLen   = 255
)

// Extensions we refuse to accept as attachments, even as plain references.
var dangerousExtensions = []string{
	".exe", ".bat", ".cmd", ".com", ".msi", ".scr", ".pif",
	".js", ".jse", ".vbs", ".vbe", ".ws", ".wsf", ".wsc",
	".ps1", ".psm1", ".psd1", ".sh", ".bash", ".csh", ".ksh",
	".hta", ".jar", ".reg", ".inf", ".dll", ".sys",
}

// ValidateContent checks trimmed length bounds and returns a user-facing
// error message, or nil if the content is acceptable.
func ValidateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < MinContentLength {
		return fmt.Errorf("must be at least %d character", MinContentLength)
	}
	if len(trimmed) > MaxContentLength {
		return fmt.Errorf("must be less than %d characters", MaxContentLength)
	}
	return nil
}

// SanitizeContent strips null bytes and control characters (newlines and
// tabs survive), collapses runs of spaces, and trims the result.
func SanitizeContent(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == 0 || (r < 0x20 && r != '\n' && r != '\t') || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	for strings.Contains(out, "  ") {
		out = strings.ReplaceAll(out, "  ", " ")
	}
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

// SanitizeFileName removes path traversal, separators and control
// characters, and caps the length while preserving the extension.
func SanitizeFileName(name string) string {
	s := strings.ReplaceAll(name, "..", "")
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)
	if len(s) > MaxFileNameLen {
		ext := ""
		if i := strings.LastIndex(s, "."); i >= 0 {
			ext = s[i:]
		}
		s = s[:MaxFileNameLen-len(ext)] + ext
	}
	if s == "" {
		return "unnamed"
	}
	return s
}

// FileTypeSafe reports whether the file name does not carry an executable
// or script extension.
func FileTypeSafe(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range dangerousExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}
