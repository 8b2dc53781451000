package textutil

import "strings"

// SanitizeKey converts a string to a filesystem-safe token while keeping
// letter case, since YouTube video ids are case-sensitive. ASCII letters,
// digits, hyphens and underscores are kept; everything else becomes an
// underscore. Returns "unknown" for empty input.
func SanitizeKey(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unknown"
	}
	return out
}

// Truncate shortens s to at most max bytes without splitting a UTF-8
// sequence, appending "..." when anything was cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	if cut > 3 {
		cut -= 3
	}
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	if max <= 3 {
		return s[:cut]
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
