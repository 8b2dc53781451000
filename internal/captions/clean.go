package captions

import (
	"html"
	"regexp"
	"strings"
)

var (
	inlineTimingPattern = regexp.MustCompile(`<(?:\d+:)?\d{2}:\d{2}[.,]\d{3}>`)
	styleTagPattern     = regexp.MustCompile(`(?i)</?(?:[a-z]|lang|ruby|rt)(?:[.\s][^>]*)?>`)
	assOverridePattern  = regexp.MustCompile(`\{\\[^}]*\}`)
)

// CleanText strips inline timing markers, voice and style tags, decodes
// entities, and collapses whitespace runs to single spaces.
func CleanText(raw string) string {
	text := inlineTimingPattern.ReplaceAllString(raw, "")
	text = styleTagPattern.ReplaceAllString(text, "")
	text = assOverridePattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
