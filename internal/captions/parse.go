package captions

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var timingLinePattern = regexp.MustCompile(`^\s*((?:\d+:)?\d{2}:\d{2}[.,]\d{3})\s*-->\s*((?:\d+:)?\d{2}:\d{2}[.,]\d{3})(?:\s.*)?$`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectDialect picks the dialect from the file extension, falling back to
// the WEBVTT signature for unknown extensions.
func DetectDialect(path string, data []byte) (Dialect, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtt":
		return DialectWebVTT, nil
	case ".srt":
		return DialectSRT, nil
	}
	if strings.HasPrefix(strings.TrimSpace(string(bytes.TrimPrefix(data, utf8BOM))), "WEBVTT") {
		return DialectWebVTT, nil
	}
	return "", &ParseError{Path: path, Reason: "unrecognized caption format"}
}

// ParseFile reads and parses a caption file. The language is taken from
// the second-to-last extension, as in "abc123.en.vtt".
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read captions %s: %w", path, err)
	}
	doc, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	doc.Language = LanguageFromPath(path)
	return doc, nil
}

// Parse parses data using the dialect chosen by DetectDialect. path is
// only used for dialect selection and error reporting.
func Parse(path string, data []byte) (*Document, error) {
	dialect, err := DetectDialect(path, data)
	if err != nil {
		return nil, err
	}
	if dialect == DialectSRT {
		return ParseSRT(path, data)
	}
	return ParseWebVTT(path, data)
}

// ParseWebVTT parses a WebVTT document. Header, metadata, NOTE, STYLE and
// REGION blocks and cue identifiers are discarded.
func ParseWebVTT(path string, data []byte) (*Document, error) {
	lines := splitLines(data)
	first := 0
	for first < len(lines) && strings.TrimSpace(lines[first]) == "" {
		first++
	}
	if first == len(lines) {
		return nil, &ParseError{Path: path, Reason: "empty file"}
	}
	header := strings.TrimSpace(lines[first])
	if header != "WEBVTT" && !strings.HasPrefix(header, "WEBVTT ") && !strings.HasPrefix(header, "WEBVTT\t") {
		return nil, &ParseError{Path: path, Reason: "missing WEBVTT header"}
	}

	doc := &Document{Source: path, Dialect: DialectWebVTT}
	var (
		inCue      bool
		start, end string
		text       []string
	)
	flush := func() {
		if inCue {
			doc.appendCue(start, end, CleanText(strings.Join(text, " ")))
		}
		inCue = false
		text = text[:0]
	}

	body := lines[first+1:]
	blankBefore := false
	for i, line := range body {
		if m := timingLinePattern.FindStringSubmatch(line); m != nil {
			flush()
			inCue, start, end = true, m[1], m[2]
			blankBefore = false
			continue
		}
		// A zero-length line always ends a cue. Auto captions also put
		// whitespace-only lines inside cue payloads, so those only end a
		// cue when a NOTE block or a cue identifier follows.
		if line == "" {
			flush()
			blankBefore = false
			continue
		}
		if inCue {
			switch {
			case blankBefore && isNoteLine(line):
				flush()
			case isNumeric(line) && i+1 < len(body) && timingLinePattern.MatchString(body[i+1]):
				flush()
			default:
				text = append(text, line)
			}
		}
		blankBefore = strings.TrimSpace(line) == ""
	}
	flush()
	return doc, nil
}

func isNoteLine(line string) bool {
	return line == "NOTE" || strings.HasPrefix(line, "NOTE ") || strings.HasPrefix(line, "NOTE\t")
}

// ParseSRT parses a SubRip document. Blocks without a timing line are
// skipped; a non-empty file without any timing line is a parse error.
func ParseSRT(path string, data []byte) (*Document, error) {
	lines := splitLines(data)
	doc := &Document{Source: path, Dialect: DialectSRT}

	blocks := splitBlocks(lines)
	if len(blocks) == 0 {
		return nil, &ParseError{Path: path, Reason: "empty file"}
	}

	timed := 0
	for _, block := range blocks {
		idx := 0
		if isNumeric(block[idx]) && len(block) > 1 {
			idx++
		}
		m := timingLinePattern.FindStringSubmatch(block[idx])
		if m == nil {
			continue
		}
		timed++
		doc.appendCue(m[1], m[2], CleanText(strings.Join(block[idx+1:], " ")))
	}
	if timed == 0 {
		return nil, &ParseError{Path: path, Reason: "no timed cues found"}
	}
	return doc, nil
}

// LanguageFromPath extracts the language segment from names like
// "<key>.<lang>.<ext>". It returns "und" when no segment is present.
func LanguageFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return "und"
	}
	return base[idx+1:]
}

func splitLines(data []byte) []string {
	content := string(bytes.TrimPrefix(data, utf8BOM))
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.Split(content, "\n")
}

func splitBlocks(lines []string) [][]string {
	var (
		blocks  [][]string
		current []string
	)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func isNumeric(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
