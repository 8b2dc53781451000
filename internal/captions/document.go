package captions

import (
	"errors"
	"fmt"
	"strings"

	"ytsubs/internal/services"
)

// Dialect identifies a caption container format.
type Dialect string

const (
	DialectWebVTT Dialect = "vtt"
	DialectSRT    Dialect = "srt"
)

// Cue is one timed caption with cleaned text. Start and End keep the
// timecodes exactly as they appeared in the source file.
type Cue struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

// Document is a parsed caption file.
type Document struct {
	Source   string
	Language string
	Dialect  Dialect
	Cues     []Cue
}

// Transcript is the JSON output form of a document.
type Transcript struct {
	VideoID   string `json:"videoId"`
	Subtitles []Cue  `json:"subtitles"`
}

// ParseError reports a caption file that cannot be parsed. It is never
// worth retrying.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse captions: %s", e.Reason)
	}
	return fmt.Sprintf("parse captions %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Is(target error) bool {
	return target == services.ErrParse
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ToPlainText joins cue texts with a single newline.
func ToPlainText(doc *Document) string {
	if doc == nil || len(doc.Cues) == 0 {
		return ""
	}
	lines := make([]string, len(doc.Cues))
	for i, cue := range doc.Cues {
		lines[i] = cue.Text
	}
	return strings.Join(lines, "\n")
}

// ToTimestampedJSON returns the JSON output record for doc.
func ToTimestampedJSON(doc *Document, videoID string) Transcript {
	out := Transcript{VideoID: videoID, Subtitles: []Cue{}}
	if doc != nil {
		out.Subtitles = append(out.Subtitles, doc.Cues...)
	}
	return out
}

// appendCue adds text as a cue unless it is empty or repeats the last kept cue.
func (d *Document) appendCue(start, end, text string) {
	if text == "" {
		return
	}
	if n := len(d.Cues); n > 0 && d.Cues[n-1].Text == text {
		return
	}
	d.Cues = append(d.Cues, Cue{Start: start, End: end, Text: text})
}
