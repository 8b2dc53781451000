package captions

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ytsubs/internal/retry"
	"ytsubs/internal/services"
)

const rollingVTT = `WEBVTT
Kind: captions
Language: en

00:00:00.000 --> 00:00:01.000 align:start position:0%
Hello

00:00:01.000 --> 00:00:02.000
Hello

00:00:02.000 --> 00:00:03.000
World
`

func TestRoundTripDropsAdjacentDuplicates(t *testing.T) {
	doc, err := Parse("abc.en.vtt", []byte(rollingVTT))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := ToPlainText(doc); got != "Hello\nWorld" {
		t.Fatalf("unexpected plain text %q", got)
	}
	if len(doc.Cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(doc.Cues))
	}
	if doc.Cues[0].Start != "00:00:00.000" || doc.Cues[0].End != "00:00:01.000" {
		t.Fatalf("unexpected timing on first cue: %+v", doc.Cues[0])
	}
}

func TestWebVTTStripsInlineMarkup(t *testing.T) {
	input := "WEBVTT\n\n" +
		"00:00:00.000 --> 00:00:02.750 align:start position:0%\n" +
		" \n" +
		"so<00:00:01.920><c> this</c><00:00:02.100><c.colorE5E5E5> is</c>   fine &amp; <v Roger>good</v>\n"
	doc, err := ParseWebVTT("x.vtt", []byte(input))
	if err != nil {
		t.Fatalf("ParseWebVTT: %v", err)
	}
	if len(doc.Cues) != 1 {
		t.Fatalf("expected a single cue, got %+v", doc.Cues)
	}
	text := doc.Cues[0].Text
	if text != "so this is fine & good" {
		t.Fatalf("unexpected cleaned text %q", text)
	}
	for _, bad := range []string{"<00:00:01.920>", "<c>", "</c>", "<"} {
		if strings.Contains(text, bad) {
			t.Fatalf("cleaned text still contains %q: %q", bad, text)
		}
	}
}

func TestWebVTTIgnoresHeaderBlocksAndIdentifiers(t *testing.T) {
	input := "\ufeffWEBVTT - generated\r\n" +
		"Kind: captions\r\n" +
		"\r\n" +
		"NOTE this is a comment\r\n" +
		"spanning lines\r\n" +
		"\r\n" +
		"STYLE\r\n" +
		"::cue { color: red }\r\n" +
		"\r\n" +
		"intro\r\n" +
		"00:01.000 --> 00:02.000\r\n" +
		"First line\r\n" +
		"second line\r\n" +
		"\r\n" +
		"2\r\n" +
		"01:00:02.000 --> 01:00:04.000\r\n" +
		"Next\r\n"
	doc, err := ParseWebVTT("x.vtt", []byte(input))
	if err != nil {
		t.Fatalf("ParseWebVTT: %v", err)
	}
	want := []Cue{
		{Start: "00:01.000", End: "00:02.000", Text: "First line second line"},
		{Start: "01:00:02.000", End: "01:00:04.000", Text: "Next"},
	}
	if len(doc.Cues) != len(want) {
		t.Fatalf("unexpected cues: %+v", doc.Cues)
	}
	for i := range want {
		if doc.Cues[i] != want[i] {
			t.Fatalf("cue %d: got %+v want %+v", i, doc.Cues[i], want[i])
		}
	}
}

func TestWebVTTWhitespaceSeparatorBeforeNoteOrIdentifier(t *testing.T) {
	input := "WEBVTT\n\n" +
		"00:00:00.000 --> 00:00:01.000\n" +
		"Hello\n" +
		"   \n" +
		"NOTE a comment\n" +
		"\n" +
		"2\n" +
		"00:00:01.000 --> 00:00:02.000\n" +
		"World\n" +
		" \n" +
		"3\n" +
		"00:00:02.000 --> 00:00:03.000\n" +
		"Again\n"
	doc, err := ParseWebVTT("x.vtt", []byte(input))
	if err != nil {
		t.Fatalf("ParseWebVTT: %v", err)
	}
	if got := ToPlainText(doc); got != "Hello\nWorld\nAgain" {
		t.Fatalf("unexpected plain text %q", got)
	}
}

func TestWebVTTDedupOnlyComparesAdjacentKeptCues(t *testing.T) {
	input := `WEBVTT

00:00:00.000 --> 00:00:01.000
A

00:00:01.000 --> 00:00:02.000
<c> </c>

00:00:02.000 --> 00:00:03.000
A

00:00:03.000 --> 00:00:04.000
B

00:00:04.000 --> 00:00:05.000
A
`
	doc, err := ParseWebVTT("x.vtt", []byte(input))
	if err != nil {
		t.Fatalf("ParseWebVTT: %v", err)
	}
	if got := ToPlainText(doc); got != "A\nB\nA" {
		t.Fatalf("unexpected plain text %q", got)
	}
}

func TestWebVTTMissingHeader(t *testing.T) {
	for name, input := range map[string]string{
		"empty":     "",
		"blank":     "\n\n  \n",
		"no header": "00:00:00.000 --> 00:00:01.000\nHi\n",
		"prefix":    "WEBVTTX\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWebVTT("broken.en.vtt", []byte(input))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if pe.Path != "broken.en.vtt" {
				t.Fatalf("expected path in error, got %q", pe.Path)
			}
			if !errors.Is(err, services.ErrParse) {
				t.Fatal("ParseError should match services.ErrParse")
			}
			if retry.IsRetryable(err) {
				t.Fatal("parse errors must not be retryable")
			}
		})
	}
}

func TestWebVTTHeaderOnlyIsEmptyDocument(t *testing.T) {
	doc, err := ParseWebVTT("x.vtt", []byte("WEBVTT\n\n"))
	if err != nil {
		t.Fatalf("ParseWebVTT: %v", err)
	}
	if len(doc.Cues) != 0 || ToPlainText(doc) != "" {
		t.Fatalf("expected empty document, got %+v", doc.Cues)
	}
}

func TestParseSRT(t *testing.T) {
	input := "1\n00:00:01,000 --> 00:00:02,500\n<i>Hello</i>\n\n" +
		"2\n00:00:02,500 --> 00:00:04,000\nHello\n\n" +
		"3\n00:00:04,000 --> 00:00:05,000\n{\\an8}World\nagain\n\n\n"
	doc, err := Parse("video.de.srt", []byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Dialect != DialectSRT {
		t.Fatalf("expected srt dialect, got %s", doc.Dialect)
	}
	if got := ToPlainText(doc); got != "Hello\nWorld again" {
		t.Fatalf("unexpected plain text %q", got)
	}
	if doc.Cues[1].Start != "00:00:04,000" || doc.Cues[1].End != "00:00:05,000" {
		t.Fatalf("expected raw SRT timecodes, got %+v", doc.Cues[1])
	}
}

func TestParseSRTWithoutTimings(t *testing.T) {
	_, err := ParseSRT("bad.srt", []byte("just some text\nwithout cues\n"))
	if !IsParseError(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if _, err := ParseSRT("empty.srt", nil); !IsParseError(err) {
		t.Fatalf("expected ParseError for empty input, got %v", err)
	}
}

func TestDetectDialect(t *testing.T) {
	cases := []struct {
		path string
		data string
		want Dialect
		err  bool
	}{
		{"a.en.vtt", "", DialectWebVTT, false},
		{"a.EN.SRT", "", DialectSRT, false},
		{"a.txt", "WEBVTT\n", DialectWebVTT, false},
		{"a.txt", "1\n00:00:01,000 --> 00:00:02,000\nhi\n", "", true},
	}
	for _, tc := range cases {
		got, err := DetectDialect(tc.path, []byte(tc.data))
		if tc.err {
			if !IsParseError(err) {
				t.Fatalf("%s: expected ParseError, got %v", tc.path, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %q, %v; want %q", tc.path, got, err, tc.want)
		}
	}
}

func TestToTimestampedJSON(t *testing.T) {
	doc, err := Parse("abc.en.vtt", []byte(rollingVTT))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := json.Marshal(ToTimestampedJSON(doc, "abc"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"videoId":"abc","subtitles":[{"start":"00:00:00.000","end":"00:00:01.000","text":"Hello"},{"start":"00:00:02.000","end":"00:00:03.000","text":"World"}]}`
	if string(data) != want {
		t.Fatalf("unexpected JSON:\n got %s\nwant %s", data, want)
	}

	empty, _ := json.Marshal(ToTimestampedJSON(nil, "x"))
	if string(empty) != `{"videoId":"x","subtitles":[]}` {
		t.Fatalf("unexpected empty JSON %s", empty)
	}
}

func TestParseFileSetsLanguage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20240101_abc.pt-BR.vtt")
	if err := os.WriteFile(path, []byte(rollingVTT), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if doc.Language != "pt-BR" {
		t.Fatalf("unexpected language %q", doc.Language)
	}
	if doc.Source != path {
		t.Fatalf("unexpected source %q", doc.Source)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.en.vtt")); err == nil || IsParseError(err) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLanguageFromPath(t *testing.T) {
	cases := map[string]string{
		"/tmp/abc.en.vtt":        "en",
		"abc.en-US.srt":          "en-US",
		"abc.vtt":                "und",
		"20240101_x.y.live.vtt":  "live",
		"/work/dir.with.dots/a.": "und",
	}
	for path, want := range cases {
		if got := LanguageFromPath(path); got != want {
			t.Fatalf("LanguageFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
