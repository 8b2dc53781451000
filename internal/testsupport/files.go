package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// VTT renders a WebVTT document with one second per cue.
func VTT(cues ...string) string {
	var b strings.Builder
	b.WriteString("WEBVTT\nKind: captions\n\n")
	for i, cue := range cues {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", timecode(i, "."), timecode(i+1, "."), cue)
	}
	return b.String()
}

// SRT renders a numbered SRT document with one second per cue.
func SRT(cues ...string) string {
	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, timecode(i, ","), timecode(i+1, ","), cue)
	}
	return b.String()
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func timecode(seconds int, sep string) string {
	return fmt.Sprintf("%02d:%02d:%02d%s000", seconds/3600, seconds/60%60, seconds%60, sep)
}
