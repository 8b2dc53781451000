package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ytsubs/internal/config"
	"ytsubs/internal/testsupport"
)

// fakeYTDLP imitates the yt-dlp invocations ytsubs makes. The playlist has
// three videos: vidA has captions, vidB has captions but no upload date in
// the flat listing, and vidC has no captions at all.
const fakeYTDLP = `#!/bin/sh
last=""
dir=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-P" ]; then dir="$arg"; fi
  prev="$arg"
  last="$arg"
done
case "$*" in
*--version*)
  echo "2026.01.01"
  ;;
*--flat-playlist*)
  case "$last" in
  *watch*)
    printf '%s\n' '{"id":"vidA","title":"Alpha","upload_date":"20240101"}'
    ;;
  *)
    printf '%s\n' '{"_type":"playlist","id":"PL1","entries":[{"id":"vidA","title":"Alpha","upload_date":"20240101"},{"id":"vidB","title":"Beta"},{"id":"vidC","title":"Gamma","upload_date":"20240103"}]}'
    ;;
  esac
  ;;
*--write-auto-subs*)
  id="${last##*=}"
  if [ "$id" = "vidC" ]; then exit 0; fi
  mkdir -p "$dir"
  printf 'WEBVTT\n\n00:00:00.000 --> 00:00:01.000\nHello\n\n00:00:01.000 --> 00:00:02.000\nHello\n\n00:00:02.000 --> 00:00:03.000\nWorld\n' > "$dir/$id.en.vtt"
  ;;
*-J*)
  id="${last##*=}"
  printf '{"id":"%s","title":"Beta","upload_date":"20240202"}\n' "$id"
  ;;
*)
  echo "unexpected arguments: $*" >&2
  exit 2
  ;;
esac
`

const (
	playlistURL = "https://www.youtube.com/playlist?list=PL1"
	videoURL    = "https://www.youtube.com/watch?v=vidA"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("YTSUBS_OUTPUT_DIR", "")
	t.Setenv("YTSUBS_COOKIES", "")

	opts = append([]testsupport.ConfigOption{testsupport.WithFakeYTDLP(fakeYTDLP)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	return &cliTestEnv{cfg: cfg, configPath: testsupport.WriteConfigFile(t, cfg)}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
