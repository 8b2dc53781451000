package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"ytsubs/internal/config"
	"ytsubs/internal/model"
	"ytsubs/internal/retry"
	"ytsubs/internal/services"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	stdout string
	stderr string
	err    error
	files  []string
	block  bool
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	if dir := argValue(args, "-P"); dir != "" {
		for _, file := range f.files {
			_ = os.WriteFile(filepath.Join(dir, file), []byte("WEBVTT\n"), 0o644)
		}
	}
	return []byte(f.stdout), []byte(f.stderr), f.err
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func newTestClient(t *testing.T, runner *fakeRunner, mutate func(*config.Config)) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.YTDLP.Binary = "yt-dlp-test"
	if mutate != nil {
		mutate(&cfg)
	}
	return New(&cfg, nil, WithRunner(runner.run))
}

const channelJSON = `{
  "_type": "playlist",
  "id": "UC123",
  "title": "Channel",
  "entries": [
    {"_type": "playlist", "id": "UC123-videos", "entries": [
      {"_type": "url", "id": "vid1", "title": "First", "url": "https://www.youtube.com/watch?v=vid1", "duration": 61},
      {"_type": "url", "id": "", "title": "No id"},
      {"_type": "url", "id": "vid2", "title": "Second", "url": "/watch?v=vid2"}
    ]},
    {"_type": "playlist", "id": "UC123-shorts", "entries": [
      {"_type": "url", "id": "vid1", "title": "First again"},
      {"_type": "url", "id": "vid3", "title": "[Private video]"}
    ]}
  ]
}`

func TestListVideosFlattensAndDedupes(t *testing.T) {
	runner := &fakeRunner{stdout: channelJSON}
	client := newTestClient(t, runner, nil)

	videos, err := client.ListVideos(context.Background(), "https://www.youtube.com/@chan")
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		ids = append(ids, v.ID)
	}
	if strings.Join(ids, ",") != "vid1,vid2,vid3" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if videos[0].Title != "First" || videos[0].Duration == nil || *videos[0].Duration != 61 {
		t.Fatalf("unexpected first video %+v", videos[0])
	}
	if videos[1].URL != "https://www.youtube.com/watch?v=vid2" {
		t.Fatalf("unexpected resolved URL %q", videos[1].URL)
	}

	got := runner.calls[0]
	if got.name != "yt-dlp-test" {
		t.Fatalf("expected configured binary, got %q", got.name)
	}
	if !slices.Contains(got.args, "--flat-playlist") || got.args[len(got.args)-1] != "https://www.youtube.com/@chan" {
		t.Fatalf("unexpected args %v", got.args)
	}
}

func TestListVideosSingleVideo(t *testing.T) {
	runner := &fakeRunner{stdout: `{"id":"abc","title":"Solo","upload_date":"20240102","uploader":"Me","webpage_url":"https://www.youtube.com/watch?v=abc"}`}
	client := newTestClient(t, runner, nil)

	videos, err := client.ListVideos(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(videos) != 1 || videos[0].Key() != "20240102_abc" || videos[0].Uploader != "Me" {
		t.Fatalf("unexpected videos %+v", videos)
	}
}

func TestListVideosFailuresAreExtractionErrors(t *testing.T) {
	cases := map[string]*fakeRunner{
		"tool error": {stderr: "ERROR: Unsupported URL: https://example.com", err: errors.New("exit status 1")},
		"empty":      {stdout: ""},
		"bad json":   {stdout: "{not json"},
		"no videos":  {stdout: `{"_type":"playlist","entries":[]}`},
	}
	for name, runner := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, runner, nil)
			_, err := client.ListVideos(context.Background(), "https://example.com")
			if !errors.Is(err, services.ErrExtraction) {
				t.Fatalf("expected extraction error, got %v", err)
			}
		})
	}
}

func TestFetchCaptionsArgsAndFiles(t *testing.T) {
	runner := &fakeRunner{files: []string{"abc.es.vtt", "abc.en.vtt", "abc.info.json"}}
	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookies, []byte("# Netscape"), 0o600); err != nil {
		t.Fatal(err)
	}
	client := newTestClient(t, runner, func(cfg *config.Config) { cfg.YTDLP.CookiesPath = cookies })

	work := filepath.Join(t.TempDir(), "work")
	files, err := client.FetchCaptions(context.Background(), model.Video{ID: "abc"}, FetchOptions{
		Languages: []string{"en", "es"},
		WorkDir:   work,
	})
	if err != nil {
		t.Fatalf("FetchCaptions: %v", err)
	}
	want := []string{filepath.Join(work, "abc.en.vtt"), filepath.Join(work, "abc.es.vtt")}
	if !slices.Equal(files, want) {
		t.Fatalf("unexpected files %v", files)
	}

	args := runner.calls[0].args
	for _, flag := range []string{"--skip-download", "--write-subs", "--write-auto-subs"} {
		if !slices.Contains(args, flag) {
			t.Fatalf("expected %s in %v", flag, args)
		}
	}
	if argValue(args, "--sub-langs") != "en,es" {
		t.Fatalf("unexpected --sub-langs in %v", args)
	}
	if argValue(args, "--cookies") != cookies {
		t.Fatalf("expected cookies path in %v", args)
	}
	if args[len(args)-1] != "https://www.youtube.com/watch?v=abc" {
		t.Fatalf("expected watch URL last, got %v", args)
	}
}

func TestFetchCaptionsAutoOnlySkipsManualSubs(t *testing.T) {
	runner := &fakeRunner{}
	client := newTestClient(t, runner, nil)
	files, err := client.FetchCaptions(context.Background(), model.Video{ID: "abc"}, FetchOptions{AutoOnly: true, WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("FetchCaptions: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %v", files)
	}
	if slices.Contains(runner.calls[0].args, "--write-subs") {
		t.Fatalf("auto-only fetch must not request manual subs: %v", runner.calls[0].args)
	}
	if argValue(runner.calls[0].args, "--sub-langs") != "en.*,en,-live_chat" {
		t.Fatalf("expected default language selector, got %v", runner.calls[0].args)
	}
}

func TestFetchCaptionsClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		stderr    string
		retryable bool
		class     retry.Class
	}{
		{"unavailable", "WARNING: x\nERROR: [youtube] abc: Video unavailable", false, retry.ClassUnavailable},
		{"private", "ERROR: [youtube] abc: Private video. Sign in if you've been granted access to this video", false, retry.ClassUnavailable},
		{"rate limited", "ERROR: Unable to download webpage: HTTP Error 429: Too Many Requests", true, retry.ClassRateLimited},
		{"bad gateway", "ERROR: HTTP Error 502: Bad Gateway", true, retry.ClassNetwork},
		{"unknown", "something unexpected", true, retry.ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{stderr: tc.stderr, err: errors.New("exit status 1")}
			client := newTestClient(t, runner, nil)
			_, err := client.FetchCaptions(context.Background(), model.Video{ID: "abc"}, FetchOptions{WorkDir: t.TempDir()})
			if err == nil {
				t.Fatal("expected error")
			}
			var classified *retry.Error
			if !errors.As(err, &classified) {
				t.Fatalf("expected *retry.Error, got %T", err)
			}
			if classified.ItemID != "abc" {
				t.Fatalf("expected item id on error, got %q", classified.ItemID)
			}
			if retry.IsRetryable(err) != tc.retryable {
				t.Fatalf("retryable = %v, want %v (%v)", retry.IsRetryable(err), tc.retryable, err)
			}
			if classified.Class != tc.class {
				t.Fatalf("class = %s, want %s", classified.Class, tc.class)
			}
			if !errors.Is(err, services.ErrDownload) {
				t.Fatalf("expected download marker, got %v", err)
			}
		})
	}
}

func TestFetchCaptionsTimeoutIsRetryable(t *testing.T) {
	runner := &fakeRunner{block: true}
	cfg := config.Default()
	client := New(&cfg, nil, WithRunner(runner.run), WithTimeout(20*time.Millisecond))

	_, err := client.FetchCaptions(context.Background(), model.Video{ID: "abc"}, FetchOptions{WorkDir: t.TempDir()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !retry.IsRetryable(err) || retry.ClassOf(err) != retry.ClassTimeout {
		t.Fatalf("expected retryable timeout, got class %s", retry.ClassOf(err))
	}
}

func TestFetchCaptionsMissingCookiesIsTerminal(t *testing.T) {
	runner := &fakeRunner{}
	client := newTestClient(t, runner, func(cfg *config.Config) {
		cfg.YTDLP.CookiesPath = filepath.Join(t.TempDir(), "missing.txt")
	})
	_, err := client.FetchCaptions(context.Background(), model.Video{ID: "abc"}, FetchOptions{WorkDir: t.TempDir()})
	if err == nil || retry.IsRetryable(err) {
		t.Fatalf("expected terminal cookies error, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("yt-dlp should not run without a valid cookies file")
	}
}

func TestEnrichFillsMissingFields(t *testing.T) {
	runner := &fakeRunner{stdout: `{"id":"abc","title":"Full title","upload_date":"20230405","duration":12.5,"channel":"Chan"}`}
	client := newTestClient(t, runner, nil)

	got, err := client.Enrich(context.Background(), model.Video{ID: "abc", Title: "Flat title"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got.Title != "Flat title" {
		t.Fatalf("enrichment overwrote title: %q", got.Title)
	}
	if got.Key() != "20230405_abc" || got.Uploader != "Chan" || got.Duration == nil {
		t.Fatalf("expected missing fields filled, got %+v", got)
	}
	if !slices.Contains(runner.calls[0].args, "--skip-download") {
		t.Fatalf("unexpected args %v", runner.calls[0].args)
	}
}

func TestStderrTail(t *testing.T) {
	in := "[youtube] abc: Downloading webpage\nWARNING: slow\nERROR: first\nERROR: second\n"
	if got := stderrTail([]byte(in)); got != "ERROR: first; ERROR: second" {
		t.Fatalf("unexpected tail %q", got)
	}
	if got := stderrTail([]byte("a\nb\nc\nd\n")); got != "b; c; d" {
		t.Fatalf("unexpected tail %q", got)
	}
	if got := stderrTail(nil); got != "" {
		t.Fatalf("expected empty tail, got %q", got)
	}
}
