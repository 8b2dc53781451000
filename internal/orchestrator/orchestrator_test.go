package orchestrator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytsubs/internal/captions"
	"ytsubs/internal/config"
	"ytsubs/internal/fileutil"
	"ytsubs/internal/logging"
	"ytsubs/internal/model"
	"ytsubs/internal/orchestrator"
	"ytsubs/internal/retry"
	"ytsubs/internal/services"
	"ytsubs/internal/ytdlp"
)

type fetchFunc func(v model.Video, attempt int, dir string) ([]string, error)

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fetch fetchFunc
}

func newFakeFetcher(fn fetchFunc) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fetch: fn}
}

func (f *fakeFetcher) FetchCaptions(_ context.Context, v model.Video, opts ytdlp.FetchOptions) ([]string, error) {
	f.mu.Lock()
	f.calls[v.ID]++
	attempt := f.calls[v.ID]
	f.mu.Unlock()
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, err
	}
	return f.fetch(v, attempt, opts.WorkDir)
}

func (f *fakeFetcher) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// writeVTT runs on worker goroutines, so it reports errors instead of
// failing the test directly.
func writeVTT(dir, id, lang string, cues ...string) (string, error) {
	var b strings.Builder
	b.WriteString("WEBVTT\nKind: captions\nLanguage: " + lang + "\n\n")
	for i, cue := range cues {
		fmt.Fprintf(&b, "00:00:%02d.000 --> 00:00:%02d.000\n%s\n\n", i, i+1, cue)
	}
	path := filepath.Join(dir, id+"."+lang+".vtt")
	return path, os.WriteFile(path, []byte(b.String()), 0o644)
}

func oneFile(path string, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func testOptions(t *testing.T, sleeper *recordingSleeper) orchestrator.Options {
	t.Helper()
	return orchestrator.Options{
		OutputDir:   filepath.Join(t.TempDir(), "subs"),
		Format:      config.FormatText,
		Languages:   []string{"en"},
		Concurrency: 2,
		Retry: retry.Policy{
			MaxRetries:    3,
			BaseDelay:     time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2,
			Sleep:         sleeper.Sleep,
		},
	}
}

func videos(ids ...string) []model.Video {
	out := make([]model.Video, len(ids))
	for i, id := range ids {
		out[i] = model.Video{ID: id, Title: "Video " + id, UploadDateRaw: "20240102"}
	}
	return out
}

func TestRunPartialSuccessWithMissingSubtitles(t *testing.T) {
	fetcher := newFakeFetcher(func(v model.Video, _ int, dir string) ([]string, error) {
		if v.ID == "vid3" {
			return nil, nil
		}
		return oneFile(writeVTT(dir, v.ID, "en", "Hello", "Hello", "World"))
	})
	var out bytes.Buffer
	opts := testOptions(t, &recordingSleeper{})
	opts.Progress = &out
	orch, err := orchestrator.New(fetcher, opts, logging.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(context.Background(), videos("vid1", "vid2", "vid3", "vid4", "vid5"))
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Len(t, result.Succeeded, 4)
	require.Len(t, result.Failed, 1)
	assert.True(t, result.HasFailures())
	assert.Equal(t, 4, result.Stats.Succeeded)
	assert.Equal(t, 1, result.Stats.Failed)
	assert.Equal(t, 80, result.Stats.SuccessRate)
	assert.Equal(t, []string{"en"}, result.Stats.Languages)

	failed := result.Failed[0]
	assert.Equal(t, "vid3", failed.Video.ID)
	assert.ErrorIs(t, failed.Err, services.ErrNoSubtitles)
	assert.False(t, retry.IsRetryable(failed.Err))
	assert.Equal(t, 1, fetcher.callsFor("vid3"), "no subtitles must not be retried")

	require.Len(t, result.Stats.Failures, 1)
	assert.Contains(t, result.Stats.Failures[0].Error, "no subtitles")
	assert.Equal(t, 1, strings.Count(result.Report, "no subtitles"))
	assert.Contains(t, out.String(), "Completed: 4 succeeded, 1 failed")

	data, err := os.ReadFile(filepath.Join(opts.OutputDir, "20240102_vid1.en.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello\nWorld", string(data))
}

func TestRunIsIdempotent(t *testing.T) {
	fetcher := newFakeFetcher(func(v model.Video, _ int, dir string) ([]string, error) {
		return oneFile(writeVTT(dir, v.ID, "en", "Same text"))
	})
	opts := testOptions(t, &recordingSleeper{})
	orch, err := orchestrator.New(fetcher, opts, logging.NewNop())
	require.NoError(t, err)

	first, err := orch.Run(context.Background(), videos("abc"))
	require.NoError(t, err)
	second, err := orch.Run(context.Background(), videos("abc"))
	require.NoError(t, err)

	require.Len(t, first.Succeeded, 1)
	require.Len(t, second.Succeeded, 1)
	assert.Equal(t, first.Succeeded[0].Files, second.Succeeded[0].Files)
	assert.NotEqual(t, first.RunID, second.RunID)

	entries, err := os.ReadDir(opts.OutputDir)
	require.NoError(t, err)
	var outputs []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".txt") {
			outputs = append(outputs, entry.Name())
		}
	}
	assert.Equal(t, []string{"20240102_abc.en.txt"}, outputs)
	assert.NoDirExists(t, filepath.Join(opts.OutputDir, ".work"))
}

func TestRunRetriesTransientFetchFailures(t *testing.T) {
	fetcher := newFakeFetcher(func(v model.Video, attempt int, dir string) ([]string, error) {
		if attempt <= 2 {
			return nil, errors.New("connect ETIMEDOUT 142.250.1.1:443")
		}
		return oneFile(writeVTT(dir, v.ID, "en", "Recovered"))
	})
	sleeper := &recordingSleeper{}
	orch, err := orchestrator.New(fetcher, testOptions(t, sleeper), logging.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(context.Background(), videos("flaky"))
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, 3, result.Succeeded[0].Attempts)
	assert.Equal(t, 3, fetcher.callsFor("flaky"))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestRunTreatsUnknownFetchFailuresAsRetryable(t *testing.T) {
	fetcher := newFakeFetcher(func(model.Video, int, string) ([]string, error) {
		return nil, errors.New("yt-dlp exited with status 1")
	})
	sleeper := &recordingSleeper{}
	orch, err := orchestrator.New(fetcher, testOptions(t, sleeper), logging.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(context.Background(), videos("broken"))
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, 4, fetcher.callsFor("broken"))
	assert.Len(t, sleeper.delays, 3)
}

func TestRunDoesNotRetryUnavailableVideos(t *testing.T) {
	fetcher := newFakeFetcher(func(model.Video, int, string) ([]string, error) {
		return nil, errors.New("ERROR: [youtube] xyz: Private video. Sign in if you've been granted access")
	})
	sleeper := &recordingSleeper{}
	orch, err := orchestrator.New(fetcher, testOptions(t, sleeper), logging.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(context.Background(), videos("xyz"))
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, fetcher.callsFor("xyz"))
	assert.Empty(t, sleeper.delays)
}

func TestRunParseFailureIsTerminal(t *testing.T) {
	fetcher := newFakeFetcher(func(v model.Video, _ int, dir string) ([]string, error) {
		path := filepath.Join(dir, v.ID+".en.vtt")
		if err := os.WriteFile(path, []byte("not a caption file\n"), 0o644); err != nil {
			return nil, err
		}
		return []string{path}, nil
	})
	sleeper := &recordingSleeper{}
	orch, err := orchestrator.New(fetcher, testOptions(t, sleeper), logging.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(context.Background(), videos("corrupt"))
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	assert.True(t, captions.IsParseError(result.Failed[0].Err))
	assert.Equal(t, 1, fetcher.callsFor("corrupt"))
	assert.Empty(t, sleeper.delays)
}

func TestRunSkipsUnparseableFileWhenAnotherConverts(t *testing.T) {
	fetcher := newFakeFetcher(func(v model.Video, _ int, dir string) ([]string, error) {
		bad := filepath.Join(dir, v.ID+".de.vtt")
		if err := os.WriteFile(bad, []byte("garbage"), 0o644); err != nil {
			return nil, err
		}
		good, err := writeVTT(dir, v.ID, "en", "Fine")
		return []string{bad, good}, err
	})
	orch, err := orchestrator.New(fetcher, testOptions(t, &recordingSleeper{}), logging.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(context.Background(), videos("mixed"))
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, []string{"en"}, result.Succeeded[0].Languages)
	assert.Len(t, result.Succeeded[0].Files, 1)
}

func TestRunWritesJSONTranscripts(t *testing.T) {
	fetcher := newFakeFetcher(func(v model.Video, _ int, dir string) ([]string, error) {
		en, err := writeVTT(dir, v.ID, "en", "One", "Two")
		if err != nil {
			return nil, err
		}
		es, err := writeVTT(dir, v.ID, "es", "Uno")
		return []string{en, es}, err
	})
	opts := testOptions(t, &recordingSleeper{})
	opts.Format = config.FormatJSON
	orch, err := orchestrator.New(fetcher, opts, logging.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(context.Background(), videos("json1"))
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	assert.ElementsMatch(t, []string{"en", "es"}, result.Succeeded[0].Languages)

	data, err := os.ReadFile(filepath.Join(opts.OutputDir, "20240102_json1.en.json"))
	require.NoError(t, err)
	var transcript captions.Transcript
	require.NoError(t, json.Unmarshal(data, &transcript))
	assert.Equal(t, "json1", transcript.VideoID)
	require.Len(t, transcript.Subtitles, 2)
	assert.Equal(t, captions.Cue{Start: "00:00:00.000", End: "00:00:01.000", Text: "One"}, transcript.Subtitles[0])
	assert.Equal(t, result.Succeeded[0].Bytes, result.Stats.TotalBytes)
	assert.Equal(t, 2, result.Stats.TotalFiles)
}

func TestRunKeepsRawFilesWhenRequested(t *testing.T) {
	fetcher := newFakeFetcher(func(v model.Video, _ int, dir string) ([]string, error) {
		return oneFile(writeVTT(dir, v.ID, "en", "Keep me"))
	})
	opts := testOptions(t, &recordingSleeper{})
	opts.KeepWorkFiles = true
	orch, err := orchestrator.New(fetcher, opts, logging.NewNop())
	require.NoError(t, err)

	_, err = orch.Run(context.Background(), videos("raw1"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(opts.OutputDir, "raw", "20240102_raw1.en.vtt"))
}

func TestRunFailsWhenOutputDirectoryIsLocked(t *testing.T) {
	fetcher := newFakeFetcher(func(model.Video, int, string) ([]string, error) { return nil, nil })
	opts := testOptions(t, &recordingSleeper{})
	lock, err := fileutil.LockDir(opts.OutputDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lock.Unlock() })

	orch, err := orchestrator.New(fetcher, opts, logging.NewNop())
	require.NoError(t, err)
	_, err = orch.Run(context.Background(), videos("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrConfiguration)
	assert.ErrorIs(t, err, fileutil.ErrLocked)
	assert.Equal(t, 0, fetcher.callsFor("a"))
}

func TestRunCancelledMidRunKeepsProgressAndStatsInAgreement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	fetcher := newFakeFetcher(func(v model.Video, _ int, dir string) ([]string, error) {
		cancel()
		return oneFile(writeVTT(dir, v.ID, "en", "Only one"))
	})
	var out bytes.Buffer
	opts := testOptions(t, &recordingSleeper{})
	opts.Concurrency = 1
	opts.Progress = &out
	orch, err := orchestrator.New(fetcher, opts, logging.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(ctx, videos("c1", "c2", "c3"))
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	require.Len(t, result.Failed, 2)
	for _, failed := range result.Failed {
		assert.ErrorIs(t, failed.Err, context.Canceled)
	}
	assert.Equal(t, 1, fetcher.callsFor("c1"))

	assert.Equal(t, result.Progress.Total, result.Progress.Completed)
	assert.Equal(t, result.Stats.Succeeded, result.Progress.Succeeded)
	assert.Equal(t, result.Stats.Failed, result.Progress.Failed)
	assert.Equal(t, 2, result.Stats.Failed)
	assert.Contains(t, out.String(), "Completed: 1 succeeded, 2 failed")
	assert.Contains(t, out.String(), "[3/3 100%]")
}

func TestRunCountsEveryVideoOnce(t *testing.T) {
	fetcher := newFakeFetcher(func(v model.Video, _ int, dir string) ([]string, error) {
		if strings.HasSuffix(v.ID, "3") {
			return nil, errors.New("HTTP Error 404: Not Found")
		}
		return oneFile(writeVTT(dir, v.ID, "en", "Text for "+v.ID))
	})
	var ids []string
	for i := range 20 {
		ids = append(ids, fmt.Sprintf("v%02d", i))
	}
	list := append(videos(ids...), videos("v00")...)
	opts := testOptions(t, &recordingSleeper{})
	opts.Concurrency = 4
	orch, err := orchestrator.New(fetcher, opts, logging.NewNop())
	require.NoError(t, err)

	result, err := orch.Run(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, 20, len(result.Succeeded)+len(result.Failed))
	assert.Equal(t, 20, result.Stats.TotalVideos)
	assert.Len(t, result.Failed, 2)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	fetcher := newFakeFetcher(func(model.Video, int, string) ([]string, error) { return nil, nil })
	cases := map[string]func(*orchestrator.Options){
		"zero concurrency": func(o *orchestrator.Options) { o.Concurrency = 0 },
		"bad format":       func(o *orchestrator.Options) { o.Format = "xml" },
		"no output dir":    func(o *orchestrator.Options) { o.OutputDir = "" },
		"negative rate":    func(o *orchestrator.Options) { o.RateLimit = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := testOptions(t, &recordingSleeper{})
			mutate(&opts)
			_, err := orchestrator.New(fetcher, opts, logging.NewNop())
			require.Error(t, err)
			assert.ErrorIs(t, err, services.ErrConfiguration)
		})
	}

	_, err := orchestrator.New(nil, testOptions(t, &recordingSleeper{}), logging.NewNop())
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestOutputPathIsDeterministic(t *testing.T) {
	v := model.Video{ID: "dQw4w9WgXcQ", UploadDateRaw: "20091025"}
	got := orchestrator.OutputPath("/out", v, "en", ".txt")
	assert.Equal(t, filepath.Join("/out", "20091025_dQw4w9WgXcQ.en.txt"), got)
	assert.Equal(t, got, orchestrator.OutputPath("/out", v, "en", ".txt"))
}
