package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ytsubs/internal/model"
	"ytsubs/internal/retry"
	"ytsubs/internal/services"
	"ytsubs/internal/textutil"
)

// FetchOptions selects which caption tracks to download.
type FetchOptions struct {
	Languages []string
	AutoOnly  bool
	WorkDir   string
}

// SubLangs renders the --sub-langs selector.
func SubLangs(languages []string) string {
	cleaned := make([]string, 0, len(languages))
	for _, lang := range languages {
		if lang = strings.TrimSpace(lang); lang != "" {
			cleaned = append(cleaned, lang)
		}
	}
	if len(cleaned) == 0 {
		return "en.*,en,-live_chat"
	}
	return strings.Join(cleaned, ",")
}

// FetchCaptions downloads caption files for v into opts.WorkDir and returns
// their paths sorted by name. An empty result with a nil error means the
// video has no captions in the requested languages.
//
// Errors are returned as *retry.Error: unavailable, private, removed and
// similar conditions are terminal, everything else is retryable.
func (c *Client) FetchCaptions(ctx context.Context, v model.Video, opts FetchOptions) ([]string, error) {
	if strings.TrimSpace(opts.WorkDir) == "" {
		return nil, retry.Mark(services.Wrap(services.ErrConfiguration, "fetch", "captions", "work directory is required", nil), false, v.ID)
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, retry.Mark(services.Wrap(services.ErrFileOperation, "fetch", "create work dir", opts.WorkDir, err), true, v.ID)
	}
	cookies, err := c.cookieArgs()
	if err != nil {
		return nil, retry.Mark(services.Wrap(services.ErrConfiguration, "fetch", "cookies", "", err), false, v.ID)
	}

	if _, _, err := c.invoke(ctx, captionArgs(v, opts, cookies)); err != nil {
		return nil, retry.FetchFailure(
			services.Wrap(services.ErrDownload, "fetch", "captions", v.ID, err),
			v.ID,
		)
	}

	files, err := CaptionFiles(opts.WorkDir)
	if err != nil {
		return nil, retry.Mark(services.Wrap(services.ErrFileOperation, "fetch", "list caption files", opts.WorkDir, err), true, v.ID)
	}
	return files, nil
}

func captionArgs(v model.Video, opts FetchOptions, cookies []string) []string {
	args := []string{
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"--write-auto-subs",
	}
	if !opts.AutoOnly {
		args = append(args, "--write-subs")
	}
	args = append(args,
		"--sub-langs", SubLangs(opts.Languages),
		"--sub-format", "vtt/srt/best",
		"-P", opts.WorkDir,
		"-o", textutil.SanitizeKey(v.ID)+".%(ext)s",
	)
	args = append(args, cookies...)
	return append(args, model.WatchURL(v.ID, v.URL))
}

// CaptionFiles lists .vtt and .srt files directly inside dir.
func CaptionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".vtt", ".srt":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
