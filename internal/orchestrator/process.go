package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"ytsubs/internal/captions"
	"ytsubs/internal/config"
	"ytsubs/internal/fileutil"
	"ytsubs/internal/logging"
	"ytsubs/internal/model"
	"ytsubs/internal/progress"
	"ytsubs/internal/retry"
	"ytsubs/internal/services"
	"ytsubs/internal/stats"
	"ytsubs/internal/ytdlp"
)

// run is the state owned by a single Run call.
type run struct {
	orchestrator *Orchestrator
	id           string
	workDir      string
	logger       *slog.Logger
	tracker      *progress.Tracker
	collector    *stats.Collector

	mu   sync.Mutex
	done map[string]struct{}
}

func (r *run) markRecorded(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		r.done = make(map[string]struct{})
	}
	r.done[id] = struct{}{}
}

func (r *run) recorded(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.done[id]
	return ok
}

// process is the task queue worker: fetch, convert, persist, report.
func (r *run) process(ctx context.Context, v model.Video) (Outcome, error) {
	ctx = services.WithVideoID(ctx, v.ID)
	logger := logging.WithContext(ctx, r.orchestrator.logger)

	if err := r.tracker.StartItem(v.ID, v.Label()); err != nil {
		logger.Debug("progress start rejected", logging.Error(err))
	}

	outcome, err := retry.Do(ctx, r.orchestrator.opts.Retry, func(ctx context.Context, attempt int) (Outcome, error) {
		out, err := r.attempt(ctx, v, logger)
		out.Attempts = attempt + 1
		return out, err
	})
	if err != nil {
		r.recordFailure(logger, v, err)
		return Outcome{}, err
	}

	r.markRecorded(v.ID)
	r.collector.RecordSuccess(v.ID, v.Title, len(outcome.Files), outcome.Bytes, outcome.Languages)
	if err := r.tracker.SucceedItem(v.ID, v.Label()); err != nil {
		logger.Debug("progress update rejected", logging.Error(err))
	}
	logger.Info("video completed",
		logging.Int("files", len(outcome.Files)),
		logging.Int64("bytes", outcome.Bytes),
		logging.Int(logging.FieldAttempt, outcome.Attempts),
	)
	return outcome, nil
}

// recordFailure counts v as failed in both the collector and the tracker.
// Items that never reached a worker are started first so the tracker's
// totals match the statistics.
func (r *run) recordFailure(logger *slog.Logger, v model.Video, err error) {
	r.markRecorded(v.ID)
	r.collector.RecordFailure(v.ID, v.Title, err)
	if status, ok := r.tracker.ItemStatus(v.ID); !ok || status == progress.StatusPending {
		if startErr := r.tracker.StartItem(v.ID, v.Label()); startErr != nil {
			logger.Debug("progress start rejected", logging.Error(startErr))
		}
	}
	if trackErr := r.tracker.FailItem(v.ID, v.Label(), errorSummary(err)); trackErr != nil {
		logger.Debug("progress update rejected", logging.Error(trackErr))
	}
	logging.WarnWithContext(logger, "video failed", "video_failed",
		logging.String(logging.FieldVideoID, v.ID),
		logging.String("class", retry.ClassOf(err).String()),
		logging.Bool("retryable", retry.IsRetryable(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "see the run report for the failed video list"),
	)
}

// attempt runs one fetch and conversion pass in a clean work directory.
func (r *run) attempt(ctx context.Context, v model.Video, logger *slog.Logger) (Outcome, error) {
	o := r.orchestrator
	dir := filepath.Join(r.workDir, v.Key())
	if err := os.RemoveAll(dir); err != nil {
		return Outcome{}, retry.Mark(services.Wrap(services.ErrFileOperation, "fetch", "reset work dir", dir, err), true, v.ID)
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return Outcome{}, retry.Mark(fmt.Errorf("rate limit wait: %w", err), false, v.ID)
		}
	}

	files, err := o.fetcher.FetchCaptions(ctx, v, ytdlp.FetchOptions{
		Languages: o.opts.Languages,
		AutoOnly:  o.opts.AutoOnly,
		WorkDir:   dir,
	})
	if err != nil {
		return Outcome{}, retry.FetchFailure(err, v.ID)
	}
	if len(files) == 0 {
		return Outcome{}, retry.Classified(
			services.Wrap(services.ErrNoSubtitles, "fetch", "captions", v.ID, nil),
			retry.ClassNoSubtitles,
			v.ID,
		)
	}
	logger.Debug("caption files fetched", logging.Int("files", len(files)))
	return r.convert(v, files, logger)
}

// convert parses each caption file and writes one output per language. A
// file that fails to parse is skipped; the video fails only when no file
// could be converted.
func (r *run) convert(v model.Video, files []string, logger *slog.Logger) (Outcome, error) {
	o := r.orchestrator
	out := Outcome{Video: v}
	var parseErr error

	for _, file := range files {
		doc, err := captions.ParseFile(file)
		if err != nil {
			if !captions.IsParseError(err) {
				return Outcome{}, retry.Mark(services.Wrap(services.ErrFileOperation, "convert", "read caption file", file, err), true, v.ID)
			}
			logging.WarnWithContext(logger, "caption file skipped", "caption_parse_failed",
				logging.String("path", file),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "enable download.keep_work_files to inspect the raw file"),
			)
			if parseErr == nil {
				parseErr = err
			}
			continue
		}

		data, ext, err := render(o.opts.Format, doc, v.ID)
		if err != nil {
			return Outcome{}, retry.Mark(services.Wrap(services.ErrFileOperation, "convert", "render", file, err), false, v.ID)
		}
		target := OutputPath(o.opts.OutputDir, v, doc.Language, ext)
		if slices.Contains(out.Files, target) {
			continue
		}
		if err := fileutil.WriteFileAtomic(target, data); err != nil {
			return Outcome{}, retry.Mark(services.Wrap(services.ErrFileOperation, "persist", "write output", target, err), true, v.ID)
		}
		out.Files = append(out.Files, target)
		out.Bytes += int64(len(data))
		if !slices.Contains(out.Languages, doc.Language) {
			out.Languages = append(out.Languages, doc.Language)
		}

		if o.opts.KeepWorkFiles {
			raw := filepath.Join(o.opts.OutputDir, rawDirName, v.Key()+"."+doc.Language+filepath.Ext(file))
			if err := fileutil.CopyFile(file, raw); err != nil {
				logger.Warn("keep raw caption file failed", logging.String("path", raw), logging.Error(err))
			}
		}
	}

	if len(out.Files) == 0 {
		return Outcome{}, retry.Mark(parseErr, false, v.ID)
	}
	return out, nil
}

// OutputPath returns the deterministic output location for one language of v.
func OutputPath(outputDir string, v model.Video, language, ext string) string {
	return filepath.Join(outputDir, v.Key()+"."+language+ext)
}

func render(format string, doc *captions.Document, videoID string) ([]byte, string, error) {
	switch format {
	case config.FormatJSON:
		data, err := json.MarshalIndent(captions.ToTimestampedJSON(doc, videoID), "", "  ")
		if err != nil {
			return nil, "", err
		}
		return append(data, '\n'), ".json", nil
	default:
		return []byte(captions.ToPlainText(doc)), ".txt", nil
	}
}

func errorSummary(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
