package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"ytsubs/internal/config"
	"ytsubs/internal/deps"
	"ytsubs/internal/history"
	"ytsubs/internal/logging"
	"ytsubs/internal/model"
	"ytsubs/internal/orchestrator"
	"ytsubs/internal/stats"
	"ytsubs/internal/taskqueue"
	"ytsubs/internal/ytdlp"
)

// errVideosFailed maps a run with failures to a non-zero exit status.
var errVideosFailed = errors.New("one or more videos failed")

type downloadFlags struct {
	output        string
	format        string
	languages     []string
	autoOnly      bool
	concurrency   int
	keepWorkFiles bool
	rateLimit     float64
	noEnrich      bool
	noHistory     bool
	jsonOutput    bool
}

type downloadJSON struct {
	RunID     string       `json:"run_id"`
	Succeeded []videoJSON  `json:"succeeded"`
	Failed    []videoJSON  `json:"failed"`
	Stats     stats.Stats  `json:"stats"`
	Sources   []sourceJSON `json:"failed_sources,omitempty"`
}

type videoJSON struct {
	ID    string   `json:"id"`
	Title string   `json:"title,omitempty"`
	Files []string `json:"files,omitempty"`
	Error string   `json:"error,omitempty"`
}

type sourceJSON struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// sourceFailure is a URL whose video list could not be resolved.
type sourceFailure struct {
	URL string
	Err error
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var flags downloadFlags

	cmd := &cobra.Command{
		Use:   "download <url> [url...]",
		Short: "Download subtitles for videos, playlists, or channels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCfg, err := applyDownloadFlags(cmd, cfg, flags)
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return runDownload(cmd, runCfg, logger, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output directory (overrides paths.output_dir)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format: text or json")
	cmd.Flags().StringSliceVarP(&flags.languages, "lang", "l", nil, "Subtitle languages (repeatable, comma separated)")
	cmd.Flags().BoolVar(&flags.autoOnly, "auto-only", false, "Only fetch auto-generated captions")
	cmd.Flags().IntVarP(&flags.concurrency, "concurrency", "j", 0, "Videos processed in parallel")
	cmd.Flags().BoolVar(&flags.keepWorkFiles, "keep-work-files", false, "Copy raw caption files into <output>/raw")
	cmd.Flags().Float64Var(&flags.rateLimit, "rate-limit", 0, "Maximum yt-dlp fetches per second (0 disables)")
	cmd.Flags().BoolVar(&flags.noEnrich, "no-enrich", false, "Skip the metadata fetch for videos missing an upload date")
	cmd.Flags().BoolVar(&flags.noHistory, "no-history", false, "Do not record this run in the history database")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the run result as JSON")
	return cmd
}

// applyDownloadFlags returns a copy of cfg with explicitly set flags applied.
func applyDownloadFlags(cmd *cobra.Command, cfg *config.Config, flags downloadFlags) (*config.Config, error) {
	runCfg := *cfg
	runCfg.Download.Languages = append([]string(nil), cfg.Download.Languages...)
	changed := cmd.Flags().Changed

	if changed("output") {
		dir, err := config.ExpandPath(flags.output)
		if err != nil {
			return nil, fmt.Errorf("resolve output directory: %w", err)
		}
		runCfg.Paths.OutputDir = dir
	}
	if changed("format") {
		format := strings.ToLower(strings.TrimSpace(flags.format))
		if err := config.ValidateFormat(format); err != nil {
			return nil, err
		}
		runCfg.Download.Format = format
	}
	if changed("lang") {
		langs, err := config.NormalizeLanguages(flags.languages)
		if err != nil {
			return nil, err
		}
		runCfg.Download.Languages = langs
	}
	if changed("auto-only") {
		runCfg.Download.AutoOnly = flags.autoOnly
	}
	if changed("concurrency") {
		runCfg.Download.Concurrency = runCfg.ClampConcurrency(flags.concurrency)
	}
	if changed("keep-work-files") {
		runCfg.Download.KeepWorkFiles = flags.keepWorkFiles
	}
	if changed("rate-limit") {
		runCfg.Download.RateLimitPerSecond = flags.rateLimit
	}
	if flags.noEnrich {
		runCfg.Download.EnrichMetadata = false
	}
	if flags.noHistory {
		runCfg.History.Enabled = false
	}
	if err := runCfg.Validate(); err != nil {
		return nil, err
	}
	return &runCfg, nil
}

func runDownload(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, flags downloadFlags, sources []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := deps.RequireAvailable(deps.Check(cfg)); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	client := ytdlp.New(cfg, logger)
	videos, failedSources := resolveSources(ctx, client, sources, logger)
	if len(videos) == 0 {
		errs := make([]error, 0, len(failedSources))
		for _, f := range failedSources {
			errs = append(errs, f.Err)
		}
		return errors.Join(errs...)
	}
	if cfg.Download.EnrichMetadata {
		videos = enrichVideos(ctx, client, videos, cfg.Download.Concurrency, logger)
	}

	// Progress lines share stdout with the report unless stdout carries JSON.
	progressOut := cmd.OutOrStdout()
	if flags.jsonOutput {
		progressOut = cmd.ErrOrStderr()
	}
	opts := orchestrator.OptionsFromConfig(cfg, logger)
	opts.Progress = progressOut
	opts.Color = shouldColorize(progressOut)

	orch, err := orchestrator.New(client, opts, logger)
	if err != nil {
		return err
	}
	result, err := orch.Run(ctx, videos)
	if err != nil {
		return err
	}

	if cfg.History.Enabled {
		recordHistory(ctx, cfg, sources, result, logger)
	}

	if flags.jsonOutput {
		if err := writeJSON(cmd, buildDownloadJSON(result, failedSources)); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		fmt.Fprintln(out, result.Report)
		for i, f := range failedSources {
			if i == 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Source failed: %v\n", f.Err)
		}
	}

	if result.HasFailures() || len(failedSources) > 0 {
		return errVideosFailed
	}
	return nil
}

// resolveSources lists videos for every URL. A failing URL does not stop the
// others; its error is returned alongside the videos that were found.
func resolveSources(ctx context.Context, client *ytdlp.Client, sources []string, logger *slog.Logger) ([]model.Video, []sourceFailure) {
	var (
		videos []model.Video
		failed []sourceFailure
	)
	for _, source := range sources {
		found, err := client.ListVideos(ctx, source)
		if err != nil {
			logging.WarnWithContext(logger, "source extraction failed", "extraction_failed",
				logging.String("source", source),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the URL and that yt-dlp is up to date"),
			)
			failed = append(failed, sourceFailure{URL: source, Err: err})
			continue
		}
		videos = append(videos, found...)
	}
	return model.Dedupe(videos), failed
}

// enrichVideos fetches full metadata for videos lacking an upload date or
// title, through the task queue. Failures keep the original descriptor.
func enrichVideos(ctx context.Context, client *ytdlp.Client, videos []model.Video, concurrency int, logger *slog.Logger) []model.Video {
	var pending []int
	for i, v := range videos {
		if v.NeedsEnrichment() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return videos
	}

	result, err := taskqueue.Run(ctx, pending, concurrency, func(ctx context.Context, idx int) (model.Video, error) {
		return client.Enrich(ctx, videos[idx])
	})
	if err != nil {
		logger.Warn("metadata enrichment skipped", logging.Error(err))
		return videos
	}

	out := append([]model.Video(nil), videos...)
	for _, s := range result.Succeeded {
		out[s.Item] = s.Result
	}
	for _, f := range result.Failed {
		logger.Debug("metadata enrichment failed",
			logging.String(logging.FieldVideoID, videos[f.Item].ID),
			logging.Error(f.Err),
		)
	}
	logger.Info("metadata enriched",
		logging.Int("requested", len(pending)),
		logging.Int("enriched", len(result.Succeeded)),
	)
	return out
}

func recordHistory(ctx context.Context, cfg *config.Config, sources []string, result orchestrator.Result, logger *slog.Logger) {
	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		logger.Warn("open history failed", logging.Error(err))
		return
	}
	defer store.Close()

	run := history.Run{
		ID:        result.RunID,
		StartedAt: result.Stats.StartedAt,
		EndedAt:   result.Stats.EndedAt,
		Sources:   sources,
		OutputDir: cfg.Paths.OutputDir,
		Format:    cfg.Download.Format,
		Total:     result.Stats.TotalVideos,
		Succeeded: result.Stats.Succeeded,
		Failed:    result.Stats.Failed,
		Files:     result.Stats.TotalFiles,
		Bytes:     result.Stats.TotalBytes,
		Languages: result.Stats.Languages,
	}
	outcomes := make([]history.VideoOutcome, 0, len(result.Succeeded)+len(result.Failed))
	for _, s := range result.Succeeded {
		outcomes = append(outcomes, history.VideoOutcome{
			VideoID: s.Video.ID,
			Title:   s.Video.Title,
			Status:  history.StatusSucceeded,
			Files:   s.Files,
			Bytes:   s.Bytes,
		})
	}
	for _, f := range result.Failed {
		outcomes = append(outcomes, history.VideoOutcome{
			VideoID: f.Video.ID,
			Title:   f.Video.Title,
			Status:  history.StatusFailed,
			Error:   errorText(f.Err),
		})
	}
	if err := store.RecordRun(ctx, run, outcomes); err != nil {
		logger.Warn("record history failed", logging.Error(err))
	}
}

func buildDownloadJSON(result orchestrator.Result, failedSources []sourceFailure) downloadJSON {
	payload := downloadJSON{
		RunID:     result.RunID,
		Succeeded: []videoJSON{},
		Failed:    []videoJSON{},
		Stats:     result.Stats,
	}
	for _, s := range result.Succeeded {
		payload.Succeeded = append(payload.Succeeded, videoJSON{ID: s.Video.ID, Title: s.Video.Title, Files: s.Files})
	}
	for _, f := range result.Failed {
		payload.Failed = append(payload.Failed, videoJSON{ID: f.Video.ID, Title: f.Video.Title, Error: errorText(f.Err)})
	}
	for _, f := range failedSources {
		payload.Sources = append(payload.Sources, sourceJSON{URL: f.URL, Error: errorText(f.Err)})
	}
	return payload
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
