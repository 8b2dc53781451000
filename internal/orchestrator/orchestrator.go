package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ytsubs/internal/config"
	"ytsubs/internal/fileutil"
	"ytsubs/internal/logging"
	"ytsubs/internal/model"
	"ytsubs/internal/progress"
	"ytsubs/internal/retry"
	"ytsubs/internal/services"
	"ytsubs/internal/stats"
	"ytsubs/internal/taskqueue"
	"ytsubs/internal/ytdlp"
)

// workDirName holds per-run scratch directories inside the output directory.
const workDirName = ".work"

// rawDirName receives the original caption files when they are kept.
const rawDirName = "raw"

// Fetcher downloads caption files for one video into opts.WorkDir.
type Fetcher interface {
	FetchCaptions(ctx context.Context, v model.Video, opts ytdlp.FetchOptions) ([]string, error)
}

// Options controls a run.
type Options struct {
	OutputDir     string
	WorkDir       string
	Format        string
	Languages     []string
	AutoOnly      bool
	Concurrency   int
	KeepWorkFiles bool
	// RateLimit spaces fetch invocations; zero disables limiting.
	RateLimit float64
	Retry     retry.Policy
	Progress  io.Writer
	Color     bool
	Clock     func() time.Time
}

// OptionsFromConfig maps the download and retry sections onto Options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		OutputDir:     cfg.Paths.OutputDir,
		Format:        cfg.Download.Format,
		Languages:     append([]string(nil), cfg.Download.Languages...),
		AutoOnly:      cfg.Download.AutoOnly,
		Concurrency:   cfg.Download.Concurrency,
		KeepWorkFiles: cfg.Download.KeepWorkFiles,
		RateLimit:     cfg.Download.RateLimitPerSecond,
		Retry:         retry.FromConfig(cfg.Retry, logger),
	}
}

// Outcome is the result for one video.
type Outcome struct {
	Video     model.Video
	Files     []string
	Bytes     int64
	Languages []string
	Attempts  int
	Err       error
}

// Result is what a run surfaces to its caller.
type Result struct {
	RunID     string
	Succeeded []Outcome
	Failed    []Outcome
	Stats     stats.Stats
	// Progress is the tracker state at completion.
	Progress  progress.State
	Report    string
}

// HasFailures reports whether any video failed; callers map this to a
// non-zero exit status.
func (r Result) HasFailures() bool {
	return len(r.Failed) > 0
}

// Orchestrator is reusable across runs. Every call to Run builds its own
// tracker and collector.
type Orchestrator struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
	limiter *rate.Limiter
}

// New validates opts and returns an orchestrator. Invalid options are
// configuration errors and no work is started.
func New(fetcher Fetcher, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "fetcher is required", nil)
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "output directory is required", nil)
	}
	if err := config.ValidateFormat(opts.Format); err != nil {
		return nil, err
	}
	if opts.Concurrency < 1 {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init",
			fmt.Sprintf("concurrency must be at least 1, got %d", opts.Concurrency), nil)
	}
	if opts.RateLimit < 0 {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "rate limit must be >= 0", nil)
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(opts.OutputDir, workDirName)
	}
	// An unset policy has no backoff factor; fall back to the defaults and
	// keep any injected sleeper.
	if opts.Retry.BackoffFactor == 0 {
		def := retry.DefaultPolicy()
		def.Sleep, def.Logger = opts.Retry.Sleep, opts.Retry.Logger
		opts.Retry = def
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	o := &Orchestrator{
		fetcher: fetcher,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "orchestrator"),
	}
	if opts.RateLimit > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return o, nil
}

// Run processes videos and returns the per-video outcomes with a statistics
// snapshot. Per-video failures never abort the run; only setup errors are
// returned as err.
func (o *Orchestrator) Run(ctx context.Context, videos []model.Video) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	videos = model.Dedupe(videos)

	lock, err := fileutil.LockDir(o.opts.OutputDir)
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "orchestrator", "lock output directory", o.opts.OutputDir, err)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			o.logger.Warn("release output lock failed", logging.Error(unlockErr))
		}
	}()

	r := &run{
		orchestrator: o,
		id:           uuid.NewString(),
		tracker:      progress.New(o.opts.Progress, progress.WithColor(o.opts.Color), progress.WithLogger(o.logger)),
		collector:    stats.New(stats.WithClock(o.opts.Clock)),
	}
	r.workDir = filepath.Join(o.opts.WorkDir, r.id)
	ctx = services.WithRunID(ctx, r.id)
	r.logger = logging.WithContext(ctx, o.logger)

	defer r.cleanupWorkDir()

	r.logger.Info("run started",
		logging.Int("videos", len(videos)),
		logging.Int("concurrency", o.opts.Concurrency),
		logging.String("output_dir", o.opts.OutputDir),
		logging.String("format", o.opts.Format),
	)
	r.collector.Start(len(videos))
	if err := r.tracker.Start(len(videos)); err != nil {
		return Result{}, fmt.Errorf("start progress: %w", err)
	}

	queued, err := taskqueue.Run(ctx, videos, o.opts.Concurrency, r.process)
	if err != nil {
		return Result{}, err
	}

	result := Result{RunID: r.id}
	for _, s := range queued.Succeeded {
		result.Succeeded = append(result.Succeeded, s.Result)
	}
	for _, f := range queued.Failed {
		// Items that were never admitted, or whose worker panicked, have
		// not been recorded yet.
		if !r.recorded(f.Item.ID) {
			r.recordFailure(r.logger, f.Item, f.Err)
		}
		result.Failed = append(result.Failed, Outcome{Video: f.Item, Err: f.Err})
	}

	r.collector.End()
	result.Progress = r.tracker.Complete()
	result.Stats = r.collector.Snapshot()
	result.Report = stats.Render(result.Stats)

	r.logger.Info("run finished",
		logging.Int("succeeded", result.Stats.Succeeded),
		logging.Int("failed", result.Stats.Failed),
		logging.Int("files", result.Stats.TotalFiles),
		logging.Duration("elapsed", result.Stats.Elapsed),
	)
	return result, nil
}

func (r *run) cleanupWorkDir() {
	if err := os.RemoveAll(r.workDir); err != nil {
		r.logger.Warn("remove work directory failed", logging.String("path", r.workDir), logging.Error(err))
	}
	// Only succeeds when no other run left files behind.
	if err := os.Remove(r.orchestrator.opts.WorkDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Debug("work root kept", logging.String("path", r.orchestrator.opts.WorkDir))
	}
}
