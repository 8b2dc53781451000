// Package ytdlp drives the yt-dlp binary: resolving URLs to videos, reading
// per-video metadata, and downloading caption files. Failures are classified
// for the retry loop here, where yt-dlp's stderr is still available.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"ytsubs/internal/config"
	"ytsubs/internal/logging"
	"ytsubs/internal/textutil"
)

const maxStderrKeep = 2048

// Runner executes a command and returns its captured output.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Client runs yt-dlp with a fixed binary, cookie options, and per-invocation
// timeout.
type Client struct {
	binary             string
	cookiesPath        string
	cookiesFromBrowser string
	timeout            time.Duration
	logger             *slog.Logger
	run                Runner
}

// Option customizes a Client.
type Option func(*Client)

// WithRunner replaces command execution, mainly for tests.
func WithRunner(r Runner) Option {
	return func(c *Client) {
		if r != nil {
			c.run = r
		}
	}
}

// WithTimeout overrides the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New builds a client from the [ytdlp] section and the download timeout.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		binary:  "yt-dlp",
		timeout: 5 * time.Minute,
		logger:  logging.NewComponentLogger(logger, "ytdlp"),
		run:     execRunner,
	}
	if cfg != nil {
		if b := strings.TrimSpace(cfg.YTDLP.Binary); b != "" {
			c.binary = b
		}
		c.cookiesPath = strings.TrimSpace(cfg.YTDLP.CookiesPath)
		c.cookiesFromBrowser = strings.TrimSpace(cfg.YTDLP.CookiesFromBrowser)
		if t := cfg.FetchTimeout(); t > 0 {
			c.timeout = t
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Binary returns the configured yt-dlp executable.
func (c *Client) Binary() string {
	return c.binary
}

// Version returns the output of yt-dlp --version.
func (c *Client) Version(ctx context.Context) (string, error) {
	stdout, _, err := c.invoke(ctx, []string{"--version"})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

func (c *Client) cookieArgs() ([]string, error) {
	var args []string
	if c.cookiesPath != "" {
		abs, err := filepath.Abs(c.cookiesPath)
		if err != nil {
			return nil, fmt.Errorf("resolve cookies path %s: %w", c.cookiesPath, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("cookies file %s: %w", abs, err)
		}
		args = append(args, "--cookies", abs)
	}
	if c.cookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", c.cookiesFromBrowser)
	}
	return args, nil
}

// invoke runs yt-dlp under the client timeout. A timeout surfaces as an
// error wrapping context.DeadlineExceeded.
func (c *Client) invoke(ctx context.Context, args []string) ([]byte, []byte, error) {
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, err := c.run(runCtx, c.binary, args...)
	c.logger.Debug("yt-dlp finished",
		logging.String("args", strings.Join(args, " ")),
		logging.Duration("elapsed", time.Since(start)),
		logging.Bool("ok", err == nil),
	)
	if err == nil {
		return stdout, stderr, nil
	}

	detail := stderrTail(stderr)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return stdout, stderr, fmt.Errorf("yt-dlp timed out after %s: %w", c.timeout, context.DeadlineExceeded)
	}
	if detail == "" {
		return stdout, stderr, fmt.Errorf("yt-dlp failed: %w", err)
	}
	return stdout, stderr, fmt.Errorf("yt-dlp failed: %w: %s", err, detail)
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// stderrTail keeps the ERROR lines of yt-dlp's stderr, or its last lines when
// there are none.
func stderrTail(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	var errorsOnly []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ERROR:") {
			errorsOnly = append(errorsOnly, line)
		}
	}
	if len(errorsOnly) > 0 {
		return textutil.Truncate(strings.Join(errorsOnly, "; "), maxStderrKeep)
	}
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return textutil.Truncate(strings.Join(lines, "; "), maxStderrKeep)
}
