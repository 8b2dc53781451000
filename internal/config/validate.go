package config

import (
	"fmt"
	"strings"

	"ytsubs/internal/services"
)

// Validate ensures the configuration is usable. Every failure is tagged with
// services.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return invalid("paths.output_dir must be set")
	}
	if c.History.Enabled && strings.TrimSpace(c.Paths.HistoryDB) == "" {
		return invalid("paths.history_db must be set when history.enabled is true")
	}
	return nil
}

func (c *Config) validateDownload() error {
	if err := ValidateFormat(c.Download.Format); err != nil {
		return err
	}
	if c.Download.Concurrency < 1 {
		return invalid("download.concurrency must be at least 1")
	}
	if c.Download.Concurrency > c.Download.MaxConcurrency {
		return invalid(fmt.Sprintf("download.concurrency must not exceed download.max_concurrency (%d)", c.Download.MaxConcurrency))
	}
	if c.Download.RateLimitPerSecond < 0 {
		return invalid("download.rate_limit_per_second must be >= 0")
	}
	if len(c.Download.Languages) == 0 {
		return invalid("download.languages must include at least one language")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxRetries < 0 {
		return invalid("retry.max_retries must be >= 0")
	}
	if c.Retry.BaseDelayMS < 0 {
		return invalid("retry.base_delay_ms must be >= 0")
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return invalid("retry.max_delay_ms must be >= retry.base_delay_ms")
	}
	if c.Retry.BackoffFactor < 1 {
		return invalid("retry.backoff_factor must be >= 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return invalid(fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
}

// ValidateFormat checks an output format value.
func ValidateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON:
		return nil
	default:
		return invalid(fmt.Sprintf("download.format %q must be %q or %q", format, FormatText, FormatJSON))
	}
}

func invalid(message string) error {
	return services.Wrap(services.ErrConfiguration, "config", "validate", message, nil)
}
