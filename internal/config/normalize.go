package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"

	"ytsubs/internal/services"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDownload(); err != nil {
		return err
	}
	c.normalizeYTDLP()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("YTSUBS_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = defaultHistoryDB
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeDownload() error {
	c.Download.Format = strings.ToLower(strings.TrimSpace(c.Download.Format))
	if c.Download.Format == "" {
		c.Download.Format = defaultFormat
	}
	if c.Download.MaxConcurrency <= 0 {
		c.Download.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Download.FetchTimeoutSeconds <= 0 {
		c.Download.FetchTimeoutSeconds = defaultFetchTimeoutSeconds
	}
	langs, err := NormalizeLanguages(c.Download.Languages)
	if err != nil {
		return err
	}
	c.Download.Languages = langs
	return nil
}

func (c *Config) normalizeYTDLP() {
	c.YTDLP.Binary = strings.TrimSpace(c.YTDLP.Binary)
	if c.YTDLP.Binary == "" {
		c.YTDLP.Binary = defaultYTDLPBinary
	}
	c.YTDLP.CookiesPath = strings.TrimSpace(c.YTDLP.CookiesPath)
	if c.YTDLP.CookiesPath == "" {
		if value, ok := os.LookupEnv("YTSUBS_COOKIES"); ok {
			c.YTDLP.CookiesPath = strings.TrimSpace(value)
		}
	}
	c.YTDLP.CookiesFromBrowser = strings.TrimSpace(c.YTDLP.CookiesFromBrowser)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// NormalizeLanguages canonicalizes BCP 47 codes, drops duplicates, and keeps
// yt-dlp selectors ("all", "en.*", "-live_chat") as written. An empty list
// falls back to English.
func NormalizeLanguages(values []string) ([]string, error) {
	langs := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		normalized, err := normalizeLanguage(value)
		if err != nil {
			return nil, err
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		langs = append(langs, normalized)
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	return langs, nil
}

func normalizeLanguage(value string) (string, error) {
	lower := strings.ToLower(value)
	if lower == "all" || strings.HasPrefix(lower, "-") || strings.ContainsAny(lower, "*.|") || strings.Contains(lower, "_") {
		return lower, nil
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "config", "download.languages", fmt.Sprintf("invalid language %q", value), err)
	}
	return tag.String(), nil
}
