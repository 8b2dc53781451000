package config

const (
	defaultConfigPath          = "~/.config/ytsubs/config.toml"
	defaultOutputDir           = "./subtitles"
	defaultLogDir              = "~/.local/share/ytsubs/logs"
	defaultHistoryDB           = "~/.local/share/ytsubs/history.db"
	defaultFormat              = FormatText
	defaultConcurrency         = 3
	defaultMaxConcurrency      = 10
	defaultFetchTimeoutSeconds = 300
	defaultMaxRetries          = 3
	defaultBaseDelayMS         = 1000
	defaultMaxDelayMS          = 30000
	defaultBackoffFactor       = 2.0
	defaultYTDLPBinary         = "yt-dlp"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Output formats accepted by download.format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			HistoryDB: defaultHistoryDB,
		},
		Download: Download{
			Languages:           []string{"en"},
			Format:              defaultFormat,
			Concurrency:         defaultConcurrency,
			MaxConcurrency:      defaultMaxConcurrency,
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
			EnrichMetadata:      true,
		},
		Retry: Retry{
			MaxRetries:    defaultMaxRetries,
			BaseDelayMS:   defaultBaseDelayMS,
			MaxDelayMS:    defaultMaxDelayMS,
			BackoffFactor: defaultBackoffFactor,
		},
		YTDLP: YTDLP{
			Binary: defaultYTDLPBinary,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
