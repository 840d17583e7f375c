package config

// Config is the on-disk configuration (YAML or JSON). Durations are Go
// duration strings ("500ms", "10s", "6h").
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	TMDB       TMDBConfig       `json:"tmdb"`
	Categories []CategoryConfig `json:"categories,omitempty"`
	Schedule   ScheduleConfig   `json:"schedule"`
	Publish    PublishConfig    `json:"publish"`
	Health     HealthConfig     `json:"health"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Logging    LoggingConfig    `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChannelID is the single publish destination: a numeric chat id
	// ("-1001234567890") or a public channel username ("@movies").
	ChannelID    string  `json:"channel_id"`
	LogChatID    int64   `json:"log_chat_id,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
	// RatePerMin caps outgoing channel posts (Telegram allows ~20/min per channel).
	RatePerMin int `json:"rate_per_min,omitempty"`
	// Commands enables the interactive command handlers. Defaults to true.
	Commands *bool `json:"commands,omitempty"`
	// APIURL targets a self-hosted Bot API server instead of api.telegram.org.
	APIURL string `json:"api_url,omitempty"`
}

type TMDBConfig struct {
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url,omitempty"`
	ImageBaseURL string `json:"image_base_url,omitempty"`
	Language     string `json:"language,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
}

// CategoryConfig overrides or adds a catalog query. A category whose name
// matches a built-in one replaces it.
type CategoryConfig struct {
	Name     string            `json:"name"`
	Label    string            `json:"label,omitempty"`
	Endpoint string            `json:"endpoint,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// ScheduleConfig selects how ticks are produced.
//
// Modes:
//   - "table":    each task has its own every/at triggers (default)
//   - "rotation": one trigger every Interval, tasks picked round-robin
//   - "daily":    tasks fire at their At times, once per calendar day each
//   - "interval": a single task re-run every Interval
type ScheduleConfig struct {
	Mode       string       `json:"mode,omitempty"`
	Timezone   string       `json:"timezone,omitempty"`
	Interval   string       `json:"interval,omitempty"`
	Tasks      []TaskConfig `json:"tasks,omitempty"`
	RunOnStart bool         `json:"run_on_start,omitempty"`
}

// TaskConfig binds a named discovery+publish pass to triggers. Categories
// defaults to a category with the same name as the task.
type TaskConfig struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories,omitempty"`
	// Every is a duration ("6h"), an HH:MM interval ("06:00") or a cron expression.
	Every string   `json:"every,omitempty"`
	At    []string `json:"at,omitempty"`
}

type PublishConfig struct {
	MaxItems     int    `json:"max_items,omitempty"`
	Pace         string `json:"pace,omitempty"`
	Retries      int    `json:"retries,omitempty"`
	RetryBackoff string `json:"retry_backoff,omitempty"`
	// Timeout bounds a single Telegram API call.
	Timeout string `json:"timeout,omitempty"`
}

// HealthConfig controls the liveness endpoint for hosting platforms.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}

// StorageConfig controls the optional publication journal.
//
// Example:
//
//	storage: { driver: sqlite, path: ./data/moviebot.db }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// CommandsEnabled reports the effective telegram.commands flag.
func (c *Config) CommandsEnabled() bool {
	if c == nil || c.Telegram.Commands == nil {
		return true
	}
	return *c.Telegram.Commands
}
