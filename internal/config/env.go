package config

import (
	"strconv"
	"strings"
)

// Environment variables that override file values. Hosting platforms usually
// inject secrets this way.
const (
	EnvBotToken  = "BOT_TOKEN"
	EnvTMDBKey   = "TMDB_API_KEY"
	EnvChannelID = "CHANNEL_ID"
	EnvPort      = "PORT"
	EnvLogLevel  = "LOG_LEVEL"
)

// ApplyEnv overlays environment values onto c. lookup is os.LookupEnv in production.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvBotToken); ok {
		c.Telegram.Token = v
	}
	if v, ok := get(EnvTMDBKey); ok {
		c.TMDB.APIKey = v
	}
	if v, ok := get(EnvChannelID); ok {
		c.Telegram.ChannelID = v
	}
	if v, ok := get(EnvPort); ok {
		if _, err := strconv.Atoi(v); err == nil {
			c.Health.Addr = ":" + v
			c.Health.Enabled = true
		}
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = v
	}
}
