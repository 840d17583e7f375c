package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAMLWithDefaultsAndEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  channel_id: "@movies"
tmdb:
  language: de-DE
publish:
  max_items: 5
schedule:
  mode: rotation
  interval: 30m
  tasks:
    - name: latest
    - name: trending
`)
	m := NewConfigManager(path)
	m.LookupEnv = envMap(map[string]string{EnvBotToken: "123:abc", EnvTMDBKey: "k", EnvPort: "9000"})

	cfg, err := m.Load()
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, "@movies", cfg.Telegram.ChannelID)
	require.Equal(t, "k", cfg.TMDB.APIKey)
	require.Equal(t, "de-DE", cfg.TMDB.Language)
	require.Equal(t, DefaultTMDBBaseURL, cfg.TMDB.BaseURL)
	require.Equal(t, 5, cfg.Publish.MaxItems)
	require.Equal(t, DefaultRetries, cfg.Publish.Retries)
	require.Equal(t, ":9000", cfg.Health.Addr)
	require.True(t, cfg.Health.Enabled)
	require.Len(t, cfg.Schedule.Tasks, 2)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.json", `{"telegram":{"token":"x","chanel_id":"typo"}}`)
	_, err := NewConfigManager(path).Parse()
	require.Error(t, err)
	require.Contains(t, err.Error(), "chanel_id")
}

func TestParseMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	m := NewConfigManager(path)
	m.LookupEnv = envMap(nil)
	_, err := m.Parse()
	require.Error(t, err)

	m.Optional = true
	cfg, err := m.Parse()
	require.NoError(t, err)
	require.Equal(t, DefaultMode, cfg.Schedule.Mode)
	require.Len(t, cfg.Schedule.Tasks, len(defaultTasks))
}

func validConfig() *Config {
	c := &Config{
		Telegram: TelegramConfig{Token: "t", ChannelID: "-100"},
		TMDB:     TMDBConfig{APIKey: "k"},
	}
	ApplyDefaults(c)
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
		missing bool
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "no token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: "telegram.token", missing: true},
		{name: "no channel", mutate: func(c *Config) { c.Telegram.ChannelID = " " }, wantErr: "telegram.channel_id", missing: true},
		{name: "no api key", mutate: func(c *Config) { c.TMDB.APIKey = "" }, wantErr: "tmdb.api_key", missing: true},
		{name: "bad pace", mutate: func(c *Config) { c.Publish.Pace = "soon" }, wantErr: "publish.pace"},
		{name: "zero retries", mutate: func(c *Config) { c.Publish.Retries = -1 }, wantErr: "publish.retries"},
		{name: "bad mode", mutate: func(c *Config) { c.Schedule.Mode = "cron" }, wantErr: "schedule.mode"},
		{name: "bad tz", mutate: func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, wantErr: "schedule.timezone"},
		{name: "unknown category", mutate: func(c *Config) {
			c.Schedule.Tasks = []TaskConfig{{Name: "x", Categories: []string{"nope"}, Every: "1h"}}
		}, wantErr: "unknown category"},
		{name: "bad at", mutate: func(c *Config) {
			c.Schedule.Tasks = []TaskConfig{{Name: "latest", At: []string{"25:00"}}}
		}, wantErr: "schedule.tasks[0].at[0]"},
		{name: "table needs trigger", mutate: func(c *Config) {
			c.Schedule.Tasks = []TaskConfig{{Name: "latest"}}
		}, wantErr: "needs every or at"},
		{name: "daily needs at", mutate: func(c *Config) {
			c.Schedule.Mode = ModeDaily
			c.Schedule.Tasks = []TaskConfig{{Name: "latest", Every: "1h"}}
		}, wantErr: "schedule.tasks[0].at", missing: true},
		{name: "duplicate task", mutate: func(c *Config) {
			c.Schedule.Tasks = []TaskConfig{{Name: "latest", Every: "1h"}, {Name: "latest", Every: "2h"}}
		}, wantErr: "duplicate"},
		{name: "storage driver", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, wantErr: "storage.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := Validate(c)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
			require.Equal(t, tt.missing, errors.Is(err, ErrMissing))
		})
	}
}

func TestMergeCategoriesOverridesByName(t *testing.T) {
	c := validConfig()
	c.Categories = nil
	c.Categories = mergeCategories(builtinCategories, []CategoryConfig{
		{Name: "latest", Label: "In Cinemas"},
		{Name: "horror", Label: "Horror", Endpoint: "discover/movie", Params: map[string]string{"with_genres": "27"}},
	})
	latest, ok := c.Category("latest")
	require.True(t, ok)
	require.Equal(t, "In Cinemas", latest.Label)
	require.Equal(t, "movie/now_playing", latest.Endpoint)

	require.Equal(t, "horror", c.Categories[len(c.Categories)-1].Name)
	require.Equal(t, []string{"trending"}, c.TaskCategories(TaskConfig{Name: "trending"}))
}

func TestChangedSections(t *testing.T) {
	a := validConfig()
	b := validConfig()
	require.Empty(t, ChangedSections(a, b))
	b.Logging.Level = "debug"
	b.Publish.Pace = "1s"
	require.Equal(t, []string{"publish", "logging"}, ChangedSections(a, b))

	c := validConfig()
	c.Telegram.OwnerUserIDs = []int64{7}
	require.Equal(t, []string{"owners"}, ChangedSections(a, c))
}
