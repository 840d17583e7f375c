package config

// Built-in TMDB categories. Names double as task names.
var builtinCategories = []CategoryConfig{
	{Name: "latest", Label: "Now Playing", Endpoint: "movie/now_playing", Params: map[string]string{"page": "1"}},
	{Name: "trending", Label: "Trending This Week", Endpoint: "trending/movie/week"},
	{Name: "upcoming", Label: "Upcoming", Endpoint: "movie/upcoming"},
	{Name: "popular", Label: "Popular", Endpoint: "movie/popular"},
	{Name: "top_rated", Label: "Top Rated", Endpoint: "movie/top_rated"},
}

// defaultTasks reproduces the classic posting table: a daily round-up in the
// morning, latest every 6h, trending every 12h and upcoming in the afternoon.
var defaultTasks = []TaskConfig{
	{Name: "daily_update", Categories: []string{"latest", "trending", "upcoming"}, At: []string{"10:00"}},
	{Name: "latest", Every: "6h"},
	{Name: "trending", Every: "12h"},
	{Name: "upcoming", At: []string{"14:00"}},
}

const (
	DefaultTMDBBaseURL      = "https://api.themoviedb.org/3"
	DefaultTMDBImageBaseURL = "https://image.tmdb.org/t/p/w500"
	DefaultTMDBLanguage     = "en-US"
	DefaultTMDBTimeout      = "10s"

	DefaultPollTimeout = "10s"
	DefaultRatePerMin  = 20

	DefaultMaxItems     = 3
	DefaultPace         = "3s"
	DefaultRetries      = 3
	DefaultRetryBackoff = "5s"
	DefaultSendTimeout  = "30s"

	DefaultMode     = ModeTable
	DefaultInterval = "1h"

	DefaultHealthAddr = ":8080"
)

const (
	ModeTable    = "table"
	ModeRotation = "rotation"
	ModeDaily    = "daily"
	ModeInterval = "interval"
)

// ApplyDefaults fills omitted values in place.
func ApplyDefaults(c *Config) {
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = DefaultTMDBBaseURL
	}
	if c.TMDB.ImageBaseURL == "" {
		c.TMDB.ImageBaseURL = DefaultTMDBImageBaseURL
	}
	if c.TMDB.Language == "" {
		c.TMDB.Language = DefaultTMDBLanguage
	}
	if c.TMDB.Timeout == "" {
		c.TMDB.Timeout = DefaultTMDBTimeout
	}
	if c.Telegram.PollTimeout == "" {
		c.Telegram.PollTimeout = DefaultPollTimeout
	}
	if c.Telegram.RatePerMin == 0 {
		c.Telegram.RatePerMin = DefaultRatePerMin
	}

	c.Categories = mergeCategories(builtinCategories, c.Categories)

	if c.Schedule.Mode == "" {
		c.Schedule.Mode = DefaultMode
	}
	if c.Schedule.Interval == "" {
		c.Schedule.Interval = DefaultInterval
	}
	if len(c.Schedule.Tasks) == 0 {
		c.Schedule.Tasks = append([]TaskConfig(nil), defaultTasks...)
	}

	if c.Publish.MaxItems == 0 {
		c.Publish.MaxItems = DefaultMaxItems
	}
	if c.Publish.Pace == "" {
		c.Publish.Pace = DefaultPace
	}
	if c.Publish.Retries == 0 {
		c.Publish.Retries = DefaultRetries
	}
	if c.Publish.RetryBackoff == "" {
		c.Publish.RetryBackoff = DefaultRetryBackoff
	}
	if c.Publish.Timeout == "" {
		c.Publish.Timeout = DefaultSendTimeout
	}

	if c.Health.Addr == "" {
		c.Health.Addr = DefaultHealthAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// mergeCategories returns base with overrides applied by name; unknown names
// are appended in the order given.
func mergeCategories(base, overrides []CategoryConfig) []CategoryConfig {
	out := make([]CategoryConfig, 0, len(base)+len(overrides))
	idx := make(map[string]int, len(base))
	for _, c := range base {
		idx[c.Name] = len(out)
		out = append(out, c)
	}
	for _, c := range overrides {
		i, ok := idx[c.Name]
		if !ok {
			idx[c.Name] = len(out)
			out = append(out, c)
			continue
		}
		merged := out[i]
		if c.Label != "" {
			merged.Label = c.Label
		}
		if c.Endpoint != "" {
			merged.Endpoint = c.Endpoint
		}
		if c.Params != nil {
			merged.Params = c.Params
		}
		out[i] = merged
	}
	return out
}
