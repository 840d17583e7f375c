package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "moviebot/pkg/logx"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

type Options struct {
	BaseURL  string
	APIKey   string
	Language string
	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        logx.Logger
}

// Client talks to the TMDB v3 REST API.
type Client struct {
	base     *url.URL
	apiKey   string
	language string
	hc       *http.Client
	log      logx.Logger
}

func New(opt Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opt.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("catalog: base url required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("catalog: invalid base url %q", opt.BaseURL)
	}
	if strings.TrimSpace(opt.APIKey) == "" {
		return nil, errors.New("catalog: api key required")
	}
	hc := opt.HTTPClient
	if hc == nil {
		timeout := opt.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{base: base, apiKey: opt.APIKey, language: opt.Language, hc: hc, log: log}, nil
}

type listResponse struct {
	Results []movieJSON `json:"results"`
}

type movieJSON struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	Overview    string  `json:"overview"`
	PosterPath  *string `json:"poster_path"`
	GenreIDs    []int   `json:"genre_ids"`
}

func (m movieJSON) item() Item {
	it := Item{
		ID:          m.ID,
		Title:       m.Title,
		ReleaseDate: strings.TrimSpace(m.ReleaseDate),
		Overview:    m.Overview,
		GenreIDs:    m.GenreIDs,
	}
	// TMDB reports 0.0 for titles nobody has rated yet.
	if m.VoteCount > 0 {
		r := m.VoteAverage
		it.Rating = &r
	}
	if m.PosterPath != nil {
		it.PosterPath = *m.PosterPath
	}
	return it
}

// Fetch lists the items of cat in catalog order. Every failure is a *FetchError.
func (c *Client) Fetch(ctx context.Context, cat Category) ([]Item, error) {
	var resp listResponse
	if err := c.get(ctx, cat.Name, cat.Endpoint, cat.Params, &resp); err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(resp.Results))
	for _, m := range resp.Results {
		out = append(out, m.item())
	}
	c.log.Debug("catalog fetched", logx.String("category", cat.Name), logx.Int("items", len(out)))
	return out, nil
}

// Search runs a title search.
func (c *Client) Search(ctx context.Context, query string) ([]Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &FetchError{Category: "search", Err: errors.New("empty query")}
	}
	return c.Fetch(ctx, Category{Name: "search", Endpoint: "search/movie", Params: map[string]string{"query": query}})
}

// Ping checks connectivity and credentials via the configuration endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var v map[string]any
	return c.get(ctx, "configuration", "configuration", nil, &v)
}

func (c *Client) get(ctx context.Context, name, endpoint string, params map[string]string, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(endpoint, "/")
	q := u.Query()
	q.Set("api_key", c.apiKey)
	if c.language != "" {
		q.Set("language", c.language)
	}
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &FetchError{Category: name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return &FetchError{Category: name, Err: redact(err)}
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, body)
		return &FetchError{Category: name, Status: resp.StatusCode, Err: ErrUnexpectedStatus}
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return &FetchError{Category: name, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// redact strips the query string (which carries api_key) from url errors.
func redact(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if i := strings.IndexByte(ue.URL, '?'); i >= 0 {
		cp := *ue
		cp.URL = ue.URL[:i]
		return &cp
	}
	return err
}
