package balldontlie

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"HoopsCast/internal/domain/models"
	drepo "HoopsCast/internal/domain/repository"
	"HoopsCast/internal/service/ratelimit"
	xhttp "HoopsCast/pkg/http"
	"HoopsCast/pkg/logger"
)

const (
	DefaultBaseURL = "https://api.balldontlie.io/v1/games"
	DefaultPerPage = 100

	limiterKey = "balldontlie"
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError = xhttp.StatusError

type Option func(*Client)

// Client pages through the games endpoint. It implements repository.GameSource.
type Client struct {
	baseURL   string
	apiKey    string
	perPage   int
	timeout   time.Duration
	perMinute int

	http    *xhttp.Client
	limiter *ratelimit.Limiter
	logger  *logger.Logger
}

var _ drepo.GameSource = (*Client)(nil)

func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		perPage: DefaultPerPage,
		timeout: 30 * time.Second,
		limiter: ratelimit.New(),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(c.timeout))
	}
	return c
}

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.perPage = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per minute. 0 disables pacing.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		c.perMinute = perMinute
	}
}

func WithHTTPClient(hc *xhttp.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

type gamesPage struct {
	Data []map[string]any `json:"data"`
	Meta struct {
		NextPage *int `json:"next_page"`
	} `json:"meta"`
}

// FetchGames returns every game between start and end, following pages until
// meta.next_page is null. Any non-2xx response aborts the whole fetch.
func (c *Client) FetchGames(ctx context.Context, start string, end *string) ([]models.Record, error) {
	var games []models.Record

	for page := 0; ; page++ {
		if c.perMinute > 0 {
			if err := c.limiter.Wait(ctx, limiterKey, 1, ratelimit.PerMinute(c.perMinute)); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		var resp gamesPage
		if err := c.http.SendAndParse(ctx, c.pageRequest(start, end, page), &resp); err != nil {
			return nil, fmt.Errorf("fetch games page %d: %w", page, err)
		}
		for _, g := range resp.Data {
			games = append(games, FlattenRecord(g))
		}

		c.logger.Debug("games page fetched",
			logger.Int("page", page),
			logger.Int("items", len(resp.Data)),
			logger.Int("total", len(games)))

		if resp.Meta.NextPage == nil {
			break
		}
	}

	return games, nil
}

func (c *Client) pageRequest(start string, end *string, page int) *xhttp.RequestOptions {
	q := map[string][]string{
		"start_date": {start},
		"per_page":   {strconv.Itoa(c.perPage)},
		"page":       {strconv.Itoa(page)},
	}
	if end != nil {
		q["end_date"] = []string{*end}
	}

	opts := &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL,
		QueryParams: q,
	}
	if c.apiKey != "" {
		opts.Headers = map[string]string{"Authorization": c.apiKey}
	}
	return opts
}

// FlattenRecord joins nested object keys with "_". Only objects are descended
// into; arrays and scalars are kept as values. Flat input comes back equal.
func FlattenRecord(in map[string]any) models.Record {
	out := make(models.Record, len(in))
	flattenInto(out, "", in)
	return out
}

func flattenInto(out models.Record, prefix string, in map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch nested := v.(type) {
		case map[string]any:
			flattenInto(out, key, nested)
		case models.Record:
			flattenInto(out, key, nested)
		default:
			out[key] = v
		}
	}
}
