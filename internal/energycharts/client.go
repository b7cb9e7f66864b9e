package energycharts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the public Energy-Charts power data endpoint.
const DefaultBaseURL = "https://www.energy-charts.info/charts/power/data"

// SupportedCountries is the fixed set of country codes the API serves.
var SupportedCountries = map[string]string{
	"de": "Germany",
	"at": "Austria",
	"ch": "Switzerland",
	"fr": "France",
	"nl": "Netherlands",
	"be": "Belgium",
	"pl": "Poland",
	"cz": "Czech Republic",
}

// Window selects the time window of a fetch. There is no true day
// granularity upstream; the day window resolves to the current ISO week's
// endpoint, which is the most granular data available.
type Window string

const (
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// ClientConfig holds the tunables of the fetch client.
type ClientConfig struct {
	BaseURL       string
	Country       string
	Timeout       time.Duration // base per-attempt timeout, grows linearly per attempt
	Retries       int
	BackoffFactor time.Duration // sleep between attempts: factor * 2^(attempt-1)
	CacheSize     int           // LRU entries for immutable past-period payloads
}

// DefaultClientConfig returns a ClientConfig with sensible defaults for the
// given country.
func DefaultClientConfig(country string) ClientConfig {
	return ClientConfig{
		BaseURL:       DefaultBaseURL,
		Country:       country,
		Timeout:       30 * time.Second,
		Retries:       3,
		BackoffFactor: time.Second,
		CacheSize:     128,
	}
}

// Client fetches and normalizes Energy-Charts responses. It is safe for
// concurrent use across independently configured country instances.
type Client struct {
	baseURL    string
	country    string
	timeout    time.Duration
	retries    int
	backoff    time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
	cache      *lru.Cache
	now        func() time.Time
}

// NewClient validates the configuration and returns a ready Client.
func NewClient(cfg ClientConfig, logger *logrus.Logger) (*Client, error) {
	if _, ok := SupportedCountries[cfg.Country]; !ok {
		return nil, fmt.Errorf("unsupported country code: %q", cfg.Country)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch cache: %w", err)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		country: cfg.Country,
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		backoff: cfg.BackoffFactor,
		// The per-attempt deadline lives on the request context, not here.
		httpClient: &http.Client{},
		logger:     logger,
		cache:      cache,
		now:        time.Now,
	}, nil
}

func weekEndpoint(year, week int) string {
	return fmt.Sprintf("week_%d_%02d.json", year, week)
}

func monthEndpoint(year, month int) string {
	return fmt.Sprintf("month_%d_%02d.json", year, month)
}

// FetchWindow fetches the given window for an explicit period. For
// WindowWeek and WindowDay the period is an ISO week number, for WindowMonth
// a calendar month. Day and week resolve to the identical endpoint.
func (c *Client) FetchWindow(ctx context.Context, window Window, year, period int) (ApiSnapshot, error) {
	switch window {
	case WindowDay, WindowWeek:
		return c.fetch(ctx, weekEndpoint(year, period))
	case WindowMonth:
		return c.fetch(ctx, monthEndpoint(year, period))
	default:
		return ApiSnapshot{}, fmt.Errorf("%w: unknown window %q", ErrData, window)
	}
}

// FetchDay fetches the most granular current data. The upstream API has no
// daily endpoint, so this resolves to the current ISO week.
func (c *Client) FetchDay(ctx context.Context) (ApiSnapshot, error) {
	year, week := c.now().ISOWeek()
	return c.fetch(ctx, weekEndpoint(year, week))
}

// FetchWeek fetches the current ISO week.
func (c *Client) FetchWeek(ctx context.Context) (ApiSnapshot, error) {
	year, week := c.now().ISOWeek()
	return c.fetch(ctx, weekEndpoint(year, week))
}

// FetchMonth fetches the current calendar month.
func (c *Client) FetchMonth(ctx context.Context) (ApiSnapshot, error) {
	now := c.now()
	return c.fetch(ctx, monthEndpoint(now.Year(), int(now.Month())))
}

// FetchSpecificWeek fetches an explicit ISO year and week. Fully past weeks
// are immutable upstream and served from the LRU cache after the first
// successful fetch.
func (c *Client) FetchSpecificWeek(ctx context.Context, year, week int) (ApiSnapshot, error) {
	endpoint := weekEndpoint(year, week)
	curYear, curWeek := c.now().ISOWeek()
	if year < curYear || (year == curYear && week < curWeek) {
		return c.fetchCached(ctx, endpoint)
	}
	return c.fetch(ctx, endpoint)
}

// FetchSpecificMonth fetches an explicit year and month, caching fully past
// months like FetchSpecificWeek.
func (c *Client) FetchSpecificMonth(ctx context.Context, year, month int) (ApiSnapshot, error) {
	endpoint := monthEndpoint(year, month)
	now := c.now()
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return c.fetchCached(ctx, endpoint)
	}
	return c.fetch(ctx, endpoint)
}

// Probe reports whether the API is reachable for the configured country. It
// reduces every failure to false and is meant for configuration-time
// connectivity checks only.
func (c *Client) Probe(ctx context.Context) bool {
	if _, err := c.FetchDay(ctx); err != nil {
		c.logger.WithError(err).Error("Connection probe failed")
		return false
	}
	return true
}

func (c *Client) fetchCached(ctx context.Context, endpoint string) (ApiSnapshot, error) {
	if cached, ok := c.cache.Get(endpoint); ok {
		return cached.(ApiSnapshot), nil
	}
	snap, err := c.fetch(ctx, endpoint)
	if err != nil {
		return ApiSnapshot{}, err
	}
	c.cache.Add(endpoint, snap)
	return snap, nil
}

// fetch runs the retry loop for one endpoint. A 404 surfaces immediately;
// timeout, connection and data failures are retried with exponential
// backoff, and the last classified failure is surfaced once the attempt
// budget is exhausted.
func (c *Client) fetch(ctx context.Context, endpoint string) (ApiSnapshot, error) {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.country, endpoint)

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		snap, err := c.attempt(ctx, url, time.Duration(attempt)*c.timeout)
		if err == nil {
			c.logger.WithFields(logrus.Fields{
				"url":    url,
				"series": len(snap.Series),
			}).Debug("Fetched data")
			return snap, nil
		}
		if errors.Is(err, ErrNotFound) {
			return ApiSnapshot{}, err
		}
		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
			"retries": c.retries,
		}).WithError(err).Warn("Fetch attempt failed")

		if attempt < c.retries {
			wait := c.backoff * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return ApiSnapshot{}, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	if lastErr != nil {
		return ApiSnapshot{}, lastErr
	}
	return ApiSnapshot{}, fmt.Errorf("%w: no attempt completed", ErrConnection)
}

func (c *Client) attempt(ctx context.Context, url string, timeout time.Duration) (ApiSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ApiSnapshot{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ApiSnapshot{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ApiSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return ApiSnapshot{}, fmt.Errorf("%w: unexpected status %d", ErrConnection, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ApiSnapshot{}, classifyTransportError(err)
	}

	snap, err := ParseResponse(body)
	if err != nil {
		return ApiSnapshot{}, fmt.Errorf("%w: %v", ErrData, err)
	}
	return snap, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
