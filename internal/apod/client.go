package apod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"apodpipe/internal/record"
)

const endpointPath = "/planetary/apod"

// Fetcher defines the APOD operations used by the extract step.
type Fetcher interface {
	Fetch(ctx context.Context, date time.Time) (record.Payload, error)
	FetchRange(ctx context.Context, start, end time.Time) ([]record.Payload, error)
}

// Client provides access to the APOD API.
type Client struct {
	apiKey     string
	baseURL    string
	windowDays int
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Fetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRequestsPerMinute throttles requests; zero or negative disables throttling.
func WithRequestsPerMinute(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithWindowDays bounds the number of days requested per range call.
func WithWindowDays(days int) Option {
	return func(c *Client) {
		if days > 0 {
			c.windowDays = days
		}
	}
}

// New creates an APOD client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("apod api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("apod base url required")
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		windowDays: 30,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Fetch returns the entry for date, or for today when date is zero.
func (c *Client) Fetch(ctx context.Context, date time.Time) (record.Payload, error) {
	params := url.Values{}
	if !date.IsZero() {
		params.Set("date", date.Format(record.DateLayout))
	}

	var payload record.Payload
	if err := c.get(ctx, params, &payload); err != nil {
		return record.Payload{}, err
	}
	return payload, nil
}

// FetchRange returns every entry between start and end inclusive, sorted by
// date. Large ranges are split into windows of at most WithWindowDays days.
func (c *Client) FetchRange(ctx context.Context, start, end time.Time) ([]record.Payload, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.IsZero() || end.IsZero() {
		return nil, errors.New("range requires start and end dates")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s is before start %s", end.Format(record.DateLayout), start.Format(record.DateLayout))
	}

	seen := make(map[string]struct{})
	var out []record.Payload
	for _, window := range Windows(start, end, c.windowDays) {
		params := url.Values{}
		params.Set("start_date", window[0].Format(record.DateLayout))
		params.Set("end_date", window[1].Format(record.DateLayout))

		var batch []record.Payload
		if err := c.get(ctx, params, &batch); err != nil {
			return nil, err
		}
		for _, payload := range batch {
			if _, ok := seen[payload.Date]; ok {
				continue
			}
			seen[payload.Date] = struct{}{}
			out = append(out, payload)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Windows splits [start, end] into consecutive inclusive spans of at most days days.
func Windows(start, end time.Time, days int) [][2]time.Time {
	if days <= 0 {
		days = 1
	}
	var spans [][2]time.Time
	for cursor := start; !cursor.After(end); cursor = cursor.AddDate(0, 0, days) {
		last := cursor.AddDate(0, 0, days-1)
		if last.After(end) {
			last = end
		}
		spans = append(spans, [2]time.Time{cursor, last})
	}
	return spans
}

func (c *Client) get(ctx context.Context, params url.Values, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	endpoint, err := url.Parse(c.baseURL + endpointPath)
	if err != nil {
		return fmt.Errorf("parse apod url: %w", err)
	}
	params.Set("api_key", c.apiKey)
	params.Set("thumbs", "true")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			Latency:    latency,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode apod response: %w", err)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
