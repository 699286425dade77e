// Package daymet fetches and parses single-pixel daily climate extracts from
// the ORNL Daymet API.
package daymet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
	"github.com/couchcryptid/watertemp-etl/internal/observability"
)

// DefaultBaseURL is the Daymet single-pixel extraction endpoint.
const DefaultBaseURL = "https://daymet.ornl.gov/single-pixel/api/data"

// Request selects one pixel and an inclusive range of whole years.
type Request = domain.ClimateRequest

// Backoff controls retries of rate-limited and failed requests. The delay
// starts at Initial and doubles after each retry up to Max.
type Backoff struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

var defaultBackoff = Backoff{MaxRetries: 3, Initial: 2 * time.Second, Max: 30 * time.Second}

var errRateLimited = errors.New("rate limited")

// statusError carries a non-2xx response code through the circuit breaker.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.code == http.StatusTooManyRequests {
		return errRateLimited.Error()
	}
	return fmt.Sprintf("unexpected response: %s", e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Client requests daily tmax/tmin extracts.
type Client struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	backoff    Backoff
	clock      clockwork.Clock
	preamble   int
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Daymet client. Requests time out after timeout;
// preamble is the number of metadata lines ahead of the CSV header.
func NewClient(baseURL string, timeout time.Duration, preamble int, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		breaker:    newBreaker(),
		backoff:    defaultBackoff,
		clock:      clockwork.NewRealClock(),
		preamble:   preamble,
		metrics:    metrics,
		logger:     logger,
	}
}

// Parse decodes a response body returned by Fetch.
func (c *Client) Parse(body []byte) (domain.AirTempLookup, error) {
	return ParseCSV(bytes.NewReader(body), c.preamble)
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "daymet",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx other than 429 means a bad request, not an unhealthy service.
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return !se.retryable()
			}
			return err == nil
		},
	})
}

// URL renders the request URL for req.
func (c *Client) URL(req Request) string {
	params := url.Values{
		"lat":   {strconv.FormatFloat(req.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(req.Lon, 'f', -1, 64)},
		"vars":  {"tmax,tmin"},
		"start": {fmt.Sprintf("%04d-01-01", req.StartYear)},
		"end":   {fmt.Sprintf("%04d-12-31", req.EndYear)},
	}
	return c.baseURL + "?" + params.Encode()
}

// Fetch downloads the raw CSV extract for req. Transport failures and non-2xx
// responses are returned as *domain.NetworkError after retries are exhausted.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	start := c.clock.Now()
	body, err := c.fetchWithRetry(ctx, c.URL(req))
	c.metrics.ClimateRequestDuration.Observe(c.clock.Since(start).Seconds())

	if err != nil {
		c.metrics.ClimateRequests.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		netErr := &domain.NetworkError{Op: "daymet fetch", Err: err}
		var se *statusError
		if errors.As(err, &se) {
			netErr.StatusCode = se.code
		}
		return nil, netErr
	}
	c.metrics.ClimateRequests.WithLabelValues("success").Inc()
	return body, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, fullURL string) ([]byte, error) {
	delay := c.backoff.Initial
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, fullURL)
		})
		if err == nil {
			body, ok := result.([]byte)
			if !ok {
				return nil, fmt.Errorf("unexpected result type %T from circuit breaker", result)
			}
			return body, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker open: %w", err)
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		if attempt >= c.backoff.MaxRetries {
			return nil, err
		}

		c.logger.Warn("daymet request failed, retrying", "error", err, "attempt", attempt+1, "delay", delay)

		timer := c.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.Chan():
		}
		delay = retry.NextBackoff(delay, c.backoff.Max)
	}
}

func (c *Client) do(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daymet request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
