// Package openf1 is a client for the team_radio endpoint of the public
// OpenF1 API (https://openf1.org). It performs a single GET per call and
// never retries; callers decide how to react to [FetchError] and
// [ParseError].
package openf1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/pitwall/internal/observe"
)

const (
	// DefaultBaseURL is the public OpenF1 v1 API root.
	DefaultBaseURL = "https://api.openf1.org/v1"

	defaultTimeout = 30 * time.Second

	// maxBodySize bounds how much of a response body is read. A full race
	// session produces a few hundred records, far below this.
	maxBodySize = 8 << 20
)

// errEmptyBody is wrapped in a [ParseError] when the upstream responds with
// no content at all.
var errEmptyBody = errors.New("empty response body")

// FetchError reports a transport failure or a non-2xx response.
type FetchError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("openf1: fetch team radio: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("openf1: fetch team radio: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a response body that is empty or not a JSON array of
// radio records.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("openf1: parse team radio: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithBaseURL overrides the API root (used by tests and mirrors).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request timeout. Defaults to 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. The client's Timeout
// is kept as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client fetches team radio records. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observe.Metrics
}

// New creates a Client with the given options applied over the defaults.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// teamRadioURL builds the request URL for q.
func (c *Client) teamRadioURL(q Query) string {
	v := url.Values{}
	v.Set("session_key", q.session())
	if q.DriverNumber > 0 {
		v.Set("driver_number", strconv.Itoa(q.DriverNumber))
	}
	return c.baseURL + "/team_radio?" + v.Encode()
}

// TeamRadio fetches the radio records matching q in API order.
func (c *Client) TeamRadio(ctx context.Context, q Query) ([]RadioRecord, error) {
	ctx, span := observe.StartSpan(ctx, "openf1.TeamRadio",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("openf1.session_key", q.session()),
			attribute.Int("openf1.driver_number", q.DriverNumber),
		),
	)
	defer span.End()

	start := time.Now()
	records, err := c.teamRadio(ctx, q)
	c.metrics.FetchDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Fail(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("openf1.records", len(records)))
	c.metrics.RecordsFetched.Add(ctx, int64(len(records)))
	return records, nil
}

func (c *Client) teamRadio(ctx context.Context, q Query) ([]RadioRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.teamRadioURL(q), nil)
	if err != nil {
		return nil, &FetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Err: fmt.Errorf("read body: %w", err)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &ParseError{Err: errEmptyBody}
	}

	var records []RadioRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &ParseError{Err: err}
	}
	return records, nil
}
