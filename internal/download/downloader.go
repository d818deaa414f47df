// Package download fetches team radio MP3 clips into temporary files that
// are small enough to be uploaded to Discord.
//
// A [File] belongs to exactly one publish operation. The caller must call
// [File.Remove] once it is done, on every path.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/pitwall/internal/observe"
	"github.com/MrWong99/pitwall/internal/resilience"
)

const (
	// DefaultMaxBytes is Discord's attachment limit for regular bots.
	DefaultMaxBytes int64 = 25 << 20

	// DefaultMinBytes rejects bodies too small to be a real clip, such as
	// an HTML error page served with a 200.
	DefaultMinBytes int64 = 1000

	defaultTimeout = 30 * time.Second
)

// DownloadError reports a clip that could not be retrieved.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download: %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// OversizeError reports a clip larger than the configured ceiling.
type OversizeError struct {
	// Size is the announced Content-Length or, when Streamed is set, the
	// number of bytes read before the download was aborted. A streamed Size
	// is only a lower bound on the real clip size.
	Size  int64
	Limit int64

	// Streamed is set when no Content-Length was announced and the limit was
	// hit while reading the body.
	Streamed bool
}

func (e *OversizeError) Error() string {
	if e.Streamed {
		return fmt.Sprintf("download: clip exceeds limit of %d bytes (aborted after %d)", e.Limit, e.Size)
	}
	return fmt.Sprintf("download: clip size %d exceeds limit of %d bytes", e.Size, e.Limit)
}

// errTooSmall is wrapped in a [DownloadError] for bodies below the minimum.
var errTooSmall = errors.New("response body too small to be a clip")

// statusError is the breaker-visible failure for non-2xx responses.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

// Option is a functional option for configuring a [Downloader].
type Option func(*Downloader)

// WithMaxBytes sets the size ceiling. Defaults to [DefaultMaxBytes].
func WithMaxBytes(n int64) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

// WithMinBytes sets the smallest acceptable clip size. Defaults to
// [DefaultMinBytes]; zero disables the check.
func WithMinBytes(n int64) Option {
	return func(d *Downloader) {
		if n >= 0 {
			d.minBytes = n
		}
	}
}

// WithTimeout bounds a whole download including the body. Defaults to 30s.
func WithTimeout(t time.Duration) Option {
	return func(d *Downloader) {
		if t > 0 {
			d.httpClient.Timeout = t
		}
	}
}

// WithDir sets the directory for temporary files. Defaults to [os.TempDir].
func WithDir(dir string) Option {
	return func(d *Downloader) {
		if dir != "" {
			d.dir = dir
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Downloader) {
		if hc != nil {
			d.httpClient = hc
		}
	}
}

// WithBreaker guards the clip host with cb. Without one every download is
// attempted.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(d *Downloader) {
		d.breaker = cb
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Downloader) {
		d.metrics = m
	}
}

// Downloader streams clips to disk. It is safe for concurrent use.
type Downloader struct {
	httpClient *http.Client
	maxBytes   int64
	minBytes   int64
	dir        string
	breaker    *resilience.CircuitBreaker
	metrics    *observe.Metrics
}

// New creates a Downloader with the given options applied over the defaults.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxBytes:   DefaultMaxBytes,
		minBytes:   DefaultMinBytes,
		dir:        os.TempDir(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// MaxBytes returns the configured size ceiling.
func (d *Downloader) MaxBytes() int64 { return d.maxBytes }

// IsBreakerFailure reports whether err should count against a circuit
// breaker guarding the clip host. Oversize clips and cancellations are the
// caller's business, not the host's.
func IsBreakerFailure(err error) bool {
	var oe *OversizeError
	switch {
	case err == nil:
		return false
	case errors.As(err, &oe):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Download fetches rawURL into a new file named "<prefix>_<uuid>.mp3" in
// the configured directory. The error is an [*OversizeError] when the clip is
// over the ceiling and a [*DownloadError] for everything else; in both cases
// no file is left on disk.
func (d *Downloader) Download(ctx context.Context, rawURL, prefix string) (*File, error) {
	ctx, span := observe.StartSpan(ctx, "download.Download",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("download.url", rawURL)),
	)
	defer span.End()

	start := time.Now()
	f, err := d.download(ctx, rawURL, prefix)
	d.metrics.DownloadDuration.Record(ctx, time.Since(start).Seconds())

	var oe *OversizeError
	switch {
	case err == nil:
		span.SetAttributes(attribute.Int64("download.bytes", f.Size))
		d.metrics.RecordDownload(ctx, "ok")
	case errors.As(err, &oe):
		span.SetAttributes(attribute.Int64("download.bytes", oe.Size))
		d.metrics.RecordDownload(ctx, "oversize")
	default:
		observe.Fail(span, err)
		d.metrics.RecordDownload(ctx, "error")
	}
	return f, err
}

func (d *Downloader) download(ctx context.Context, rawURL, prefix string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}

	var f *File
	fetch := func() error {
		resp, err := d.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &statusError{code: resp.StatusCode}
		}
		if resp.ContentLength > d.maxBytes {
			return &OversizeError{Size: resp.ContentLength, Limit: d.maxBytes}
		}
		f, err = d.save(resp.Body, prefix)
		return err
	}

	if d.breaker != nil {
		err = d.breaker.Execute(fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		var oe *OversizeError
		if errors.As(err, &oe) {
			return nil, err
		}
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	return f, nil
}

// save streams body into a fresh temporary file, enforcing the size bounds.
// On any failure the partial file is removed before returning.
func (d *Downloader) save(body io.Reader, prefix string) (_ *File, err error) {
	name := fmt.Sprintf("%s_%s.mp3", prefix, uuid.NewString())
	path := filepath.Join(d.dir, name)

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	n, err := io.Copy(out, io.LimitReader(body, d.maxBytes+1))
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close temp file: %w", closeErr)
	}
	if err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if n > d.maxBytes {
		return nil, &OversizeError{Size: n, Limit: d.maxBytes, Streamed: true}
	}
	if n < d.minBytes {
		return nil, fmt.Errorf("%w (%d bytes)", errTooSmall, n)
	}

	return &File{Path: path, Name: name, Size: n}, nil
}
