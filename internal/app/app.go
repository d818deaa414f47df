// Package app wires all pitwall subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the poll loop and the ops HTTP server, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithFetcher,
// WithHTTPClient, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/pitwall/internal/config"
	"github.com/MrWong99/pitwall/internal/dedup"
	"github.com/MrWong99/pitwall/internal/discord"
	"github.com/MrWong99/pitwall/internal/discord/commands"
	"github.com/MrWong99/pitwall/internal/download"
	"github.com/MrWong99/pitwall/internal/health"
	"github.com/MrWong99/pitwall/internal/observe"
	"github.com/MrWong99/pitwall/internal/openf1"
	"github.com/MrWong99/pitwall/internal/pipeline"
	"github.com/MrWong99/pitwall/internal/poller"
	"github.com/MrWong99/pitwall/internal/publish"
	"github.com/MrWong99/pitwall/internal/resilience"
)

// Fetcher retrieves team radio records. [*openf1.Client] satisfies it.
type Fetcher interface {
	TeamRadio(ctx context.Context, q openf1.Query) ([]openf1.RadioRecord, error)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	sender     publish.Sender
	httpClient *http.Client
	metrics    *observe.Metrics
	checkers   []health.Checker

	// Subsystems, initialised in New.
	fetcher    Fetcher
	tracker    *dedup.Tracker
	breaker    *resilience.CircuitBreaker
	downloader *download.Downloader
	publisher  *publish.Publisher
	pipeline   *pipeline.Pipeline
	poller     *poller.Poller
	commands   *commands.RadioCommands

	// Ops HTTP server; nil when disabled.
	opsServer   *http.Server
	opsListener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithFetcher injects a team radio fetcher instead of an OpenF1 client.
func WithFetcher(f Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithHTTPClient sets the HTTP client used for OpenF1 and clip downloads.
// The configured timeouts still apply per request.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) { a.httpClient = hc }
}

// WithMetrics injects the metrics sink instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithReadiness adds a readiness checker to /readyz, e.g. the Discord
// gateway state.
func WithReadiness(c health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, c) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Messages are posted
// through sender, normally the Discord session.
func New(_ context.Context, cfg *config.Config, sender publish.Sender, opts ...Option) (*App, error) {
	if sender == nil {
		return nil, errors.New("app: sender is required")
	}
	a := &App{
		cfg:    cfg,
		sender: sender,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. OpenF1 client ─────────────────────────────────────────────────
	if a.fetcher == nil {
		a.fetcher = openf1.New(
			openf1.WithBaseURL(cfg.OpenF1.BaseURL),
			openf1.WithHTTPClient(a.clientWithTimeout(cfg.OpenF1.Timeout)),
			openf1.WithMetrics(a.metrics),
		)
	}

	// ── 2. Seen set ──────────────────────────────────────────────────────
	a.tracker = dedup.New()

	// ── 3. Downloader behind a circuit breaker ───────────────────────────
	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "clip-host",
		MaxFailures:  5,
		ResetTimeout: time.Minute,
		IsFailure:    download.IsBreakerFailure,
	})
	a.downloader = download.New(
		download.WithMaxBytes(cfg.Download.MaxBytes),
		download.WithMinBytes(cfg.Download.MinBytes),
		download.WithDir(cfg.Download.TempDir),
		download.WithHTTPClient(a.clientWithTimeout(cfg.Download.Timeout)),
		download.WithBreaker(a.breaker),
		download.WithMetrics(a.metrics),
	)

	// ── 4. Publisher + pipeline ──────────────────────────────────────────
	a.publisher = publish.New(a.sender, publish.WithMetrics(a.metrics))
	a.pipeline = pipeline.New(a.downloader, a.publisher, pipeline.WithStats(pipeline.NewStats(100)))

	// ── 5. Poll loop ─────────────────────────────────────────────────────
	a.poller = poller.New(a.fetcher, a.tracker, a.pipeline, poller.Config{
		ChannelID:    cfg.Discord.ChannelID,
		Interval:     cfg.Poll.Interval,
		SessionKey:   cfg.OpenF1.SessionKey,
		Announcement: cfg.Poll.Announcement,
	}, poller.WithMetrics(a.metrics))

	// ── 6. Chat commands ─────────────────────────────────────────────────
	a.commands = commands.NewRadioCommands(a.fetcher, a.pipeline, commands.Config{
		RadioLimit:       cfg.Commands.RadioLimit,
		DriverRadioLimit: cfg.Commands.DriverRadioLimit,
		TestAudioURL:     cfg.Commands.TestAudioURL,
		PollInterval:     cfg.Poll.Interval,
	}, commands.WithMetrics(a.metrics), commands.WithStatus(a.status))

	// ── 7. Ops server ────────────────────────────────────────────────────
	if err := a.initOps(); err != nil {
		return nil, fmt.Errorf("app: init ops server: %w", err)
	}

	return a, nil
}

// clientWithTimeout returns the injected client or a fresh one, bounded by
// timeout.
func (a *App) clientWithTimeout(timeout time.Duration) *http.Client {
	if a.httpClient == nil {
		return &http.Client{Timeout: timeout}
	}
	hc := *a.httpClient
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return &hc
}

// initOps binds the ops listener so address errors surface at startup.
func (a *App) initOps() error {
	if !a.cfg.Server.OpsEnabled() {
		return nil
	}
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return err
	}
	a.opsListener = ln
	a.opsServer = &http.Server{
		Handler:           a.OpsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := a.opsServer.Shutdown(ctx)
		// Serve owns the listener once it runs; close it here when Run never did.
		if cerr := a.opsListener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
		return err
	})
	return nil
}

// OpsHandler returns the /metrics, /healthz and /readyz routes wrapped in
// the tracing and metrics middleware.
func (a *App) OpsHandler() http.Handler {
	checkers := append([]health.Checker{{Name: "poller", Check: a.poller.Ready}}, a.checkers...)

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// OpsAddr returns the bound ops server address, or nil when disabled.
func (a *App) OpsAddr() net.Addr {
	if a.opsListener == nil {
		return nil
	}
	return a.opsListener.Addr()
}

// RegisterCommands adds the chat commands to router.
func (a *App) RegisterCommands(router *discord.CommandRouter) {
	a.commands.Register(router)
}

// status gathers what !radio_status reports.
func (a *App) status() commands.Status {
	h := a.poller.Health()
	return commands.Status{
		Healthy:     a.poller.Ready(context.Background()) == nil,
		Started:     h.Started,
		LastSuccess: h.LastSuccess,
		LastErr:     h.LastErr,
		SessionKey:  a.cfg.OpenF1.SessionKey,
		Interval:    a.cfg.Poll.Interval,
		SeenRecords: a.tracker.Len(),
		Breaker:     a.breaker.State().String(),
		Delivery:    a.pipeline.Stats().Snapshot(),
	}
}

// Poller returns the poll loop.
func (a *App) Poller() *poller.Poller {
	return a.poller
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the poll loop and the ops server and blocks until ctx is
// cancelled and both have stopped. It returns nil on a clean stop and the
// first failure otherwise.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.poller.Run(gctx)
	})

	if a.opsServer != nil {
		slog.Info("ops server listening", "addr", a.opsListener.Addr().String())
		g.Go(func() error {
			if err := a.opsServer.Serve(a.opsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.opsServer.Shutdown(ctx)
		})
	}

	slog.Info("app running",
		"channel_id", a.cfg.Discord.ChannelID,
		"interval", a.cfg.Poll.Interval,
		"ops", a.opsServer != nil)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases resources not tied to Run's context. It is safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete", "seen_records", a.tracker.Len())
	})
	return shutdownErr
}
