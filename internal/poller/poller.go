// Package poller periodically fetches the latest team radio records and
// announces the ones that have not been announced before.
//
// A [Poller] runs one pass immediately and then one pass per interval on a
// cron schedule. Passes never overlap: a tick that fires while a pass is
// still running is skipped.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/pitwall/internal/dedup"
	"github.com/MrWong99/pitwall/internal/observe"
	"github.com/MrWong99/pitwall/internal/openf1"
)

// Defaults applied by [New].
const (
	// DefaultAnnouncement is the text posted above each newly seen clip.
	DefaultAnnouncement = "🆕 **New Team Radio!**"

	DefaultInterval = 2 * time.Minute
)

// Fetcher retrieves team radio records.
type Fetcher interface {
	TeamRadio(ctx context.Context, q openf1.Query) ([]openf1.RadioRecord, error)
}

// Deliverer announces a single record in a channel.
type Deliverer interface {
	Deliver(ctx context.Context, channelID string, rec openf1.RadioRecord, content string) error
}

// Config holds poll loop settings.
type Config struct {
	// ChannelID is the Discord channel new clips are announced in.
	ChannelID string

	// Interval is the time between passes. Defaults to two minutes.
	Interval time.Duration

	// SessionKey selects the session to watch. Defaults to "latest".
	SessionKey string

	// Announcement is the message text above each clip.
	Announcement string
}

// Option is a functional option for configuring a [Poller].
type Option func(*Poller)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// WithClock replaces time.Now for readiness calculations.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// Poller owns the poll loop.
type Poller struct {
	fetcher   Fetcher
	tracker   *dedup.Tracker
	deliverer Deliverer
	cfg       Config
	metrics   *observe.Metrics
	now       func() time.Time

	mu          sync.Mutex
	started     time.Time
	lastSuccess time.Time
	lastErr     error
}

// New creates a Poller. The tracker is shared with nothing else that
// announces in cfg.ChannelID.
func New(f Fetcher, tracker *dedup.Tracker, d Deliverer, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = openf1.LatestSession
	}
	if cfg.Announcement == "" {
		cfg.Announcement = DefaultAnnouncement
	}
	p := &Poller{
		fetcher:   f,
		tracker:   tracker,
		deliverer: d,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.started = p.now()
	return p
}

// Poll runs a single pass: fetch the watched session, claim every record not
// seen before and deliver the claimed ones oldest first. It returns the
// number of records delivered and the fetch error, if any. Delivery failures
// are logged; the claimed record stays seen and the pass continues.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	ctx, span := observe.StartSpan(ctx, "poller.Poll")
	defer span.End()
	log := observe.Logger(ctx)

	start := time.Now()
	defer func() {
		p.metrics.PollDuration.Record(ctx, time.Since(start).Seconds())
	}()

	records, err := p.fetcher.TeamRadio(ctx, openf1.Query{SessionKey: p.cfg.SessionKey})
	if err != nil {
		p.setResult(err)
		p.metrics.RecordPoll(ctx, pollStatus(err))
		observe.Fail(span, err)
		log.Warn("poller: fetch failed", "session", p.cfg.SessionKey, "err", err)
		return 0, err
	}
	p.setResult(nil)

	var fresh []openf1.RadioRecord
	for _, rec := range openf1.SortOldestFirst(records) {
		if p.tracker.Claim(rec.ID()) {
			fresh = append(fresh, rec)
		}
	}
	if len(fresh) > 0 {
		p.metrics.SeenRecords.Add(ctx, int64(len(fresh)))
	}
	span.SetAttributes(
		attribute.Int("poll.records", len(records)),
		attribute.Int("poll.new", len(fresh)),
	)

	delivered := 0
	for _, rec := range fresh {
		if ctx.Err() != nil {
			break
		}
		if err := p.deliverer.Deliver(ctx, p.cfg.ChannelID, rec, p.cfg.Announcement); err != nil {
			log.Error("poller: delivery failed",
				"id", rec.ID(),
				"driver", rec.DriverNumber,
				"err", err)
			continue
		}
		delivered++
	}

	p.metrics.RecordPoll(ctx, "ok")
	if len(fresh) > 0 {
		log.Info("poller: pass complete",
			"fetched", len(records),
			"new", len(fresh),
			"delivered", delivered)
	} else {
		log.Debug("poller: no new team radio", "fetched", len(records))
	}
	return delivered, nil
}

// Run polls once immediately and then every interval until ctx is
// cancelled. It returns after the in-flight pass, if any, has finished.
func (p *Poller) Run(ctx context.Context) error {
	logger := cronLogger{l: slog.Default().With("component", "poller")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(cron.Every(p.cfg.Interval), cron.FuncJob(func() {
		_, _ = p.Poll(ctx)
	}))

	slog.Info("poller started",
		"channel_id", p.cfg.ChannelID,
		"interval", p.cfg.Interval,
		"session", p.cfg.SessionKey)

	_, _ = p.Poll(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("poller stopped")
	return nil
}

// Ready reports an error when no fetch has succeeded within three intervals,
// counted from the last success or from startup.
func (p *Poller) Ready(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	since := p.lastSuccess
	if since.IsZero() {
		since = p.started
	}
	if p.now().Sub(since) <= 3*p.cfg.Interval {
		return nil
	}
	if p.lastErr != nil {
		return fmt.Errorf("no successful fetch since %s: %w", since.Format(time.RFC3339), p.lastErr)
	}
	return fmt.Errorf("no successful fetch since %s", since.Format(time.RFC3339))
}

// Health is a snapshot of the poll loop's recent results.
type Health struct {
	Started     time.Time
	LastSuccess time.Time // zero until the first successful fetch
	LastErr     error     // error of the most recent pass, nil if it succeeded
}

// Health returns the poll loop's recent results.
func (p *Poller) Health() Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Health{Started: p.started, LastSuccess: p.lastSuccess, LastErr: p.lastErr}
}

func (p *Poller) setResult(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err == nil {
		p.lastSuccess = p.now()
	}
}

// pollStatus labels a failed pass for metrics.
func pollStatus(err error) string {
	var pe *openf1.ParseError
	switch {
	case errors.As(err, &pe):
		return "parse_error"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "fetch_error"
	}
}

// cronLogger adapts slog to [cron.Logger]. Scheduler chatter goes to debug.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
