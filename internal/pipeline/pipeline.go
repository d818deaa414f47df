// Package pipeline delivers a single team radio record to Discord:
// download the clip, publish it, remove the temporary file.
//
// Both the poll loop and the chat commands deliver through the same
// [Pipeline], so a clip is presented identically no matter what triggered it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/pitwall/internal/download"
	"github.com/MrWong99/pitwall/internal/observe"
	"github.com/MrWong99/pitwall/internal/openf1"
	"github.com/MrWong99/pitwall/internal/publish"
)

// Downloader fetches a clip to local disk.
type Downloader interface {
	Download(ctx context.Context, rawURL, prefix string) (*download.File, error)
}

// Publisher posts a notice to a channel and reports the mode used.
type Publisher interface {
	Publish(ctx context.Context, channelID string, n publish.Notice) (string, error)
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithStats records delivery latencies and outcomes into s.
func WithStats(s *Stats) Option {
	return func(p *Pipeline) {
		p.stats = s
	}
}

// Pipeline composes a [Downloader] and a [Publisher].
type Pipeline struct {
	downloader Downloader
	publisher  Publisher
	stats      *Stats
}

// New creates a Pipeline.
func New(d Downloader, p Publisher, opts ...Option) *Pipeline {
	pl := &Pipeline{downloader: d, publisher: p}
	for _, o := range opts {
		o(pl)
	}
	if pl.stats == nil {
		pl.stats = NewStats(0)
	}
	return pl
}

// Stats returns the delivery statistics collector.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// Deliver announces rec in channelID with content as the message text. The
// clip is attached when it can be downloaded and linked otherwise. Only a
// [*publish.PublishError] is returned; download problems select the link
// tier. Any temporary file is removed before Deliver returns.
func (p *Pipeline) Deliver(ctx context.Context, channelID string, rec openf1.RadioRecord, content string) error {
	ctx, span := observe.StartSpan(ctx, "pipeline.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("radio.id", rec.ID()),
		attribute.Int("radio.driver_number", rec.DriverNumber),
	)
	log := observe.Logger(ctx)

	notice := publish.Notice{Record: rec, Content: content}

	if rec.RecordingURL == "" {
		notice.FallbackReason = "No recording available"
	} else {
		prefix := fmt.Sprintf("radio_driver_%d", rec.DriverNumber)
		start := time.Now()
		f, err := p.downloader.Download(ctx, rec.RecordingURL, prefix)
		p.stats.RecordDownload(time.Since(start))
		defer func() {
			if rmErr := f.Remove(); rmErr != nil {
				log.Warn("pipeline: failed to remove clip", "path", f.Path, "err", rmErr)
			}
		}()
		if err != nil {
			notice.FallbackReason = FallbackReason(err)
			log.Info("pipeline: clip not attachable, using link",
				"driver", rec.DriverNumber,
				"reason", notice.FallbackReason,
				"err", err)
		} else {
			notice.File = f
		}
	}

	start := time.Now()
	mode, err := p.publisher.Publish(ctx, channelID, notice)
	p.stats.RecordPublish(time.Since(start))
	if err != nil {
		p.stats.RecordFailed()
		observe.Fail(span, err)
		return err
	}
	p.stats.RecordDelivered(mode)
	span.SetAttributes(attribute.String("publish.mode", mode))
	log.Info("pipeline: team radio delivered",
		"channel_id", channelID,
		"driver", rec.DriverNumber,
		"mode", mode)
	return nil
}

// FallbackReason turns a download error into the short explanation shown
// on a link-only notification.
func FallbackReason(err error) string {
	var oe *download.OversizeError
	if errors.As(err, &oe) {
		if oe.Streamed {
			return fmt.Sprintf("File too large (over %s)", formatSize(oe.Limit))
		}
		return fmt.Sprintf("File too large (%s)", formatSize(oe.Size))
	}
	return "Download failed"
}

// formatSize renders n bytes in MB, or in KB below one megabyte.
func formatSize(n int64) string {
	if n < 1<<20 {
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
}
