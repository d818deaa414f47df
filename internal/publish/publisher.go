// Package publish posts team radio notifications to a Discord channel.
//
// A notification is one message: an embed describing the clip and, when the
// clip could be downloaded, the MP3 attached to the same message. Otherwise
// the embed links to the original recording.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/pitwall/internal/download"
	"github.com/MrWong99/pitwall/internal/observe"
	"github.com/MrWong99/pitwall/internal/openf1"
)

// Sender is the subset of [discordgo.Session] used to post messages.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Delivery modes reported in metrics and logs.
const (
	ModeAttachment = "attachment"
	ModeLink       = "link"
)

// PublishError reports a notification that could not be posted at all.
type PublishError struct {
	ChannelID string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: channel %s: %v", e.ChannelID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Notice is one notification to post.
type Notice struct {
	// Record is the clip being announced.
	Record openf1.RadioRecord

	// File is the downloaded clip. Nil selects the link tier.
	File *download.File

	// Content is optional message text shown above the embed.
	Content string

	// FallbackReason explains why the link tier was used, e.g. "Download
	// failed". Ignored when File is set.
	FallbackReason string
}

// Option is a functional option for configuring a [Publisher].
type Option func(*Publisher)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// Publisher posts notices through a [Sender].
type Publisher struct {
	sender  Sender
	metrics *observe.Metrics
}

// New creates a Publisher that posts through sender.
func New(sender Sender, opts ...Option) *Publisher {
	p := &Publisher{sender: sender}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Publish posts n to channelID. A rejected attachment post is retried once
// as a link-only post; a [*PublishError] is returned only if that fails too.
// It returns the mode that was finally used.
func (p *Publisher) Publish(ctx context.Context, channelID string, n Notice) (string, error) {
	ctx, span := observe.StartSpan(ctx, "publish.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.Int("radio.driver_number", n.Record.DriverNumber),
		attribute.String("radio.id", n.Record.ID()),
	)

	start := time.Now()
	defer func() {
		p.metrics.PublishDuration.Record(ctx, time.Since(start).Seconds())
	}()

	reason := n.FallbackReason
	if n.File != nil {
		err := p.sendAttachment(ctx, channelID, n)
		if err == nil {
			p.metrics.RecordDelivery(ctx, ModeAttachment, "ok")
			span.SetAttributes(attribute.String("publish.mode", ModeAttachment))
			return ModeAttachment, nil
		}
		observe.Logger(ctx).Warn("publish: attachment rejected, retrying as link",
			"channel_id", channelID,
			"driver", n.Record.DriverNumber,
			"err", err)
		p.metrics.RecordDelivery(ctx, ModeAttachment, "error")
		reason = "Upload failed"
	}

	if err := p.sendLink(ctx, channelID, n, reason); err != nil {
		p.metrics.RecordDelivery(ctx, ModeLink, "error")
		observe.Fail(span, err)
		return "", &PublishError{ChannelID: channelID, Err: err}
	}
	p.metrics.RecordDelivery(ctx, ModeLink, "ok")
	span.SetAttributes(attribute.String("publish.mode", ModeLink))
	return ModeLink, nil
}

func (p *Publisher) sendAttachment(ctx context.Context, channelID string, n Notice) error {
	f, err := n.File.Open()
	if err != nil {
		return fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	_, err = p.sender.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: n.Content,
		Embeds:  []*discordgo.MessageEmbed{RadioEmbed(n.Record, false, "")},
		Files: []*discordgo.File{{
			Name:        AttachmentName(n.Record.DriverNumber),
			ContentType: "audio/mpeg",
			Reader:      f,
		}},
	}, discordgo.WithContext(ctx))
	return err
}

func (p *Publisher) sendLink(ctx context.Context, channelID string, n Notice, reason string) error {
	_, err := p.sender.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: n.Content,
		Embeds:  []*discordgo.MessageEmbed{RadioEmbed(n.Record, true, reason)},
	}, discordgo.WithContext(ctx))
	return err
}
