package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pitwall/internal/discord"
	"github.com/MrWong99/pitwall/internal/pipeline"
)

// Status sidebar colours.
const (
	statusColorGreen = 0x2ECC71
	statusColorRed   = 0xE74C3C
)

// Status is what !radio_status reports.
type Status struct {
	// Healthy is false when the poll loop has not succeeded recently.
	Healthy bool

	Started     time.Time
	LastSuccess time.Time
	LastErr     error

	SessionKey  string
	Interval    time.Duration
	SeenRecords int

	// Breaker is the clip host circuit breaker state.
	Breaker string

	Delivery pipeline.Snapshot
}

// WithStatus enables !radio_status, reporting whatever fn returns.
func WithStatus(fn func() Status) Option {
	return func(rc *RadioCommands) {
		rc.status = fn
	}
}

// handleStatus handles !radio_status.
func (rc *RadioCommands) handleStatus(ctx context.Context, req *discord.Request) {
	discord.ReplyEmbed(ctx, req.Sender, req.ChannelID, StatusEmbed(rc.status(), time.Now()))
	rc.metrics.RecordCommand(ctx, req.Command, statusOK)
}

// StatusEmbed renders s as of now.
func StatusEmbed(s Status, now time.Time) *discordgo.MessageEmbed {
	lastPoll := "never"
	if !s.LastSuccess.IsZero() {
		lastPoll = formatDuration(now.Sub(s.LastSuccess)) + " ago"
	}

	d := s.Delivery
	fields := []*discordgo.MessageEmbedField{
		{Name: "Session", Value: fmt.Sprintf("`%s`", s.SessionKey), Inline: true},
		{Name: "Interval", Value: s.Interval.String(), Inline: true},
		{Name: "Uptime", Value: formatDuration(now.Sub(s.Started)), Inline: true},
		{Name: "Last Successful Poll", Value: lastPoll, Inline: true},
		{Name: "Clips Seen", Value: fmt.Sprintf("%d", s.SeenRecords), Inline: true},
		{Name: "Clip Host", Value: s.Breaker, Inline: true},
		{Name: "Delivered", Value: fmt.Sprintf("%d attached, %d linked, %d failed", d.Attached, d.Linked, d.Failed)},
	}
	if latency := formatLatencyField(d); latency != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Latency", Value: latency})
	}
	if s.LastErr != nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Last Error",
			Value: fmt.Sprintf("`%s`", s.LastErr),
		})
	}

	color := statusColorGreen
	if !s.Healthy {
		color = statusColorRed
	}
	return &discordgo.MessageEmbed{
		Title:     "🏁 Pit Wall Status",
		Color:     color,
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: "OpenF1 API • F1 Team Radio Bot"},
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// formatLatencyField builds a compact code block with the delivery
// latencies, or "" when nothing has been sampled.
func formatLatencyField(snap pipeline.Snapshot) string {
	var lines []string
	if snap.Download.P50 > 0 || snap.Download.P95 > 0 {
		lines = append(lines, fmt.Sprintf("Download: p50=%s p95=%s", formatMs(snap.Download.P50), formatMs(snap.Download.P95)))
	}
	if snap.Publish.P50 > 0 || snap.Publish.P95 > 0 {
		lines = append(lines, fmt.Sprintf("Publish:  p50=%s p95=%s", formatMs(snap.Publish.P50), formatMs(snap.Publish.P95)))
	}
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("```\n")
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	b.WriteString("```")
	return b.String()
}

// formatMs formats a duration as milliseconds with one decimal place.
func formatMs(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
}

// formatDuration formats a duration as "Xh Ym Zs".
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
