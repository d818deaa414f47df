// Package commands implements the team radio chat commands.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/pitwall/internal/discord"
	"github.com/MrWong99/pitwall/internal/observe"
	"github.com/MrWong99/pitwall/internal/openf1"
	"github.com/MrWong99/pitwall/internal/poller"
)

// DefaultTestAudioURL is a known-good clip from the 2025 Singapore Grand
// Prix, second practice.
const DefaultTestAudioURL = "https://livetiming.formula1.com/static/2025/2025-10-05_Singapore_Grand_Prix/2025-10-03_Practice_2/TeamRadio/LIALAW01_30_20251003_210721.mp3"

// Command limits applied when [Config] leaves them zero.
const (
	DefaultRadioLimit       = 3
	DefaultDriverRadioLimit = 5
)

const helpColor = 0xFF0000

// Command status labels for metrics.
const (
	statusOK    = "ok"
	statusEmpty = "empty"
	statusError = "error"
	statusUsage = "usage"
)

// Fetcher retrieves team radio records.
type Fetcher interface {
	TeamRadio(ctx context.Context, q openf1.Query) ([]openf1.RadioRecord, error)
}

// Deliverer announces a single record in a channel.
type Deliverer interface {
	Deliver(ctx context.Context, channelID string, rec openf1.RadioRecord, content string) error
}

// Config holds command settings.
type Config struct {
	// RadioLimit caps how many clips !radio posts. Defaults to 3.
	RadioLimit int

	// DriverRadioLimit caps how many clips !driver_radio posts. Defaults to 5.
	DriverRadioLimit int

	// TestAudioURL is the clip !test_audio delivers.
	TestAudioURL string

	// PollInterval is shown in the help text.
	PollInterval time.Duration
}

// Option is a functional option for configuring [RadioCommands].
type Option func(*RadioCommands)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(rc *RadioCommands) {
		rc.metrics = m
	}
}

// RadioCommands handles the team radio chat commands. Commands always fetch
// and post on demand; they do not consult or update the poller's seen set.
type RadioCommands struct {
	fetcher   Fetcher
	deliverer Deliverer
	cfg       Config
	metrics   *observe.Metrics
	prefix    string
	status    func() Status
}

// NewRadioCommands creates a RadioCommands.
func NewRadioCommands(f Fetcher, d Deliverer, cfg Config, opts ...Option) *RadioCommands {
	if cfg.RadioLimit <= 0 {
		cfg.RadioLimit = DefaultRadioLimit
	}
	if cfg.DriverRadioLimit <= 0 {
		cfg.DriverRadioLimit = DefaultDriverRadioLimit
	}
	if cfg.TestAudioURL == "" {
		cfg.TestAudioURL = DefaultTestAudioURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = poller.DefaultInterval
	}
	rc := &RadioCommands{
		fetcher:   f,
		deliverer: d,
		cfg:       cfg,
		prefix:    discord.DefaultPrefix,
	}
	for _, o := range opts {
		o(rc)
	}
	if rc.metrics == nil {
		rc.metrics = observe.DefaultMetrics()
	}
	return rc
}

// Register adds every radio command to router.
func (rc *RadioCommands) Register(router *discord.CommandRouter) {
	rc.prefix = router.Prefix()
	for _, c := range rc.Commands() {
		router.RegisterCommand(c.Command, c.Handler)
	}
}

// Entry pairs a command definition with its handler.
type Entry struct {
	discord.Command
	Handler discord.HandlerFunc
}

// Commands returns the command definitions in help order. radio_status is
// only included when a status source was configured with [WithStatus].
func (rc *RadioCommands) Commands() []Entry {
	entries := []Entry{
		{discord.Command{
			Name:        "radio",
			Usage:       "radio [driver_number] [session_key]",
			Description: "Get team radio data. Both parameters are optional.\nExample: `%sradio 44 latest`",
		}, rc.handleRadio},
		{discord.Command{
			Name:        "latest_radio",
			Usage:       "latest_radio",
			Description: "Get the most recent team radio from the latest session",
		}, rc.handleLatestRadio},
		{discord.Command{
			Name:        "driver_radio",
			Usage:       "driver_radio <driver_number>",
			Description: "Get all team radio for a specific driver from latest session\nExample: `%sdriver_radio 44`",
		}, rc.handleDriverRadio},
		{discord.Command{
			Name:        "test_audio",
			Usage:       "test_audio",
			Description: "Test audio upload with a sample F1 team radio file",
		}, rc.handleTestAudio},
	}
	if rc.status != nil {
		entries = append(entries, Entry{discord.Command{
			Name:        "radio_status",
			Usage:       "radio_status",
			Description: "Show poller health and delivery statistics",
		}, rc.handleStatus})
	}
	return append(entries, Entry{discord.Command{
		Name:        "help_radio",
		Usage:       "help_radio",
		Description: "Show available commands",
	}, rc.handleHelp})
}

// handleRadio handles !radio [driver_number] [session_key]. The first
// argument is a driver number only if it parses as an integer; otherwise it
// is the session key.
func (rc *RadioCommands) handleRadio(ctx context.Context, req *discord.Request) {
	q := openf1.Query{SessionKey: openf1.LatestSession}
	args := req.Args
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			if n <= 0 {
				rc.metrics.RecordCommand(ctx, req.Command, statusUsage)
				discord.Reply(ctx, req.Sender, req.ChannelID,
					fmt.Sprintf("❌ Usage: `%sradio [driver_number] [session_key]`, e.g. `%sradio 44`", rc.prefix, rc.prefix))
				return
			}
			q.DriverNumber = n
			args = args[1:]
		}
	}
	if len(args) > 0 {
		q.SessionKey = args[0]
	}

	rc.run(ctx, req, q, runSpec{
		progress: "🔍 Fetching F1 team radio data...",
		empty:    "❌ No team radio data found for the specified parameters.",
		limit:    rc.cfg.RadioLimit,
	})
}

// handleLatestRadio handles !latest_radio.
func (rc *RadioCommands) handleLatestRadio(ctx context.Context, req *discord.Request) {
	rc.run(ctx, req, openf1.Query{SessionKey: openf1.LatestSession}, runSpec{
		progress: "🔍 Fetching latest F1 team radio...",
		empty:    "❌ No recent team radio data found.",
		limit:    1,
	})
}

// handleDriverRadio handles !driver_radio <driver_number>.
func (rc *RadioCommands) handleDriverRadio(ctx context.Context, req *discord.Request) {
	var driver int
	var err error
	if len(req.Args) > 0 {
		driver, err = strconv.Atoi(req.Args[0])
	}
	if len(req.Args) == 0 || err != nil || driver <= 0 {
		rc.metrics.RecordCommand(ctx, req.Command, statusUsage)
		discord.Reply(ctx, req.Sender, req.ChannelID,
			fmt.Sprintf("❌ Usage: `%sdriver_radio <driver_number>`, e.g. `%sdriver_radio 44`", rc.prefix, rc.prefix))
		return
	}

	rc.run(ctx, req, openf1.Query{SessionKey: openf1.LatestSession, DriverNumber: driver}, runSpec{
		progress: fmt.Sprintf("🔍 Fetching team radio for driver #%d...", driver),
		empty:    fmt.Sprintf("❌ No team radio found for driver #%d.", driver),
		limit:    rc.cfg.DriverRadioLimit,
	})
}

// handleTestAudio handles !test_audio. It delivers a fixed sample record
// without asking OpenF1.
func (rc *RadioCommands) handleTestAudio(ctx context.Context, req *discord.Request) {
	ctx, span := observe.StartSpan(ctx, "commands.test_audio")
	defer span.End()

	discord.Reply(ctx, req.Sender, req.ChannelID, "🧪 Testing audio upload...")
	if err := rc.deliverer.Deliver(ctx, req.ChannelID, TestRecord(rc.cfg.TestAudioURL), ""); err != nil {
		observe.Logger(ctx).Error("commands: test audio delivery failed", "err", err)
		rc.metrics.RecordCommand(ctx, req.Command, statusError)
		return
	}
	rc.metrics.RecordCommand(ctx, req.Command, statusOK)
}

// handleHelp handles !help_radio.
func (rc *RadioCommands) handleHelp(ctx context.Context, req *discord.Request) {
	discord.ReplyEmbed(ctx, req.Sender, req.ChannelID, rc.HelpEmbed())
	rc.metrics.RecordCommand(ctx, req.Command, statusOK)
}

// HelpEmbed builds the command overview.
func (rc *RadioCommands) HelpEmbed() *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "🏁 F1 Team Radio Bot Commands",
		Description: "Available commands for fetching F1 team radio data",
		Color:       helpColor,
	}
	for _, e := range rc.Commands() {
		if e.Name == "help_radio" {
			continue
		}
		value := e.Description
		if e.Name == "radio" || e.Name == "driver_radio" {
			value = fmt.Sprintf(e.Description, rc.prefix)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  rc.prefix + e.Usage,
			Value: value,
		})
	}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{
			Name:  "Auto-posting",
			Value: fmt.Sprintf("The bot automatically posts new team radio messages every %s", humanInterval(rc.cfg.PollInterval)),
		},
		&discordgo.MessageEmbedField{
			Name:  "🎵 Audio Features",
			Value: "• Uploads MP3 files directly to Discord\n• No conversion required\n• Fallback to MP3 links if upload fails",
		},
	)
	return embed
}

// TestRecord is the sample record delivered by !test_audio.
func TestRecord(url string) openf1.RadioRecord {
	return openf1.RadioRecord{
		SessionKey:   9890,
		MeetingKey:   1270,
		DriverNumber: 30,
		Date:         "2025-10-03T13:07:24.559000+00:00",
		RecordingURL: url,
	}
}

type runSpec struct {
	progress string
	empty    string
	limit    int
}

// run is the shared fetch → sort → cap → deliver flow of the query commands.
func (rc *RadioCommands) run(ctx context.Context, req *discord.Request, q openf1.Query, spec runSpec) {
	ctx, span := observe.StartSpan(ctx, "commands."+req.Command)
	defer span.End()
	span.SetAttributes(
		attribute.String("radio.session", q.SessionKey),
		attribute.Int("radio.driver_number", q.DriverNumber),
	)
	log := observe.Logger(ctx)

	discord.Reply(ctx, req.Sender, req.ChannelID, spec.progress)

	records, err := rc.fetcher.TeamRadio(ctx, q)
	if err != nil {
		log.Warn("commands: fetch failed", "command", req.Command, "err", err)
		rc.metrics.RecordCommand(ctx, req.Command, statusError)
		discord.ReplyError(ctx, req.Sender, req.ChannelID, "Could not fetch team radio data", err)
		return
	}
	if len(records) == 0 {
		rc.metrics.RecordCommand(ctx, req.Command, statusEmpty)
		discord.Reply(ctx, req.Sender, req.ChannelID, spec.empty)
		return
	}

	records = openf1.SortNewestFirst(records)
	if len(records) > spec.limit {
		records = records[:spec.limit]
	}

	status := statusOK
	for _, rec := range records {
		if ctx.Err() != nil {
			status = statusError
			break
		}
		if err := rc.deliverer.Deliver(ctx, req.ChannelID, rec, ""); err != nil {
			log.Error("commands: delivery failed", "command", req.Command, "id", rec.ID(), "err", err)
			status = statusError
		}
	}
	rc.metrics.RecordCommand(ctx, req.Command, status)
}

// humanInterval renders d the way the help text reads best, e.g.
// "2 minutes" or "30 seconds".
func humanInterval(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "minute"
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
