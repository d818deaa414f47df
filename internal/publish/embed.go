package publish

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pitwall/internal/openf1"
)

const (
	embedTitle  = "🏁 F1 Team Radio"
	embedColor  = 0xFF0000
	embedFooter = "OpenF1 API • F1 Team Radio Bot"
	linkField   = "🎧 Original MP3 Link"
	dateLayout  = "2006-01-02 15:04:05 UTC"
	unknownDate = "unknown"
)

// AttachmentName is the file name a clip for driver carries on Discord.
func AttachmentName(driver int) string {
	return fmt.Sprintf("radio_driver_%d.mp3", driver)
}

// FormatDate renders a record date for display. Unparseable dates are
// returned unchanged and a missing date renders as "unknown", since Discord
// rejects empty field values.
func FormatDate(rec openf1.RadioRecord) string {
	t, ok := rec.Time()
	if !ok {
		if strings.TrimSpace(rec.Date) == "" {
			return unknownDate
		}
		return rec.Date
	}
	return t.UTC().Format(dateLayout)
}

// RadioEmbed builds the embed describing rec. When withLink is set the
// recording URL is added as a field and reason, if any, becomes the
// description.
func RadioEmbed(rec openf1.RadioRecord, withLink bool, reason string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: embedTitle,
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Driver Number", Value: fmt.Sprintf("#%d", rec.DriverNumber), Inline: true},
			{Name: "Date", Value: FormatDate(rec), Inline: true},
			{Name: "Session", Value: fmt.Sprintf("%d", rec.SessionKey), Inline: true},
			{Name: "Meeting", Value: fmt.Sprintf("%d", rec.MeetingKey), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: embedFooter},
	}
	if t, ok := rec.Time(); ok {
		embed.Timestamp = t.UTC().Format(time.RFC3339)
	}
	if withLink && rec.RecordingURL != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  linkField,
			Value: fmt.Sprintf("[MP3 Link](%s)", rec.RecordingURL),
		})
		if reason != "" {
			embed.Description = fmt.Sprintf("⚠️ %s, use the link below.", reason)
		}
	}
	return embed
}
