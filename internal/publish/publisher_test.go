package publish

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pitwall/internal/discord/mock"
	"github.com/MrWong99/pitwall/internal/download"
	"github.com/MrWong99/pitwall/internal/openf1"
)

var testRecord = openf1.RadioRecord{
	SessionKey:   9158,
	MeetingKey:   1219,
	DriverNumber: 44,
	Date:         "2023-09-15T09:40:43.005000+00:00",
	RecordingURL: "https://livetiming.formula1.com/static/2023/LEWHAM01_44.mp3",
}

func writeClip(t *testing.T, data []byte) *download.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return &download.File{Path: path, Name: "clip.mp3", Size: int64(len(data))}
}

func fieldValue(embed *discordgo.MessageEmbed, name string) (string, bool) {
	for _, f := range embed.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func TestPublish_Attachment(t *testing.T) {
	t.Parallel()

	sender := &mock.Sender{}
	p := New(sender)
	clip := []byte("ID3 fake mp3 payload")

	mode, err := p.Publish(context.Background(), "123", Notice{
		Record:  testRecord,
		File:    writeClip(t, clip),
		Content: "🆕 **New Team Radio!**",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if mode != ModeAttachment {
		t.Errorf("mode = %q, want %q", mode, ModeAttachment)
	}

	posts := sender.Posts()
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want exactly 1", len(posts))
	}
	post := posts[0]
	if post.ChannelID != "123" {
		t.Errorf("ChannelID = %q, want 123", post.ChannelID)
	}
	if post.Content != "🆕 **New Team Radio!**" {
		t.Errorf("Content = %q", post.Content)
	}
	if len(post.Files) != 1 || post.Files[0] != "radio_driver_44.mp3" {
		t.Fatalf("Files = %v, want [radio_driver_44.mp3]", post.Files)
	}
	if !bytes.Equal(post.FileData[0], clip) {
		t.Error("attachment content differs from clip")
	}
	if len(post.Embeds) != 1 {
		t.Fatalf("Embeds = %d, want 1", len(post.Embeds))
	}
	if _, ok := fieldValue(post.Embeds[0], linkField); ok {
		t.Error("attachment post must not carry the link field")
	}
}

func TestPublish_LinkFallback(t *testing.T) {
	t.Parallel()

	sender := &mock.Sender{}
	p := New(sender)

	mode, err := p.Publish(context.Background(), "123", Notice{
		Record:         testRecord,
		FallbackReason: "File too large (30.0 MB)",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if mode != ModeLink {
		t.Errorf("mode = %q, want %q", mode, ModeLink)
	}

	post := sender.LastPost()
	if post == nil || len(post.Files) != 0 {
		t.Fatalf("want one post without files, got %+v", post)
	}
	embed := post.Embeds[0]
	link, ok := fieldValue(embed, linkField)
	if !ok || !strings.Contains(link, testRecord.RecordingURL) {
		t.Errorf("link field = %q, want it to contain the recording URL", link)
	}
	if !strings.Contains(embed.Description, "File too large (30.0 MB)") {
		t.Errorf("Description = %q, want the fallback reason", embed.Description)
	}
}

func TestPublish_AttachmentRejectedRetriesAsLink(t *testing.T) {
	t.Parallel()

	sender := &mock.Sender{AttachmentErr: errors.New("413 request entity too large")}
	p := New(sender)

	mode, err := p.Publish(context.Background(), "123", Notice{
		Record: testRecord,
		File:   writeClip(t, []byte("payload")),
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if mode != ModeLink {
		t.Errorf("mode = %q, want %q", mode, ModeLink)
	}
	posts := sender.Posts()
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(posts))
	}
	if _, ok := fieldValue(posts[0].Embeds[0], linkField); !ok {
		t.Error("retry post is missing the link field")
	}
}

func TestPublish_PublishError(t *testing.T) {
	t.Parallel()

	boom := errors.New("missing access")
	sender := &mock.Sender{Err: boom}
	p := New(sender)

	_, err := p.Publish(context.Background(), "123", Notice{
		Record: testRecord,
		File:   writeClip(t, []byte("payload")),
	})
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PublishError", err)
	}
	if pe.ChannelID != "123" {
		t.Errorf("ChannelID = %q, want 123", pe.ChannelID)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom in chain", err)
	}
	if n := len(sender.Posts()); n != 0 {
		t.Errorf("posts = %d, want 0", n)
	}
}

func TestPublish_MissingFileFallsBackToLink(t *testing.T) {
	t.Parallel()

	sender := &mock.Sender{}
	p := New(sender)
	f := writeClip(t, []byte("payload"))
	if err := f.Remove(); err != nil {
		t.Fatal(err)
	}

	mode, err := p.Publish(context.Background(), "123", Notice{Record: testRecord, File: f})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if mode != ModeLink {
		t.Errorf("mode = %q, want %q", mode, ModeLink)
	}
}

func TestRadioEmbed(t *testing.T) {
	t.Parallel()

	embed := RadioEmbed(testRecord, false, "")
	if embed.Title != "🏁 F1 Team Radio" {
		t.Errorf("Title = %q", embed.Title)
	}
	if embed.Color != 0xFF0000 {
		t.Errorf("Color = %#x, want 0xff0000", embed.Color)
	}
	if embed.Footer == nil || embed.Footer.Text != "OpenF1 API • F1 Team Radio Bot" {
		t.Errorf("Footer = %+v", embed.Footer)
	}
	if embed.Timestamp != "2023-09-15T09:40:43Z" {
		t.Errorf("Timestamp = %q", embed.Timestamp)
	}

	want := map[string]string{
		"Driver Number": "#44",
		"Date":          "2023-09-15 09:40:43 UTC",
		"Session":       "9158",
		"Meeting":       "1219",
	}
	for name, value := range want {
		got, ok := fieldValue(embed, name)
		if !ok {
			t.Errorf("missing field %q", name)
			continue
		}
		if got != value {
			t.Errorf("field %q = %q, want %q", name, got, value)
		}
	}
	if embed.Description != "" {
		t.Errorf("Description = %q, want empty", embed.Description)
	}
}

func TestFormatDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		date string
		want string
	}{
		{"2025-10-03T13:07:24.559000+00:00", "2025-10-03 13:07:24 UTC"},
		{"2025-10-03T15:07:24+02:00", "2025-10-03 13:07:24 UTC"},
		{"not a date", "not a date"},
		{"", "unknown"},
		{"  ", "unknown"},
	}
	for _, tt := range tests {
		if got := FormatDate(openf1.RadioRecord{Date: tt.date}); got != tt.want {
			t.Errorf("FormatDate(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestAttachmentName(t *testing.T) {
	t.Parallel()

	if got := AttachmentName(1); got != "radio_driver_1.mp3" {
		t.Errorf("AttachmentName(1) = %q", got)
	}
}
