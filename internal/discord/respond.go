package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pitwall/internal/publish"
)

// Reply sends a plain text message to channelID.
func Reply(ctx context.Context, s publish.Sender, channelID, content string) {
	if _, err := s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		slog.Warn("discord: failed to send reply", "channel_id", channelID, "err", err)
	}
}

// ReplyEmbed sends a single embed to channelID.
func ReplyEmbed(ctx context.Context, s publish.Sender, channelID string, embed *discordgo.MessageEmbed) {
	_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("discord: failed to send embed", "channel_id", channelID, "err", err)
	}
}

// ReplyError sends a formatted error message.
func ReplyError(ctx context.Context, s publish.Sender, channelID, what string, err error) {
	Reply(ctx, s, channelID, fmt.Sprintf("❌ %s: %v", what, err))
}
