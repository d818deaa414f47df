// Package discord provides the Discord bot layer for pitwall. It owns the
// discordgo.Session lifecycle, routes prefixed chat commands to registered
// handlers, and checks the optional command role.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string

	// ChannelID is the channel new team radio is announced in.
	ChannelID string

	// Prefix marks chat commands. Defaults to [DefaultPrefix].
	Prefix string

	// CommandRoleID restricts commands to members holding this role. Empty
	// allows everyone.
	CommandRoleID string
}

// ErrNotReady is returned by [Bot.Ready] before the gateway has sent READY.
var ErrNotReady = errors.New("discord: gateway not ready")

// Bot owns the Discord gateway connection and routes chat messages to
// registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	channel   *discordgo.Channel
	ctx       context.Context
	cancel    context.CancelFunc
	handlers  sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord and resolves the announcement
// channel. Failing to resolve the channel is an error: the bot would have
// nowhere to post.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuilds |
		discordgo.IntentsDirectMessages

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		session: session,
		router:  NewCommandRouter(cfg.Prefix, NewPermissionChecker(cfg.CommandRoleID)),
		ctx:     ctx,
		cancel:  cancel,
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.handlers.Add(1)
		defer b.handlers.Done()
		b.router.HandleMessage(b.ctx, s, m.Message)
	})

	if err := session.Open(); err != nil {
		cancel()
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	ch, err := session.Channel(cfg.ChannelID)
	if err != nil {
		cancel()
		_ = session.Close()
		return nil, fmt.Errorf("discord: resolve channel %s: %w", cfg.ChannelID, err)
	}
	b.channel = ch
	slog.Info("discord bot connected", "channel", ch.Name, "channel_id", ch.ID)

	return b, nil
}

// Session returns the underlying discordgo session. It satisfies
// publish.Sender.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Channel returns the resolved announcement channel.
func (b *Bot) Channel() *discordgo.Channel {
	return b.channel
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Ready reports whether the gateway session has received READY.
func (b *Bot) Ready(_ context.Context) error {
	s := b.Session()
	if s == nil {
		return ErrNotReady
	}
	s.RLock()
	ready := s.DataReady
	s.RUnlock()
	if !ready {
		return ErrNotReady
	}
	return nil
}

// Close disconnects from Discord, cancels running command handlers and
// waits for them to return.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.cancel()

		b.mu.Lock()
		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}
		b.mu.Unlock()

		b.handlers.Wait()
		slog.Info("discord bot closed")
	})
	return closeErr
}
