package discord

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/pitwall/internal/publish"
)

// DefaultPrefix marks a chat message as a command.
const DefaultPrefix = "!"

// Request is a parsed chat command.
type Request struct {
	// Sender posts replies.
	Sender publish.Sender

	// ChannelID is the channel the command was typed in. Replies and
	// deliveries go here.
	ChannelID string

	GuildID  string
	AuthorID string

	// Command is the lower-cased command name without the prefix.
	Command string

	// Args are the whitespace-separated arguments after the command name.
	Args []string
}

// HandlerFunc is the signature for chat command handlers.
type HandlerFunc func(ctx context.Context, req *Request)

// Command describes a registered chat command.
type Command struct {
	Name        string
	Usage       string
	Description string
}

type commandEntry struct {
	command Command
	handler HandlerFunc
}

// CommandRouter dispatches prefixed chat messages to registered handlers.
type CommandRouter struct {
	prefix string
	perms  *PermissionChecker

	mu       sync.RWMutex
	commands map[string]commandEntry // lower-case name → entry
}

// NewCommandRouter creates an empty router for messages starting with
// prefix. A nil perms allows everyone.
func NewCommandRouter(prefix string, perms *PermissionChecker) *CommandRouter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CommandRouter{
		prefix:   prefix,
		perms:    perms,
		commands: make(map[string]commandEntry),
	}
}

// Prefix returns the command prefix.
func (r *CommandRouter) Prefix() string { return r.prefix }

// RegisterCommand registers handler for cmd.Name. Registering a name twice
// replaces the earlier handler.
func (r *CommandRouter) RegisterCommand(cmd Command, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(cmd.Name)] = commandEntry{command: cmd, handler: handler}
}

// Commands returns the registered commands sorted by name.
func (r *CommandRouter) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]Command, 0, len(r.commands))
	for _, e := range r.commands {
		cmds = append(cmds, e.command)
	}
	slices.SortFunc(cmds, func(a, b Command) int { return cmp.Compare(a.Name, b.Name) })
	return cmds
}

// Parse splits content into a command name and arguments. ok is false when
// content does not start with the prefix or names no command.
func (r *CommandRouter) Parse(content string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	rest, found := strings.CutPrefix(content, r.prefix)
	if !found {
		return "", nil, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 || unicode.IsSpace(rune(rest[0])) {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// HandleMessage dispatches m to the matching handler and blocks until the
// handler returns. Bot authors and unknown commands are ignored.
func (r *CommandRouter) HandleMessage(ctx context.Context, s publish.Sender, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	name, args, ok := r.Parse(m.Content)
	if !ok {
		return
	}

	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		slog.Debug("discord: unknown command", "command", name)
		return
	}

	if !r.perms.Allowed(m.Member) {
		slog.Info("discord: command refused", "command", name, "author_id", m.Author.ID)
		Reply(ctx, s, m.ChannelID, "⛔ You are not allowed to use this command.")
		return
	}

	slog.Debug("discord: dispatching command",
		"command", name,
		"args", args,
		"channel_id", m.ChannelID,
		"author_id", m.Author.ID)
	entry.handler(ctx, &Request{
		Sender:    s,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		AuthorID:  m.Author.ID,
		Command:   name,
		Args:      args,
	})
}
