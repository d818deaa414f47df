// Package mock provides test doubles for Discord message testing.
package mock

import (
	"io"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Post is one recorded channel message.
type Post struct {
	ChannelID string
	Content   string
	Embeds    []*discordgo.MessageEmbed

	// Files holds the attachment names and FileData their contents, read at
	// send time so tests can inspect them after the source is removed.
	Files    []string
	FileData [][]byte
}

// Sender records channel messages for test assertions. It satisfies
// publish.Sender and is safe for concurrent use.
type Sender struct {
	mu    sync.Mutex
	posts []Post

	// Err is returned by every send when non-nil, allowing error injection.
	Err error

	// AttachmentErr is returned only for messages carrying files.
	AttachmentErr error
}

// ChannelMessageSend records a plain text message.
func (m *Sender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: content})
}

// ChannelMessageSendComplex records the message and returns a stub message.
// Rejected messages are not recorded.
func (m *Sender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if len(data.Files) > 0 && m.AttachmentErr != nil {
		return nil, m.AttachmentErr
	}

	p := Post{
		ChannelID: channelID,
		Content:   data.Content,
		Embeds:    data.Embeds,
	}
	for _, f := range data.Files {
		b, err := io.ReadAll(f.Reader)
		if err != nil {
			return nil, err
		}
		p.Files = append(p.Files, f.Name)
		p.FileData = append(p.FileData, b)
	}
	m.posts = append(m.posts, p)
	return &discordgo.Message{ID: "mock-message", ChannelID: channelID}, nil
}

// Posts returns a copy of all recorded messages.
func (m *Sender) Posts() []Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Post, len(m.posts))
	copy(out, m.posts)
	return out
}

// EmbedPosts returns only the recorded messages that carry an embed.
func (m *Sender) EmbedPosts() []Post {
	var out []Post
	for _, p := range m.Posts() {
		if len(p.Embeds) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// LastPost returns the most recently recorded message, or nil.
func (m *Sender) LastPost() *Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.posts) == 0 {
		return nil
	}
	p := m.posts[len(m.posts)-1]
	return &p
}

// Reset clears all recorded messages and errors.
func (m *Sender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = nil
	m.Err = nil
	m.AttachmentErr = nil
}
