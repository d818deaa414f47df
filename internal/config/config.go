// Package config provides the configuration schema, loader and file watcher
// for the pitwall team radio bot.
package config

import (
	"time"

	"github.com/MrWong99/pitwall/internal/discord"
	"github.com/MrWong99/pitwall/internal/discord/commands"
	"github.com/MrWong99/pitwall/internal/download"
	"github.com/MrWong99/pitwall/internal/openf1"
	"github.com/MrWong99/pitwall/internal/poller"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults]. Most are owned by the package that
// uses the setting.
const (
	DefaultListenAddr       = ":9090"
	DefaultCommandPrefix    = discord.DefaultPrefix
	DefaultBaseURL          = openf1.DefaultBaseURL
	DefaultSessionKey       = openf1.LatestSession
	DefaultPollInterval     = poller.DefaultInterval
	DefaultAnnouncement     = poller.DefaultAnnouncement
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultMaxBytes         = download.DefaultMaxBytes
	DefaultMinBytes         = download.DefaultMinBytes
	DefaultRadioLimit       = commands.DefaultRadioLimit
	DefaultDriverRadioLimit = commands.DefaultDriverRadioLimit
	DefaultTestAudioURL     = commands.DefaultTestAudioURL
)

// Config is the root configuration structure.
// It is typically loaded with [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	OpenF1   OpenF1Config   `yaml:"openf1"`
	Poll     PollConfig     `yaml:"poll"`
	Download DownloadConfig `yaml:"download"`
	Commands CommandsConfig `yaml:"commands"`
}

// ServerConfig holds the ops HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics, /healthz and /readyz.
	// Set to "off" to disable the ops server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// OpsEnabled reports whether the ops HTTP server should run.
func (s ServerConfig) OpsEnabled() bool {
	return s.ListenAddr != "" && s.ListenAddr != "off"
}

// DiscordConfig holds bot credentials and the announcement channel.
type DiscordConfig struct {
	// Token is the bot token. Usually supplied via DISCORD_TOKEN.
	Token string `yaml:"token"`

	// ChannelID is the numeric id of the announcement channel. Usually
	// supplied via CHANNEL_ID.
	ChannelID string `yaml:"channel_id"`

	// CommandPrefix marks chat commands.
	CommandPrefix string `yaml:"command_prefix"`

	// CommandRoleID restricts commands to members with this role.
	CommandRoleID string `yaml:"command_role_id"`
}

// OpenF1Config configures the OpenF1 API client.
type OpenF1Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// SessionKey is the session the poller watches.
	SessionKey string `yaml:"session_key"`
}

// PollConfig configures the background poll loop.
type PollConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Announcement string        `yaml:"announcement"`
}

// DownloadConfig configures clip downloads.
type DownloadConfig struct {
	MaxBytes int64         `yaml:"max_bytes"`
	MinBytes int64         `yaml:"min_bytes"`
	Timeout  time.Duration `yaml:"timeout"`

	// TempDir holds clips between download and upload. Empty means the OS
	// temporary directory.
	TempDir string `yaml:"temp_dir"`
}

// CommandsConfig configures the chat commands.
type CommandsConfig struct {
	RadioLimit       int    `yaml:"radio_limit"`
	DriverRadioLimit int    `yaml:"driver_radio_limit"`
	TestAudioURL     string `yaml:"test_audio_url"`
}

// ApplyDefaults fills every zero-valued field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = DefaultCommandPrefix
	}
	if cfg.OpenF1.BaseURL == "" {
		cfg.OpenF1.BaseURL = DefaultBaseURL
	}
	if cfg.OpenF1.Timeout == 0 {
		cfg.OpenF1.Timeout = DefaultHTTPTimeout
	}
	if cfg.OpenF1.SessionKey == "" {
		cfg.OpenF1.SessionKey = DefaultSessionKey
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = DefaultPollInterval
	}
	if cfg.Poll.Announcement == "" {
		cfg.Poll.Announcement = DefaultAnnouncement
	}
	if cfg.Download.MaxBytes == 0 {
		cfg.Download.MaxBytes = DefaultMaxBytes
	}
	if cfg.Download.MinBytes == 0 {
		cfg.Download.MinBytes = DefaultMinBytes
	}
	if cfg.Download.Timeout == 0 {
		cfg.Download.Timeout = DefaultHTTPTimeout
	}
	if cfg.Commands.RadioLimit == 0 {
		cfg.Commands.RadioLimit = DefaultRadioLimit
	}
	if cfg.Commands.DriverRadioLimit == 0 {
		cfg.Commands.DriverRadioLimit = DefaultDriverRadioLimit
	}
	if cfg.Commands.TestAudioURL == "" {
		cfg.Commands.TestAudioURL = DefaultTestAudioURL
	}
}
