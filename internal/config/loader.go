package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvDiscordToken = "DISCORD_TOKEN"
	EnvChannelID    = "CHANNEL_ID"
	EnvLogLevel     = "PITWALL_LOG_LEVEL"
	EnvListenAddr   = "PITWALL_LISTEN_ADDR"
	EnvOpenF1URL    = "OPENF1_BASE_URL"
)

// EnvLookup resolves an environment variable. [os.LookupEnv] satisfies it.
type EnvLookup func(key string) (string, bool)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config]. A missing file
// is not an error: the result is built from defaults and the environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is [Load] with an explicit environment.
func LoadWithEnv(path string, env EnvLookup) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(bytes.NewReader(data), env)
	if err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	return parse(r, nil)
}

func parse(r io.Reader, env EnvLookup) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if env != nil {
		ApplyEnv(cfg, env)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overwrites cfg fields with any set environment variables.
func ApplyEnv(cfg *Config, env EnvLookup) {
	set := func(key string, dst *string) {
		if v, ok := env(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvDiscordToken, &cfg.Discord.Token)
	set(EnvChannelID, &cfg.Discord.ChannelID)
	set(EnvListenAddr, &cfg.Server.ListenAddr)
	set(EnvOpenF1URL, &cfg.OpenF1.BaseURL)

	var level string
	set(EnvLogLevel, &level)
	if level != "" {
		cfg.Server.LogLevel = LogLevel(level)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.OpsEnabled() {
		if _, _, err := net.SplitHostPort(cfg.Server.ListenAddr); err != nil {
			errs = append(errs, fmt.Errorf("server.listen_addr %q is invalid: %w", cfg.Server.ListenAddr, err))
		}
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("discord.token is required (set %s)", EnvDiscordToken))
	}
	switch {
	case cfg.Discord.ChannelID == "":
		errs = append(errs, fmt.Errorf("discord.channel_id is required (set %s)", EnvChannelID))
	case !isSnowflake(cfg.Discord.ChannelID):
		errs = append(errs, fmt.Errorf("discord.channel_id %q must be a numeric Discord id", cfg.Discord.ChannelID))
	}
	if cfg.Discord.CommandRoleID != "" && !isSnowflake(cfg.Discord.CommandRoleID) {
		errs = append(errs, fmt.Errorf("discord.command_role_id %q must be a numeric Discord id", cfg.Discord.CommandRoleID))
	}

	// OpenF1
	if err := validateURL(cfg.OpenF1.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("openf1.base_url: %w", err))
	}
	if cfg.OpenF1.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("openf1.timeout %v must be positive", cfg.OpenF1.Timeout))
	}

	// Poll
	if cfg.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval %v must be positive", cfg.Poll.Interval))
	}

	// Download
	if cfg.Download.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("download.max_bytes %d must be positive", cfg.Download.MaxBytes))
	}
	if cfg.Download.MinBytes < 0 {
		errs = append(errs, fmt.Errorf("download.min_bytes %d must not be negative", cfg.Download.MinBytes))
	}
	if cfg.Download.MaxBytes > 0 && cfg.Download.MinBytes > cfg.Download.MaxBytes {
		errs = append(errs, fmt.Errorf("download.min_bytes %d exceeds download.max_bytes %d", cfg.Download.MinBytes, cfg.Download.MaxBytes))
	}
	if cfg.Download.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("download.timeout %v must be positive", cfg.Download.Timeout))
	}

	// Commands
	if cfg.Commands.RadioLimit < 1 {
		errs = append(errs, fmt.Errorf("commands.radio_limit %d must be at least 1", cfg.Commands.RadioLimit))
	}
	if cfg.Commands.DriverRadioLimit < 1 {
		errs = append(errs, fmt.Errorf("commands.driver_radio_limit %d must be at least 1", cfg.Commands.DriverRadioLimit))
	}
	if cfg.Commands.TestAudioURL != "" {
		if err := validateURL(cfg.Commands.TestAudioURL); err != nil {
			errs = append(errs, fmt.Errorf("commands.test_audio_url: %w", err))
		}
	}

	return errors.Join(errs...)
}

// isSnowflake reports whether id looks like a Discord snowflake.
func isSnowflake(id string) bool {
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

// validateURL requires an absolute http(s) URL.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%q must be an absolute http(s) URL", raw)
	}
	return nil
}
