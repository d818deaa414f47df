package config_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/pitwall/internal/config"
)

func envFrom(m map[string]string) config.EnvLookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadWithEnv_MissingFileUsesEnvironment(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.yaml")
	cfg, err := config.LoadWithEnv(path, envFrom(map[string]string{
		config.EnvDiscordToken: "env-token",
		config.EnvChannelID:    "1187654321098765432",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("token: got %q", cfg.Discord.Token)
	}
	if cfg.Discord.ChannelID != "1187654321098765432" {
		t.Errorf("channel_id: got %q", cfg.Discord.ChannelID)
	}
	if cfg.Poll.Interval.Minutes() != 2 {
		t.Errorf("defaults not applied: interval %v", cfg.Poll.Interval)
	}
}

func TestLoadWithEnv_MissingCredentialsFail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.yaml")
	_, err := config.LoadWithEnv(path, envFrom(nil))
	if err == nil {
		t.Fatal("expected error without token and channel, got nil")
	}
	for _, want := range []string{config.EnvDiscordToken, config.EnvChannelID} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should name %s, got: %v", want, err)
		}
	}
}

func TestLoadWithEnv_EnvironmentOverridesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
server:
  listen_addr: ":8080"
  log_level: info
discord:
  token: file-token
  channel_id: "1000000000000000001"
openf1:
  base_url: "https://file.example.test/v1"
`)

	cfg, err := config.LoadWithEnv(path, envFrom(map[string]string{
		config.EnvDiscordToken: "env-token",
		config.EnvChannelID:    "2000000000000000002",
		config.EnvLogLevel:     "debug",
		config.EnvListenAddr:   "off",
		config.EnvOpenF1URL:    "http://localhost:8000/v1",
		"UNRELATED":            "x",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "env-token" || cfg.Discord.ChannelID != "2000000000000000002" {
		t.Errorf("discord: got %+v", cfg.Discord)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Server.OpsEnabled() {
		t.Errorf("listen_addr %q should disable the ops server", cfg.Server.ListenAddr)
	}
	if cfg.OpenF1.BaseURL != "http://localhost:8000/v1" {
		t.Errorf("base_url: got %q", cfg.OpenF1.BaseURL)
	}
}

func TestLoadWithEnv_EmptyEnvDoesNotOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
discord:
  token: file-token
  channel_id: "1000000000000000001"
`)
	cfg, err := config.LoadWithEnv(path, envFrom(map[string]string{config.EnvDiscordToken: ""}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "file-token" {
		t.Errorf("token: got %q, want file-token", cfg.Discord.Token)
	}
}

func TestLoadWithEnv_InvalidEnvLogLevel(t *testing.T) {
	t.Parallel()

	_, err := config.LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"), envFrom(map[string]string{
		config.EnvDiscordToken: "t",
		config.EnvChannelID:    "1",
		config.EnvLogLevel:     "chatty",
	}))
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Errorf("expected log_level error, got %v", err)
	}
}

func TestLoadWithEnv_BadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "discord: [unclosed\n")
	_, err := config.LoadWithEnv(path, envFrom(nil))
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
	if !strings.Contains(err.Error(), "decode yaml") {
		t.Errorf("error should mention decode, got: %v", err)
	}
}

func TestLoadWithEnv_UnreadablePath(t *testing.T) {
	t.Parallel()

	// A directory cannot be read as a file.
	_, err := config.LoadWithEnv(t.TempDir(), envFrom(nil))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestLoad_UsesProcessEnvironment(t *testing.T) {
	t.Setenv(config.EnvDiscordToken, "process-token")
	t.Setenv(config.EnvChannelID, "1187654321098765432")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Discord.Token != "process-token" {
		t.Errorf("token: got %q", cfg.Discord.Token)
	}
}

func TestApplyEnv_LeavesUnsetFields(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Server: config.ServerConfig{LogLevel: config.LogWarn}}
	config.ApplyEnv(cfg, envFrom(nil))
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
}

func TestLoadWithEnv_ExampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadWithEnv(filepath.Join("..", "..", "configs", "example.yaml"), envFrom(map[string]string{
		config.EnvDiscordToken: "env-token",
		config.EnvChannelID:    "1187654321098765432",
	}))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Download.MaxBytes != config.DefaultMaxBytes {
		t.Errorf("max_bytes = %d, want %d", cfg.Download.MaxBytes, config.DefaultMaxBytes)
	}
	if cfg.Commands.TestAudioURL != config.DefaultTestAudioURL {
		t.Errorf("test_audio_url = %q", cfg.Commands.TestAudioURL)
	}
}
