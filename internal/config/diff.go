package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the changed settings that only take effect
	// after a restart, e.g. "discord.channel_id".
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed. Only the log
// level can be applied to a running process.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	restart := func(name string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("discord.token", old.Discord.Token != new.Discord.Token)
	restart("discord.channel_id", old.Discord.ChannelID != new.Discord.ChannelID)
	restart("discord.command_prefix", old.Discord.CommandPrefix != new.Discord.CommandPrefix)
	restart("discord.command_role_id", old.Discord.CommandRoleID != new.Discord.CommandRoleID)
	restart("openf1", old.OpenF1 != new.OpenF1)
	restart("poll", old.Poll != new.Poll)
	restart("download", old.Download != new.Download)
	restart("commands", old.Commands != new.Commands)

	return d
}
