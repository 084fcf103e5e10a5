package config

import "github.com/driftchat/drift-server/internal/core"

// Config holds server configuration values.
type Config struct {
	// Addr is the TCP listen address for the relay itself.
	Addr string `mapstructure:"addr" yaml:"addr"`
	// AdminAddr is the HTTP listen address for the read-only ops API.
	// Empty disables it.
	AdminAddr string `mapstructure:"admin_addr" yaml:"admin_addr"`
	// MaxConnections caps simultaneously active sessions.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections"`
	// HistoryLimit caps per-channel message history; 0 keeps everything.
	HistoryLimit int    `mapstructure:"history_limit" yaml:"history_limit"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	// Channels seeds the registry; the first entry is the directory channel.
	Channels []core.ChannelSeed `mapstructure:"channels" yaml:"channels"`
}

const defaultCover = "https://cdn-icons-png.flaticon.com/512/134/134932.png"

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:           "127.0.0.1:9999",
		AdminAddr:      "",
		MaxConnections: 64,
		HistoryLimit:   0,
		LogLevel:       "info",
		Channels: []core.ChannelSeed{
			{Name: core.DefaultChannel, Cover: defaultCover},
			{Name: "another", Cover: defaultCover},
		},
	}
}
