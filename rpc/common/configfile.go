package common

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileConfig maps a udsrpc config.toml. Keys that are not present keep the value
// they already have (usually a default or a command line flag).
//
//	[server]
//	endpoint = "/tmp/udsrpc.sock"
//	max_connections = 256
//
//	[client]
//	endpoint = "/tmp/udsrpc.sock"
//	retry_count = 5
type fileConfig struct {
	Server struct {
		Endpoint        string `toml:"endpoint"`
		BufferSize      int    `toml:"buffer_size"`
		MaxFrameSize    int    `toml:"max_frame_size"`
		Backlog         int    `toml:"backlog"`
		MaxConnections  int    `toml:"max_connections"`
		PollIntervalMS  int    `toml:"poll_interval_ms"`
		WriteTimeoutMS  int    `toml:"write_timeout_ms"`
		Notifier        string `toml:"notifier"`
		LogLevel        string `toml:"log_level"`
		MetricsEndpoint string `toml:"metrics_endpoint"`
	} `toml:"server"`
	Client struct {
		Endpoint         string `toml:"endpoint"`
		BufferSize       int    `toml:"buffer_size"`
		MaxFrameSize     int    `toml:"max_frame_size"`
		RetryCount       int    `toml:"retry_count"`
		RetryIntervalMS  int    `toml:"retry_interval_ms"`
		RequestTimeoutMS int    `toml:"request_timeout_ms"`
		RecvTimeoutMS    int    `toml:"recv_timeout_ms"`
		PollIntervalMS   int    `toml:"poll_interval_ms"`
		WriteTimeoutMS   int    `toml:"write_timeout_ms"`
		Notifier         string `toml:"notifier"`
	} `toml:"client"`
}

// decodeFile reads path into a fileConfig
func decodeFile(path string) (fileConfig, toml.MetaData, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fileConfig{}, meta, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fileConfig{}, meta, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return raw, meta, nil
}

// LoadServerConfigFile overlays the [server] table of a TOML file onto cfg
func LoadServerConfigFile(path string, cfg *ServerConfig) error {
	raw, meta, err := decodeFile(path)
	if err != nil {
		return err
	}
	s := raw.Server

	if meta.IsDefined("server", "endpoint") {
		cfg.Endpoint = strings.TrimSpace(s.Endpoint)
	}
	if meta.IsDefined("server", "buffer_size") {
		cfg.BufferSize = s.BufferSize
	}
	if meta.IsDefined("server", "max_frame_size") {
		cfg.MaxFrameSize = s.MaxFrameSize
	}
	if meta.IsDefined("server", "backlog") {
		cfg.Backlog = s.Backlog
	}
	if meta.IsDefined("server", "max_connections") {
		cfg.MaxConnections = s.MaxConnections
	}
	if meta.IsDefined("server", "poll_interval_ms") {
		cfg.PollIntervalMillis = s.PollIntervalMS
	}
	if meta.IsDefined("server", "write_timeout_ms") {
		cfg.WriteTimeoutMillis = s.WriteTimeoutMS
	}
	if meta.IsDefined("server", "notifier") {
		cfg.Notifier = strings.TrimSpace(s.Notifier)
	}
	if meta.IsDefined("server", "log_level") {
		cfg.LogLevel = strings.TrimSpace(s.LogLevel)
	}
	if meta.IsDefined("server", "metrics_endpoint") {
		cfg.MetricsEndpoint = strings.TrimSpace(s.MetricsEndpoint)
	}
	return nil
}

// LoadClientConfigFile overlays the [client] table of a TOML file onto cfg
func LoadClientConfigFile(path string, cfg *ClientConfig) error {
	raw, meta, err := decodeFile(path)
	if err != nil {
		return err
	}
	c := raw.Client

	if meta.IsDefined("client", "endpoint") {
		cfg.Endpoint = strings.TrimSpace(c.Endpoint)
	}
	if meta.IsDefined("client", "buffer_size") {
		cfg.BufferSize = c.BufferSize
	}
	if meta.IsDefined("client", "max_frame_size") {
		cfg.MaxFrameSize = c.MaxFrameSize
	}
	if meta.IsDefined("client", "retry_count") {
		cfg.RetryCount = c.RetryCount
	}
	if meta.IsDefined("client", "retry_interval_ms") {
		cfg.RetryIntervalMillis = c.RetryIntervalMS
	}
	if meta.IsDefined("client", "request_timeout_ms") {
		cfg.RequestTimeoutMillis = c.RequestTimeoutMS
	}
	if meta.IsDefined("client", "recv_timeout_ms") {
		cfg.RecvTimeoutMillis = c.RecvTimeoutMS
	}
	if meta.IsDefined("client", "poll_interval_ms") {
		cfg.PollIntervalMillis = c.PollIntervalMS
	}
	if meta.IsDefined("client", "write_timeout_ms") {
		cfg.WriteTimeoutMillis = c.WriteTimeoutMS
	}
	if meta.IsDefined("client", "notifier") {
		cfg.Notifier = strings.TrimSpace(c.Notifier)
	}
	return nil
}
