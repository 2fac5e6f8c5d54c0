package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultBufferSize           = 5120
	DefaultRetryCount           = 2
	DefaultRetryIntervalMillis  = 1000
	DefaultRequestTimeoutMillis = 3000
	DefaultRecvTimeoutMillis    = 1000
	DefaultPollIntervalMillis   = 10
	DefaultWriteTimeoutMillis   = 5000
	DefaultBacklog              = 5
	DefaultMaxConnections       = 1024
	DefaultMaxFrameSize         = 64 << 20 // 64 MiB
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a server transport
type ServerConfig struct {
	// Endpoint is the path of the socket file, an existing file is removed on listen
	Endpoint string
	// BufferSize is the initial reassembly buffer capacity per connection
	BufferSize int
	// MaxFrameSize limits the total size of a single frame, 0 disables the limit
	MaxFrameSize int
	// Backlog is passed to listen(2)
	Backlog int
	// MaxConnections limits the number of concurrently connected peers
	MaxConnections int
	// PollIntervalMillis bounds a single readiness wait
	PollIntervalMillis int
	// WriteTimeoutMillis bounds writing one response frame
	WriteTimeoutMillis int
	// Notifier selects the readiness backend (epoll, poll or empty for the platform default)
	Notifier string

	// Logging configuration
	LogLevel string
	// MetricsEndpoint is the address of the prometheus endpoint, empty disables it
	MetricsEndpoint string
}

// DefaultServerConfig returns a server configuration with all defaults set
func DefaultServerConfig(endpoint string) ServerConfig {
	return ServerConfig{
		Endpoint:           endpoint,
		BufferSize:         DefaultBufferSize,
		MaxFrameSize:       DefaultMaxFrameSize,
		Backlog:            DefaultBacklog,
		MaxConnections:     DefaultMaxConnections,
		PollIntervalMillis: DefaultPollIntervalMillis,
		WriteTimeoutMillis: DefaultWriteTimeoutMillis,
		LogLevel:           "info",
	}
}

// Validate checks the configuration for invalid values
func (c *ServerConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if c.BufferSize < 0 || c.MaxFrameSize < 0 || c.Backlog < 0 || c.MaxConnections < 0 {
		return fmt.Errorf("buffer size, max frame size, backlog and max connections must not be negative")
	}
	return nil
}

func (c *ServerConfig) PollInterval() time.Duration {
	return millis(c.PollIntervalMillis, DefaultPollIntervalMillis)
}

func (c *ServerConfig) WriteTimeout() time.Duration {
	return millis(c.WriteTimeoutMillis, DefaultWriteTimeoutMillis)
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Notifier", orDefault(c.Notifier, "platform default"))
	addField("Backlog", strconv.Itoa(c.Backlog))
	addField("Max Connections", strconv.Itoa(c.MaxConnections))

	// Buffers & timing
	addSection("Connections")
	addField("Buffer Size", fmt.Sprintf("%d bytes", c.BufferSize))
	addField("Max Frame Size", sizeOrUnlimited(c.MaxFrameSize))
	addField("Poll Interval", c.PollInterval().String())
	addField("Write Timeout", c.WriteTimeout().String())

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Metrics Endpoint", orDefault(c.MetricsEndpoint, "disabled"))

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds all configuration parameters of a client transport
type ClientConfig struct {
	// Endpoint is the path of the server socket file
	Endpoint string
	// BufferSize is the initial reassembly buffer capacity
	BufferSize int
	// MaxFrameSize limits the total size of a single response frame, 0 disables the limit
	MaxFrameSize int
	// RetryCount is the number of connect attempts in one reconnect burst
	RetryCount int
	// RetryIntervalMillis is the pause between two connect attempts
	RetryIntervalMillis int
	// RequestTimeoutMillis is the age after which an unanswered request is evicted
	RequestTimeoutMillis int
	// RecvTimeoutMillis is applied as SO_RCVTIMEO on every new socket
	RecvTimeoutMillis int
	// PollIntervalMillis bounds a single readiness wait
	PollIntervalMillis int
	// WriteTimeoutMillis bounds writing one request frame
	WriteTimeoutMillis int
	// Notifier selects the readiness backend (epoll, poll or empty for the platform default)
	Notifier string
}

// DefaultClientConfig returns a client configuration with all defaults set
func DefaultClientConfig(endpoint string) ClientConfig {
	return ClientConfig{
		Endpoint:             endpoint,
		BufferSize:           DefaultBufferSize,
		MaxFrameSize:         DefaultMaxFrameSize,
		RetryCount:           DefaultRetryCount,
		RetryIntervalMillis:  DefaultRetryIntervalMillis,
		RequestTimeoutMillis: DefaultRequestTimeoutMillis,
		RecvTimeoutMillis:    DefaultRecvTimeoutMillis,
		PollIntervalMillis:   DefaultPollIntervalMillis,
		WriteTimeoutMillis:   DefaultWriteTimeoutMillis,
	}
}

// Validate checks the configuration for invalid values
func (c *ClientConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if c.BufferSize < 0 || c.MaxFrameSize < 0 || c.RetryCount < 0 {
		return fmt.Errorf("buffer size, max frame size and retry count must not be negative")
	}
	return nil
}

func (c *ClientConfig) RetryInterval() time.Duration {
	return millis(c.RetryIntervalMillis, DefaultRetryIntervalMillis)
}

func (c *ClientConfig) RequestTimeout() time.Duration {
	return millis(c.RequestTimeoutMillis, DefaultRequestTimeoutMillis)
}

func (c *ClientConfig) RecvTimeout() time.Duration {
	return millis(c.RecvTimeoutMillis, DefaultRecvTimeoutMillis)
}

func (c *ClientConfig) PollInterval() time.Duration {
	return millis(c.PollIntervalMillis, DefaultPollIntervalMillis)
}

func (c *ClientConfig) WriteTimeout() time.Duration {
	return millis(c.WriteTimeoutMillis, DefaultWriteTimeoutMillis)
}

// Retries returns the number of attempts in one reconnect burst, at least one
func (c *ClientConfig) Retries() int {
	return max(c.RetryCount, 1)
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Notifier", orDefault(c.Notifier, "platform default"))
	addField("Request Timeout", c.RequestTimeout().String())
	addField("Receive Timeout", c.RecvTimeout().String())
	addField("Write Timeout", c.WriteTimeout().String())
	addField("Poll Interval", c.PollInterval().String())

	// Reconnect
	addSection("Reconnect")
	addField("Retry Count", strconv.Itoa(c.Retries()))
	addField("Retry Interval", c.RetryInterval().String())

	// Buffers
	addSection("Buffers")
	addField("Buffer Size", fmt.Sprintf("%d bytes", c.BufferSize))
	addField("Max Frame Size", sizeOrUnlimited(c.MaxFrameSize))

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// millis converts a millisecond setting to a duration, non-positive values fall back to def
func millis(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func sizeOrUnlimited(v int) string {
	if v <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d bytes", v)
}
