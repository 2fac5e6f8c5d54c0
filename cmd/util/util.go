package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/transport"
	"github.com/ValentinKolb/udsrpc/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// DefaultEndpoint is the socket path used if no endpoint is configured
	DefaultEndpoint = "/tmp/udsrpc.sock"
)

var Logger = logger.GetLogger("cmd")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, DefaultEndpoint, WrapString("Path of the server socket file"))

	key = "retry-count"
	cmd.PersistentFlags().Int(key, common.DefaultRetryCount, WrapString("Connect attempts per reconnect burst, the disconnect notification fires when all of them failed"))

	key = "retry-interval"
	cmd.PersistentFlags().Int(key, common.DefaultRetryIntervalMillis, WrapString("Pause between two connect attempts (in ms)"))

	key = "request-timeout"
	cmd.PersistentFlags().Int(key, common.DefaultRequestTimeoutMillis, WrapString("Unanswered requests are dropped after this time (in ms)"))

	key = "recv-timeout"
	cmd.PersistentFlags().Int(key, common.DefaultRecvTimeoutMillis, WrapString("Receive timeout of the socket (in ms)"))

	key = "poll-interval"
	cmd.PersistentFlags().Int(key, common.DefaultPollIntervalMillis, WrapString("Upper bound of a single readiness wait (in ms)"))

	key = "write-timeout"
	cmd.PersistentFlags().Int(key, common.DefaultWriteTimeoutMillis, WrapString("Upper bound for writing a single request (in ms)"))

	key = "buffer-size"
	cmd.PersistentFlags().Int(key, common.DefaultBufferSize, WrapString("Initial size of the receive buffer (in bytes), it grows for larger frames"))

	key = "max-frame-size"
	cmd.PersistentFlags().Int(key, common.DefaultMaxFrameSize, WrapString("Largest accepted response frame (in bytes, 0 for unlimited)"))

	key = "notifier"
	cmd.PersistentFlags().String(key, "", WrapString("Readiness notifier (epoll, poll), empty selects the platform default"))

	key = "config"
	cmd.PersistentFlags().String(key, "", WrapString("Optional TOML file, keys of its [client] table override the flags"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from env files and environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("udsrpc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper and the optional config file
func GetClientConfig() (*common.ClientConfig, error) {
	conf := &common.ClientConfig{
		Endpoint:             viper.GetString("endpoint"),
		BufferSize:           viper.GetInt("buffer-size"),
		MaxFrameSize:         viper.GetInt("max-frame-size"),
		RetryCount:           viper.GetInt("retry-count"),
		RetryIntervalMillis:  viper.GetInt("retry-interval"),
		RequestTimeoutMillis: viper.GetInt("request-timeout"),
		RecvTimeoutMillis:    viper.GetInt("recv-timeout"),
		PollIntervalMillis:   viper.GetInt("poll-interval"),
		WriteTimeoutMillis:   viper.GetInt("write-timeout"),
		Notifier:             viper.GetString("notifier"),
	}

	if path := viper.GetString("config"); path != "" {
		if err := common.LoadClientConfigFile(path, conf); err != nil {
			return nil, err
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return conf, nil
}

// GetTransport creates the client transport
func GetTransport() transport.IRPCClientTransport {
	return unix.NewUnixClientTransport()
}

// InitLogging applies the configured log level to all loggers
func InitLogging() error {
	return common.InitLoggers(viper.GetString("log-level"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
