package serve

import (
	"fmt"
	"strings"

	cmdUtil "github.com/ValentinKolb/udsrpc/cmd/util"
	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/server"
	"github.com/ValentinKolb/udsrpc/rpc/transport"
	"github.com/ValentinKolb/udsrpc/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig  = &common.ServerConfig{}
	serveCmdHandler transport.ServerHandleFunc
	ServeCmd        = &cobra.Command{
		Use:     "serve",
		Short:   "Start a udsrpc server",
		Long:    `Start a udsrpc server with one of the built-in handlers. The configuration can be set via command line flags, environment variables or a TOML file (--config). The format of the environment variables is UDSRPC_<flag> (e.g. UDSRPC_MAX_CONNECTIONS=64)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, cmdUtil.DefaultEndpoint, cmdUtil.WrapString("Path of the socket file, an existing file is replaced"))

	key = "handler"
	ServeCmd.PersistentFlags().String(key, "echo", cmdUtil.WrapString(fmt.Sprintf("Request handler (%s). multiply answers a decimal integer with ten times its value", strings.Join(server.HandlerNames(), ", "))))

	key = "backlog"
	ServeCmd.PersistentFlags().Int(key, common.DefaultBacklog, cmdUtil.WrapString("Backlog of the listening socket"))

	key = "max-connections"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxConnections, cmdUtil.WrapString("Connections above this limit are closed right after accept (0 for unlimited)"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, common.DefaultBufferSize, cmdUtil.WrapString("Initial size of the receive buffer per connection (in bytes), it grows for larger frames"))

	key = "max-frame-size"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxFrameSize, cmdUtil.WrapString("Largest accepted request frame (in bytes, 0 for unlimited), larger frames close the connection"))

	key = "poll-interval"
	ServeCmd.PersistentFlags().Int(key, common.DefaultPollIntervalMillis, cmdUtil.WrapString("Upper bound of a single readiness wait (in ms)"))

	key = "write-timeout"
	ServeCmd.PersistentFlags().Int(key, common.DefaultWriteTimeoutMillis, cmdUtil.WrapString("Upper bound for writing a single response (in ms), the connection is closed if it passes"))

	key = "notifier"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Readiness notifier (epoll, poll), empty selects the platform default"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the prometheus metrics endpoint (e.g. localhost:9100), empty disables it"))

	key = "config"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional TOML file, keys of its [server] table override the flags"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Backlog = viper.GetInt("backlog")
	serveCmdConfig.MaxConnections = viper.GetInt("max-connections")
	serveCmdConfig.BufferSize = viper.GetInt("buffer-size")
	serveCmdConfig.MaxFrameSize = viper.GetInt("max-frame-size")
	serveCmdConfig.PollIntervalMillis = viper.GetInt("poll-interval")
	serveCmdConfig.WriteTimeoutMillis = viper.GetInt("write-timeout")
	serveCmdConfig.Notifier = viper.GetString("notifier")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// overlay the config file
	if path := viper.GetString("config"); path != "" {
		if err := common.LoadServerConfigFile(path, serveCmdConfig); err != nil {
			return err
		}
	}

	if err := serveCmdConfig.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	// parse the handler
	handler, err := server.HandlerByName(viper.GetString("handler"))
	if err != nil {
		return err
	}
	serveCmdHandler = handler

	return nil
}

// run starts the udsrpc server
func run(_ *cobra.Command, _ []string) error {
	serv := server.NewRPCServer(
		*serveCmdConfig,
		unix.NewUnixServerTransport(),
		serveCmdHandler,
	)

	return serv.Serve()
}
