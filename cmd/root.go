package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/udsrpc/cmd/call"
	"github.com/ValentinKolb/udsrpc/cmd/perf"
	"github.com/ValentinKolb/udsrpc/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "udsrpc",
		Short: "request/response RPC over unix domain sockets",
		Long: fmt.Sprintf(`udsrpc (v%s)

A lightweight RPC transport over Unix domain stream sockets. Requests and
responses are opaque payloads matched by request id, a single connection
serves any number of concurrent requests.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of udsrpc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("udsrpc v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(call.CallCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
