package call

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ValentinKolb/udsrpc/cmd/util"
	"github.com/ValentinKolb/udsrpc/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcClient *client.RPCClient

	// CallCmd sends payloads to a server and prints the responses
	CallCmd = &cobra.Command{
		Use:   "call [payload...]",
		Short: "Send requests to a udsrpc server",
		Long: util.WrapString(`Send every argument as one request and print the response.
Without arguments every line read from stdin is sent as one request.`),
		PersistentPreRunE:  setupClient,
		RunE:               run,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags
	util.SetupRPCClientFlags(CallCmd)

	key := "repeat"
	CallCmd.Flags().Int(key, 1, util.WrapString("How often every payload is sent"))

	key = "connect-wait"
	CallCmd.Flags().Int(key, 1000, util.WrapString("How long to wait for the connection before the first request (in ms)"))
}

// setupClient initializes the RPC client
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}

	rpcClient, err = client.NewRPCClient(*config, util.GetTransport())
	return err
}

func closeClient(_ *cobra.Command, _ []string) error {
	if rpcClient != nil {
		rpcClient.Close()
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	if err := waitConnected(time.Duration(viper.GetInt("connect-wait")) * time.Millisecond); err != nil {
		return err
	}

	repeat := viper.GetInt("repeat")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	send := func(payload string) error {
		for i := 0; i < repeat; i++ {
			resp, err := rpcClient.Call(ctx, []byte(payload))
			if err != nil {
				return fmt.Errorf("request %q failed: %w", payload, err)
			}
			fmt.Println(string(resp))
		}
		return nil
	}

	if len(args) > 0 {
		for _, arg := range args {
			if err := send(arg); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := send(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// waitConnected blocks until the client is connected or the timeout passed
func waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !rpcClient.IsConnected() {
		if time.Now().After(deadline) {
			return fmt.Errorf("not connected to %s after %s", viper.GetString("endpoint"), timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
