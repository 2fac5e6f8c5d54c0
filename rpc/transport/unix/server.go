package unix

import (
	"errors"
	"fmt"
	"os"

	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/transport"
	"github.com/ValentinKolb/udsrpc/rpc/transport/base"
	"github.com/ValentinKolb/udsrpc/rpc/transport/sockio"
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (int, error) {
	backlog := config.Backlog
	if backlog <= 0 {
		backlog = common.DefaultBacklog
	}

	// Remove existing socket file and create the listener
	fd, err := sockio.Listen(config.Endpoint, backlog)
	if err != nil {
		return -1, fmt.Errorf("failed to create Unix socket: %w", err)
	}
	return fd, nil
}

func (c *serverConnector) Accept(listenFd int) (int, error) {
	return sockio.Accept(listenFd)
}

func (c *serverConnector) Cleanup(config common.ServerConfig) error {
	if err := os.Remove(config.Endpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove socket file: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixServerTransport creates a new Unix server transport
func NewUnixServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{})
}
