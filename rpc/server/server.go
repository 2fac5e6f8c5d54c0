package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and handler as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		common.DefaultServerConfig("/tmp/udsrpc.sock"),
//		unix.NewUnixServerTransport(),
//		server.Upper,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	handler transport.ServerHandleFunc,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:    config,
		transport: transport,
		handler:   handler,
	}
}

// RPCServer wires a request handler to a server transport
type RPCServer struct {
	config    common.ServerConfig
	transport transport.IRPCServerTransport
	handler   transport.ServerHandleFunc
}

func (s *RPCServer) init() error {
	if s.handler == nil {
		return fmt.Errorf("no handler configured")
	}

	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", s.config.String())

	// Configure the transport layer
	s.transport.RegisterHandler(s.handler)
	return nil
}

// Serve starts the RPC server and blocks until it is stopped by Stop, SIGINT or SIGTERM
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}

	metricsSrv := s.startMetricsEndpoint()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			Logger.Infof("Received %s, shutting down", sig)
			if err := s.Stop(); err != nil {
				Logger.Errorf("Shutdown failed: %v", err)
			}
		case <-done:
		}
	}()

	err := s.transport.Listen(s.config)

	close(done)
	signal.Stop(sigCh)
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = metricsSrv.Shutdown(ctx)
		cancel()
	}
	return err
}

// Ready is closed once the server accepts connections or Serve failed to start
func (s *RPCServer) Ready() <-chan struct{} {
	return s.transport.Ready()
}

// Stop closes all connections and removes the socket file, Serve returns afterwards
func (s *RPCServer) Stop() error {
	return s.transport.Stop()
}

func (s *RPCServer) Stats() transport.ServerStats {
	return s.transport.Stats()
}

// startMetricsEndpoint serves the prometheus metrics if an endpoint is configured
func (s *RPCServer) startMetricsEndpoint() *http.Server {
	if s.config.MetricsEndpoint == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		common.WriteMetrics(w)
	})
	srv := &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux}

	go func() {
		Logger.Infof("Serving metrics on http://%s/metrics", s.config.MetricsEndpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
	return srv
}
