package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/vectorgrp/sil-kit-sub002/router"
)

// GracefulServer wraps a gRPC server hosting the Exchange service with
// graceful shutdown support: it listens for context cancellation and
// shuts down cleanly, or forces an immediate stop past a timeout.
type GracefulServer struct {
	grpcServer *grpc.Server
	address    string
	logger     Logger

	shutdownMu sync.Mutex
	isShutdown bool
}

// NewGracefulServer builds a GracefulServer that will invoke handler for
// every incoming Exchange stream.
func NewGracefulServer(address string, handler ExchangeHandler, logger Logger, opts ...grpc.ServerOption) *GracefulServer {
	if logger == nil {
		logger = router.NoopLogger()
	}
	if len(opts) == 0 {
		opts = ServerOptions(logger)
	}
	opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	grpcServer := grpc.NewServer(opts...)
	RegisterExchangeHandler(grpcServer, handler)
	return &GracefulServer{grpcServer: grpcServer, address: address, logger: logger}
}

// Start listens on s.address and blocks until ctx is cancelled or the
// server itself errors out.
func (s *GracefulServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.address, err)
	}
	s.logger.Info("transport_server_started", "address", s.address)

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("transport_graceful_shutdown_initiated", "reason", ctx.Err().Error())
		s.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("transport: server error: %w", err)
		}
		return nil
	}
}

// GracefulStop stops accepting new streams and waits for existing ones
// to finish.
func (s *GracefulServer) GracefulStop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	if s.isShutdown {
		return
	}
	s.isShutdown = true
	s.logger.Info("transport_graceful_stop_started")
	s.grpcServer.GracefulStop()
	s.logger.Info("transport_graceful_stop_completed")
}

// Stop immediately tears down every stream.
func (s *GracefulServer) Stop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	if s.isShutdown {
		return
	}
	s.isShutdown = true
	s.logger.Warn("transport_immediate_stop")
	s.grpcServer.Stop()
}

// ShutdownWithTimeout attempts a GracefulStop and forces Stop if it
// doesn't complete within timeout.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		s.logger.Warn("transport_graceful_shutdown_timeout", "timeout_ms", timeout.Milliseconds())
		s.grpcServer.Stop()
	}
}

// Address returns the server's configured listen address.
func (s *GracefulServer) Address() string { return s.address }
