// SIL Kit participant process.
//
// Bootstraps one participant's router, service discovery, request/reply
// service, and lifecycle tracker, then exposes them over a gRPC Exchange
// stream so other participant processes can connect as peers.
//
// Usage:
//
//	go run ./cmd/participant -config participant.yaml -listen :8500
//	go run ./cmd/participant -name Ecu1 -listen :8500 -peer localhost:8501=Ecu2
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/config"
	"github.com/vectorgrp/sil-kit-sub002/discovery"
	"github.com/vectorgrp/sil-kit-sub002/lifecycle"
	"github.com/vectorgrp/sil-kit-sub002/observability"
	"github.com/vectorgrp/sil-kit-sub002/requestreply"
	"github.com/vectorgrp/sil-kit-sub002/router"
	"github.com/vectorgrp/sil-kit-sub002/transport"
)

// stdLogger implements router.Logger using the standard library log
// package, bracket-prefixed by level.
type stdLogger struct{}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Warn(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

// peerFlags collects repeated -peer addr=participantName flags.
type peerFlags []string

func (p *peerFlags) String() string { return strings.Join(*p, ",") }

func (p *peerFlags) Set(value string) error {
	*p = append(*p, value)
	return nil
}

const participantNameMetadataKey = "silkit-participant-name"

func main() {
	configPath := flag.String("config", "", "path to a participant YAML config file")
	name := flag.String("name", "", "participant name (overrides config, required if -config is unset)")
	listenAddr := flag.String("listen", ":8500", "address this participant's Exchange server listens on")
	var peers peerFlags
	flag.Var(&peers, "peer", "addr=participantName of a peer to dial at startup; may be repeated")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *name)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	config.Set(cfg)

	logger := &stdLogger{}
	logger.Info("participant_starting", "name", cfg.ParticipantName, "listen", *listenAddr)

	shutdownTracer, err := observability.InitTracer(cfg.ParticipantName, cfg.Tracing.Endpoint)
	if err != nil {
		log.Fatalf("initializing tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Warn("tracer_shutdown_failed", "error", err.Error())
		}
	}()

	r := router.NewInMemoryRouter(cfg.ParticipantName, logger)
	r.Start()
	defer r.Stop()

	disco := discovery.NewServiceDiscovery(cfg.ParticipantName, r, logger)
	disco.RegisterServiceDiscoveryHandler(func(eventType discovery.EventType, descriptor addressing.ServiceDescriptor) {
		logger.Debug("service_discovery_event", "type", eventType.String(), "service", descriptor.String())
		observability.RecordDiscoveryEvent(eventType.String())
	})

	tracker := lifecycle.NewTracker(r, logger)
	tracker.RegisterSystemStateHandler(func(state lifecycle.ParticipantState) {
		logger.Info("system_state_changed", "state", state.String())
		observability.SetSystemState(state.String(), allParticipantStates())
	})

	self := addressing.New(cfg.ParticipantName, "Default", "RequestReplyService",
		addressing.NetworkTypeInvalid, addressing.ServiceTypeInternalController, 0)
	rr := requestreply.NewService(cfg.ParticipantName, self, r, logger)
	defer rr.Close()

	tracker.SetParticipantState(cfg.ParticipantName, lifecycle.StateServicesCreated, "participant process started")

	exchangeHandler := func(stream transport.ExchangeStream) error {
		remoteName := remoteParticipantName(stream)
		logger.Info("peer_stream_accepted", "remoteParticipant", remoteName)
		transport.AcceptPeer(remoteName, stream, r, logger, func(link *transport.PeerLink) {
			r.AddPeer(link)
		})
		r.RemovePeer(remoteName)
		return nil
	}
	server := transport.NewGracefulServer(*listenAddr, exchangeHandler, logger)

	serverCtx, cancelServer := context.WithCancel(context.Background())
	go func() {
		if err := server.Start(serverCtx); err != nil && serverCtx.Err() == nil {
			logger.Error("transport_server_failed", "error", err.Error())
		}
	}()

	tracker.SetParticipantState(cfg.ParticipantName, lifecycle.StateCommunicationInitializing, "dialing peers")
	for _, peerSpec := range peers {
		addr, peerName, ok := strings.Cut(peerSpec, "=")
		if !ok {
			logger.Warn("peer_spec_invalid", "spec", peerSpec)
			continue
		}
		dialCtx := metadata.AppendToOutgoingContext(context.Background(), participantNameMetadataKey, cfg.ParticipantName)
		link, err := transport.DialPeer(dialCtx, addr, peerName, r, logger)
		if err != nil {
			logger.Error("peer_dial_failed", "addr", addr, "peer", peerName, "error", err.Error())
			continue
		}
		r.AddPeer(link)
		logger.Info("peer_dialed", "addr", addr, "peer", peerName)
	}

	tracker.SetParticipantState(cfg.ParticipantName, lifecycle.StateCommunicationInitialized, "peers connected")
	tracker.SetParticipantState(cfg.ParticipantName, lifecycle.StateReadyToRun, "peers connected")
	tracker.SetParticipantState(cfg.ParticipantName, lifecycle.StateRunning, "participant running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("\nSIL Kit participant %q running on %s\n", cfg.ParticipantName, *listenAddr)
	fmt.Println("Press Ctrl+C to stop")

	sig := <-sigCh
	logger.Info("shutdown_signal_received", "signal", sig.String())

	tracker.SetParticipantState(cfg.ParticipantName, lifecycle.StateStopping, "shutdown signal received")
	cancelServer()
	server.ShutdownWithTimeout(5 * time.Second)
	tracker.SetParticipantState(cfg.ParticipantName, lifecycle.StateStopped, "transport server stopped")
	tracker.SetParticipantState(cfg.ParticipantName, lifecycle.StateShuttingDown, "participant process shutting down")
	tracker.SetParticipantState(cfg.ParticipantName, lifecycle.StateShutdown, "participant process stopped")
	logger.Info("participant_stopped", "name", cfg.ParticipantName)
}

// loadConfig reads a YAML config at path if given, otherwise builds a
// default configuration from name. Either way participantName is filled
// in and Validate is applied before returning.
func loadConfig(path, name string) (*config.ParticipantConfig, error) {
	if path != "" {
		cfg, err := config.LoadParticipantConfig(path)
		if err != nil {
			return nil, err
		}
		if name != "" {
			cfg.ParticipantName = name
		}
		return cfg, nil
	}
	cfg := config.DefaultParticipantConfig()
	cfg.ParticipantName = name
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// remoteParticipantName recovers the dialing participant's name from the
// stream's incoming gRPC metadata (set by DialPeer's caller via
// metadata.AppendToOutgoingContext), falling back to "unknown" for a peer
// that didn't set it.
func remoteParticipantName(stream transport.ExchangeStream) string {
	md, ok := metadata.FromIncomingContext(stream.Context())
	if !ok {
		return "unknown"
	}
	values := md.Get(participantNameMetadataKey)
	if len(values) == 0 {
		return "unknown"
	}
	return values[0]
}

func allParticipantStates() []string {
	states := []lifecycle.ParticipantState{
		lifecycle.StateServicesCreated,
		lifecycle.StateCommunicationInitializing,
		lifecycle.StateCommunicationInitialized,
		lifecycle.StateReadyToRun,
		lifecycle.StateRunning,
		lifecycle.StatePaused,
		lifecycle.StateStopping,
		lifecycle.StateStopped,
		lifecycle.StateShuttingDown,
		lifecycle.StateShutdown,
		lifecycle.StateError,
	}
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return names
}
