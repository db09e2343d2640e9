package transport

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vectorgrp/sil-kit-sub002/addressing"
	"github.com/vectorgrp/sil-kit-sub002/router"
)

// Logger mirrors router.Logger.
type Logger = router.Logger

// deliverer is the subset of *router.InMemoryRouter a PeerLink needs to
// hand inbound frames to.
type deliverer interface {
	Deliver(fromParticipant string, msg router.Message)
}

// closer abstracts the teardown step of whatever carried the stream: a
// *grpc.ClientConn on the dial side, nothing extra on the accept side
// (the stream closes when the server handler returns).
type closer interface {
	Close() error
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

type connCloser struct{ cc *grpc.ClientConn }

func (c connCloser) Close() error { return c.cc.Close() }

// PeerLink is the concrete router.PeerLink: it owns one gRPC Exchange
// stream to a single remote participant, encoding outbound messages with
// the spec §6 wire format and decoding inbound frames back onto the
// local router's Deliver path.
type PeerLink struct {
	participantName string
	logger          Logger

	mu     sync.Mutex
	closed bool

	send func(*wrapperspb.BytesValue) error
	conn closer
}

// newPeerLink wraps a live stream (client- or server-side) into a
// PeerLink that decodes inbound frames onto router and encodes outbound
// ones via send. It owns a goroutine draining recv until the stream ends.
func newPeerLink(participantName string, r deliverer, logger Logger, send func(*wrapperspb.BytesValue) error, recv func() (*wrapperspb.BytesValue, error), conn closer) *PeerLink {
	if logger == nil {
		logger = router.NoopLogger()
	}
	p := &PeerLink{participantName: participantName, logger: logger, send: send, conn: conn}
	go p.recvLoop(r, recv)
	return p
}

func (p *PeerLink) recvLoop(r deliverer, recv func() (*wrapperspb.BytesValue, error)) {
	err := drainUntilEOF(recv, func(frame []byte) {
		decoded, err := DecodeMessage(frame)
		if err != nil {
			p.logger.Warn("transport: dropping malformed frame", "peer", p.participantName, "error", err.Error())
			return
		}
		msg, ok := decoded.Value.(router.Message)
		if !ok {
			p.logger.Warn("transport: decoded payload does not implement router.Message", "peer", p.participantName, "payloadType", decoded.PayloadType)
			return
		}
		r.Deliver(p.participantName, msg)
	})
	if err != nil {
		p.logger.Info("transport: peer stream closed", "peer", p.participantName, "reason", err.Error())
	}
}

// ParticipantName implements router.PeerLink.
func (p *PeerLink) ParticipantName() string { return p.participantName }

// Send implements router.PeerLink: it frames msg per spec §6 and writes
// it to the underlying stream as a wrapperspb.BytesValue. from is unused
// on the wire (the remote side identifies the sender by connection, not
// by a serialized descriptor) but kept to satisfy router.PeerLink.
func (p *PeerLink) Send(from addressing.ServiceDescriptor, msg router.Message) error {
	frame, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("transport: send on closed peer link to %s", p.participantName)
	}
	return p.send(wrapperspb.Bytes(frame))
}

// Close implements router.PeerLink.
func (p *PeerLink) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// DialPeer opens a gRPC connection to addr and returns a PeerLink for
// participantName backed by the Exchange stream.
func DialPeer(ctx context.Context, addr, participantName string, r deliverer, logger Logger, dialOpts ...grpc.DialOption) (*PeerLink, error) {
	dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
	cc, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", addr, err)
	}
	stream, err := DialExchange(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("transport: opening exchange stream to %s: %w", addr, err)
	}
	return newPeerLink(participantName, r, logger, stream.Send, stream.Recv, connCloser{cc}), nil
}

// AcceptPeer wraps a server-side Exchange stream (already identified as
// belonging to participantName, e.g. via stream metadata) into a
// PeerLink and blocks until the stream's context is cancelled. onLinked,
// if non-nil, is invoked with the link before blocking, so the caller can
// register it as an outbound route (e.g. router.InMemoryRouter.AddPeer) for as
// long as the stream lives.
func AcceptPeer(participantName string, stream ExchangeStream, r deliverer, logger Logger, onLinked func(*PeerLink)) {
	link := newPeerLink(participantName, r, logger, stream.Send, stream.Recv, noopCloser{})
	if onLinked != nil {
		onLinked(link)
	}
	<-stream.Context().Done()
	_ = link.Close()
}
