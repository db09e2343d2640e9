package transport

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// serviceName is the gRPC service exposed by every participant process:
// a single bidirectional stream of framed SIL Kit bytes, carried inside
// the well-known wrapperspb.BytesValue proto message rather than a
// fabricated generated type.
const (
	serviceName    = "silkit.transport.PeerLink"
	exchangeMethod = "Exchange"
)

// ExchangeStream is the server-side view of one peer's bidirectional
// stream, hand-written in the shape protoc-gen-go-grpc would generate
// for a `rpc Exchange(stream BytesValue) returns (stream BytesValue)`.
type ExchangeStream interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ServerStream
}

// ExchangeHandler is invoked once per incoming peer connection.
type ExchangeHandler func(stream ExchangeStream) error

type exchangeServer struct {
	grpc.ServerStream
}

func (x *exchangeServer) Send(m *wrapperspb.BytesValue) error { return x.ServerStream.SendMsg(m) }
func (x *exchangeServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func exchangeStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ExchangeHandler)(&exchangeServer{ServerStream: stream})
}

// ServiceDesc registers the Exchange stream on a *grpc.Server. HandlerType
// is left nil since the handler function closes over the ExchangeHandler
// directly rather than dispatching through a generated interface.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    exchangeMethod,
			Handler:       exchangeStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "silkit/transport.proto",
}

// RegisterExchangeHandler wires handler into grpcServer as the Exchange
// stream implementation.
func RegisterExchangeHandler(grpcServer *grpc.Server, handler ExchangeHandler) {
	grpcServer.RegisterService(&serviceDesc, handler)
}

// clientStream is the client-side view, matching ExchangeStream's Send/
// Recv shape but over a grpc.ClientStream.
type clientStream struct {
	grpc.ClientStream
}

func (c *clientStream) Send(m *wrapperspb.BytesValue) error { return c.ClientStream.SendMsg(m) }
func (c *clientStream) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DialExchange opens the Exchange stream against a peer's gRPC endpoint.
func DialExchange(ctx context.Context, cc grpc.ClientConnInterface) (*clientStream, error) {
	desc := &grpc.StreamDesc{
		StreamName:    exchangeMethod,
		ServerStreams: true,
		ClientStreams: true,
	}
	stream, err := cc.NewStream(ctx, desc, "/"+serviceName+"/"+exchangeMethod)
	if err != nil {
		return nil, err
	}
	return &clientStream{ClientStream: stream}, nil
}

// drainUntilEOF reads frames off stream until it closes, invoking onFrame
// for each. Used by PeerLink.recvLoop on both the dial and accept sides.
func drainUntilEOF(recv func() (*wrapperspb.BytesValue, error), onFrame func([]byte)) error {
	for {
		msg, err := recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		onFrame(msg.GetValue())
	}
}
