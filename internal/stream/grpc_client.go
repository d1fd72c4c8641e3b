package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/metadata"

	"github.com/arianpg/mikaboshi/internal/model"
)

const sessionHeader = "x-mikaboshi-session"

// GRPCSource opens server-streaming subscriptions against the upstream relay.
// The client connection is shared across resubscriptions.
type GRPCSource struct {
	mu sync.Mutex

	logger    *slog.Logger
	addr      string
	tlsConfig *tls.Config
	token     string
	method    string
	sessionID string
	compress  bool
	codec     encoding.Codec
	dialOpts  []grpc.DialOption
	conn      *grpc.ClientConn
}

type GRPCSourceOptions struct {
	Addr      string
	TLSConfig *tls.Config
	Token     string
	Method    string
	SessionID string
	Compress  bool
	// Codec is CodecProto (default) or CodecJSON.
	Codec    string
	DialOpts []grpc.DialOption
}

func NewGRPCSource(opts GRPCSourceOptions, logger *slog.Logger) *GRPCSource {
	var codec encoding.Codec = packetCodec{}
	if opts.Codec == CodecJSON {
		codec = jsonCodec{}
	}
	return &GRPCSource{
		logger:    logger,
		addr:      opts.Addr,
		tlsConfig: opts.TLSConfig,
		token:     opts.Token,
		method:    opts.Method,
		sessionID: opts.SessionID,
		compress:  opts.Compress,
		codec:     codec,
		dialOpts:  opts.DialOpts,
	}
}

func (c *GRPCSource) Subscribe(ctx context.Context) (EventStream, error) {
	c.mu.Lock()
	if err := c.ensureConnLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	conn := c.conn
	c.mu.Unlock()

	callOpts := []grpc.CallOption{grpc.ForceCodec(c.codec)}
	if c.compress {
		callOpts = append(callOpts, grpc.UseCompressor(gzip.Name))
	}
	s, err := conn.NewStream(c.decorateContext(ctx), &grpc.StreamDesc{ServerStreams: true}, c.method, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("open subscribe stream: %w", err)
	}
	if err := s.SendMsg(&model.SubscribeRequest{}); err != nil {
		return nil, fmt.Errorf("send subscribe request: %w", err)
	}
	if err := s.CloseSend(); err != nil {
		return nil, fmt.Errorf("close subscribe send: %w", err)
	}
	return &grpcEventStream{stream: s}, nil
}

func (c *GRPCSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *GRPCSource) ensureConnLocked() error {
	if c.conn != nil {
		return nil
	}

	var creds credentials.TransportCredentials
	if c.tlsConfig != nil {
		creds = credentials.NewTLS(c.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, c.dialOpts...)

	conn, err := grpc.NewClient(c.addr, opts...)
	if err != nil {
		return fmt.Errorf("grpc client %s: %w", c.addr, err)
	}
	c.conn = conn
	c.logger.Info("grpc upstream configured", "addr", c.addr, "method", c.method, "codec", c.codec.Name())
	return nil
}

func (c *GRPCSource) decorateContext(ctx context.Context) context.Context {
	pairs := make([]string, 0, 4)
	if c.token != "" {
		pairs = append(pairs, "authorization", "Bearer "+c.token)
	}
	if c.sessionID != "" {
		pairs = append(pairs, sessionHeader, c.sessionID)
	}
	if len(pairs) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

type grpcEventStream struct {
	stream grpc.ClientStream
}

func (s *grpcEventStream) Recv() (model.TrafficEvent, error) {
	var ev model.TrafficEvent
	if err := s.stream.RecvMsg(&ev); err != nil {
		return model.TrafficEvent{}, err
	}
	return ev, nil
}
