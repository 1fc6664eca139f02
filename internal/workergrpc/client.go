package workergrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/progcompcl/ide/core"
	"github.com/progcompcl/ide/internal/logx"
	"github.com/progcompcl/ide/internal/mailbox"
	"github.com/progcompcl/ide/internal/version"
	"github.com/progcompcl/ide/internal/wire"
	"github.com/progcompcl/ide/schema"
	"pkt.systems/pslog"
)

// Client spawns workers on a remote daemon, one stream per generation.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the configured daemon address.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("worker address is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dialer := cfg.Dialer
	if dialer == nil {
		network := cfg.network()
		dialer = func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		}
	}
	target := "passthrough:///" + cfg.Address
	conn, err := grpc.NewClient(
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
		grpc.WithUserAgent(version.UserAgent()),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Check reports whether the daemon is serving workers.
func (c *Client) Check(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("worker client not initialized")
	}
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("worker daemon status %s", resp.GetStatus().String())
	}
	return nil
}

// Create implements core.ChannelFactory. The stream outlives ctx
// cancellation and ends only on Terminate.
func (c *Client) Create(ctx context.Context, gen schema.Generation) (core.Channel, error) {
	if c == nil || c.conn == nil {
		return nil, errors.New("worker client not initialized")
	}
	streamCtx, cancel := context.WithCancel(withGeneration(context.WithoutCancel(ctx), gen))
	stream, err := c.conn.NewStream(streamCtx, &connectStreamDesc, connectMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		cancel()
		return nil, err
	}
	ch := &Channel{
		Mailbox: mailbox.New(),
		log:     logx.WithGeneration(ctx, gen),
		stream:  stream,
		cancel:  cancel,
	}
	go ch.receive()
	ch.log.Debug("worker grpc stream opened")
	return ch, nil
}

// Channel is a core.Channel backed by one Connect stream.
type Channel struct {
	*mailbox.Mailbox

	log    pslog.Logger
	stream grpc.ClientStream
	cancel context.CancelFunc
	sendMu sync.Mutex
}

// Send writes msg to the stream.
func (c *Channel) Send(msg schema.ControlMessage) error {
	if c.Closed() {
		return schema.ErrChannelClosed
	}
	frame, err := wire.ControlFrame(msg)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.stream.SendMsg(&frame); err != nil {
		if c.Closed() {
			return schema.ErrChannelClosed
		}
		return fmt.Errorf("send to worker: %w", err)
	}
	return nil
}

// Terminate cancels the stream; the daemon stops the worker.
func (c *Channel) Terminate() {
	if !c.Close() {
		return
	}
	c.cancel()
	c.log.Debug("worker grpc stream terminated")
}

func (c *Channel) receive() {
	for {
		var frame wire.Frame
		if err := c.stream.RecvMsg(&frame); err != nil {
			if c.Closed() {
				return
			}
			switch {
			case errors.Is(err, io.EOF):
				err = errors.New("worker stream closed")
			case status.Code(err) == codes.Canceled:
				err = errors.New("worker stream canceled")
			}
			c.log.Warn("worker grpc stream failed", "err", err)
			c.PushError(err)
			return
		}
		msg, err := frame.Worker()
		if err != nil {
			c.PushError(fmt.Errorf("decode worker message: %w", err))
			continue
		}
		c.PushMessage(msg)
	}
}
