package workergrpc

import (
	"context"
	"net"
	"time"
)

// Config controls the worker daemon and its clients.
type Config struct {
	// Network is "unix" or "tcp".
	Network string
	// Address is a socket path for unix or host:port for tcp.
	Address         string
	ShutdownTimeout time.Duration
	// Dialer overrides how clients connect to Address.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

func (c Config) network() string {
	if c.Network == "" {
		return "unix"
	}
	return c.Network
}
