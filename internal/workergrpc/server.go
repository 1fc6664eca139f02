package workergrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/progcompcl/ide/internal/logx"
	"github.com/progcompcl/ide/internal/toolchain"
	"github.com/progcompcl/ide/internal/wire"
	"github.com/progcompcl/ide/internal/worker"
	"github.com/progcompcl/ide/schema"
	"pkt.systems/pslog"
)

// Server hosts workers; every Connect stream gets a fresh worker.
type Server struct {
	cfg          Config
	newToolchain func() toolchain.Toolchain
	logger       pslog.Logger
	health       *health.Server
	active       atomic.Int64
}

// NewServer constructs a worker daemon.
func NewServer(cfg Config, newToolchain func() toolchain.Toolchain) *Server {
	return &Server{cfg: cfg, newToolchain: newToolchain, health: health.NewServer()}
}

// Active returns the number of connected workers.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// ListenAndServe listens on the configured address and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.Address == "" {
		return errors.New("worker address is required")
	}
	network := s.cfg.network()
	if network == "unix" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Address), 0o755); err != nil {
			return err
		}
		_ = os.Remove(s.cfg.Address)
	}
	listener, err := net.Listen(network, s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on an existing listener until ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.newToolchain == nil {
		return errors.New("worker toolchain constructor is required")
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("worker grpc listening", "network", listener.Addr().Network(), "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.stop(grpcServer)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) stop(grpcServer *grpc.Server) {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("worker grpc graceful stop timed out", "active", s.active.Load())
		grpcServer.Stop()
	}
}

// Connect runs one worker for the lifetime of the stream.
func (s *Server) Connect(stream grpc.ServerStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	gen := generationFromContext(ctx)
	log := s.logger.With("generation", uint64(gen))
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		log = log.With("peer", p.Addr.String())
	}
	tc := s.newToolchain()
	if tc == nil {
		return status.Error(codes.Unavailable, "no toolchain available")
	}
	active := s.active.Add(1)
	defer s.active.Add(-1)
	log.Info("worker grpc connect", "active", active)

	var sendMu sync.Mutex
	send := func(msg schema.WorkerMessage) {
		frame, err := wire.WorkerFrame(msg)
		if err != nil {
			log.Error("worker grpc encode failed", "type", string(msg.Type), "err", err)
			return
		}
		sendMu.Lock()
		defer sendMu.Unlock()
		if err := stream.SendMsg(&frame); err != nil {
			log.Debug("worker grpc send failed", "err", err)
			cancel()
		}
	}

	inbox := make(chan schema.ControlMessage)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Error("worker grpc worker crashed", "panic", fmt.Sprint(r))
				msg := schema.FaultMessage(fmt.Sprintf("Worker error: %v", r))
				msg.Generation = gen
				send(msg)
			}
		}()
		worker.New(tc, gen, send).Run(logx.ContextWithWorkerLogger(ctx, log, gen), inbox)
	}()

	err := s.receive(ctx, stream, gen, inbox, send)
	cancel()
	<-done
	log.Info("worker grpc disconnect")
	return err
}

func (s *Server) receive(ctx context.Context, stream grpc.ServerStream, gen schema.Generation, inbox chan<- schema.ControlMessage, send worker.Outbox) error {
	for {
		var frame wire.Frame
		if err := stream.RecvMsg(&frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg, err := frame.Control()
		if err != nil {
			fault := schema.FaultMessage(fmt.Sprintf("Malformed message: %s", err.Error()))
			fault.Generation = gen
			send(fault)
			continue
		}
		select {
		case inbox <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}
