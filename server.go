package ide

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/progcompcl/ide/core"
	"github.com/progcompcl/ide/httpapi"
	"github.com/progcompcl/ide/internal/eventbus"
	"github.com/progcompcl/ide/internal/localchan"
	"github.com/progcompcl/ide/internal/toolchain"
	"github.com/progcompcl/ide/internal/workergrpc"
	"github.com/progcompcl/ide/schema"
	"pkt.systems/pslog"
)

// Worker transports.
const (
	WorkerModeLocal = "local"
	WorkerModeGRPC  = "grpc"
)

// Server composes the HTTP front end, the session registry, and the worker daemon.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Session      schema.SessionConfig
	MaxSessions  int
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	HTTP         httpapi.Config
	WorkerMode   string
	Worker       workergrpc.Config
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	// NewToolchain builds the toolchain for each local or daemon-hosted worker.
	NewToolchain func() toolchain.Toolchain
	// Factory overrides the worker transport chosen by WorkerMode.
	Factory   core.ChannelFactory
	EventSink core.EventSink
	Logger    pslog.Logger
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP   bool
	enableWorker bool
}

// WithHTTP enables the HTTP API server and its session registry.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithWorker enables the gRPC worker daemon.
func WithWorker() ServerOption {
	return func(o *serverOptions) { o.enableWorker = true }
}

// New constructs a composable server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableWorker {
		return nil, errors.New("no services enabled")
	}
	if cfg.WorkerMode == "" {
		cfg.WorkerMode = WorkerModeLocal
	}

	srv := &compositeServer{cfg: cfg, options: options}
	if options.enableWorker {
		if deps.NewToolchain == nil {
			return nil, errors.New("toolchain dependency is required")
		}
		srv.daemon = workergrpc.NewServer(cfg.Worker, deps.NewToolchain)
	}
	if options.enableHTTP {
		factory := deps.Factory
		if factory == nil {
			switch cfg.WorkerMode {
			case WorkerModeLocal:
				if deps.NewToolchain == nil {
					return nil, errors.New("toolchain dependency is required")
				}
				factory = &localchan.Factory{NewToolchain: deps.NewToolchain}
			case WorkerModeGRPC:
				client, err := workergrpc.Dial(context.Background(), cfg.Worker)
				if err != nil {
					return nil, err
				}
				srv.client = client
				factory = client
			default:
				return nil, errors.New("unsupported worker mode " + cfg.WorkerMode)
			}
		}
		bus := eventbus.New(deps.Logger)
		registry, err := core.NewRegistry(core.RegistryOptions{
			Config:      cfg.Session,
			Factory:     factory,
			Sink:        newEventFanout(bus, deps.EventSink),
			Logger:      deps.Logger,
			MaxSessions: cfg.MaxSessions,
			OnClosed:    bus.Forget,
		})
		if err != nil {
			if srv.client != nil {
				_ = srv.client.Close()
			}
			return nil, err
		}
		srv.registry = registry
		srv.httpSrv = httpapi.NewServer(cfg.HTTP, registry, bus)
	}
	return srv, nil
}

type compositeServer struct {
	cfg      ServerConfig
	options  serverOptions
	httpSrv  *httpapi.Server
	registry *core.Registry
	daemon   *workergrpc.Server
	client   *workergrpc.Client
	logger   pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(s.ctx)
	s.group = group
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"worker", s.options.enableWorker,
		"worker_mode", s.cfg.WorkerMode,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"worker_addr", s.cfg.Worker.Address,
	)
	if s.daemon != nil {
		group.Go(func() error {
			if err := s.daemon.ListenAndServe(gctx); err != nil {
				log.Error("worker server failed", "err", err)
				return err
			}
			return nil
		})
	}
	if s.httpSrv != nil {
		group.Go(func() error {
			if err := httpapi.ListenAndServe(gctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				return err
			}
			return nil
		})
	}
	if s.registry != nil && s.cfg.IdleTimeout > 0 {
		group.Go(func() error {
			s.registry.RunReaper(gctx, s.cfg.ReapInterval, s.cfg.IdleTimeout)
			return nil
		})
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	group := s.group
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	err := group.Wait()
	if err != nil {
		s.logger.Error("server stopped", "err", err)
	}
	s.release()
	return err
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	group := s.group
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	s.release()
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}

// release terminates every session and drops the daemon connection.
func (s *compositeServer) release() {
	if s.registry != nil {
		s.registry.CloseAll()
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && s.logger != nil {
			s.logger.Debug("worker client close failed", "err", err)
		}
	}
}
