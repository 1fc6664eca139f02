package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/progcompcl/ide"
	"github.com/progcompcl/ide/httpapi"
	"github.com/progcompcl/ide/internal/appconfig"
	"github.com/progcompcl/ide/internal/toolchain"
	"github.com/progcompcl/ide/internal/workergrpc"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the compile-session HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			newToolchain := clangFactory(cfg)
			if dryRun {
				logger.Warn("serve using fake toolchain")
				newToolchain = func() toolchain.Toolchain { return &toolchain.Fake{} }
			}

			serverCfg := toServerConfig(cfg)
			opts := []ide.ServerOption{ide.WithHTTP()}
			if cfg.Worker.Mode == appconfig.WorkerModeGRPC && cfg.Worker.Embedded {
				opts = append(opts, ide.WithWorker())
			}
			logger.Info("worker mode selected", "mode", cfg.Worker.Mode, "embedded", cfg.Worker.Embedded, "address", cfg.Worker.Address)
			server, err := ide.New(serverCfg, ide.ServerDeps{NewToolchain: newToolchain, Logger: logger}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "use the built-in fake toolchain")
	return cmd
}

func toServerConfig(cfg appconfig.Config) ide.ServerConfig {
	return ide.ServerConfig{
		Session:      cfg.SessionDefaults(),
		MaxSessions:  cfg.Session.MaxSessions,
		IdleTimeout:  cfg.IdleTimeout(),
		ReapInterval: cfg.ReapInterval(),
		HTTP: httpapi.Config{
			Addr:     cfg.HTTP.Addr,
			BasePath: cfg.HTTP.BasePath,
		},
		WorkerMode: cfg.Worker.Mode,
		Worker:     toWorkerConfig(cfg),
	}
}

func toWorkerConfig(cfg appconfig.Config) workergrpc.Config {
	return workergrpc.Config{
		Network:         cfg.Worker.Network,
		Address:         cfg.Worker.Address,
		ShutdownTimeout: cfg.ShutdownTimeout(),
	}
}
