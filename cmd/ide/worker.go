package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/progcompcl/ide/internal/appconfig"
	"github.com/progcompcl/ide/internal/toolchain"
	"github.com/progcompcl/ide/internal/workergrpc"
	"pkt.systems/pslog"
)

func newWorkerCmd() *cobra.Command {
	var cfgPath string
	var network string
	var address string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the compiler worker daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			workerCfg := toWorkerConfig(cfg)
			if network != "" {
				workerCfg.Network = network
			}
			if address != "" {
				workerCfg.Address = address
			}
			newToolchain := clangFactory(cfg)
			if dryRun {
				newToolchain = func() toolchain.Toolchain { return &toolchain.Fake{} }
			}
			pslog.Ctx(cmd.Context()).Info("worker daemon start", "network", workerCfg.Network, "address", workerCfg.Address, "dry_run", dryRun)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return workergrpc.NewServer(workerCfg, newToolchain).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&network, "network", "", "listen network (unix or tcp)")
	cmd.Flags().StringVar(&address, "address", "", "listen address (socket path or host:port)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "use the built-in fake toolchain")
	return cmd
}
