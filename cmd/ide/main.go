package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

// exitCodeError ends the process with a specific code and no error log.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }

func (e *exitCodeError) Unwrap() error { return e.err }

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(withArgv0Command(os.Args)[1:])
	return exitCode(ctx, root.ExecuteContext(ctx))
}

func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}
	var coded *exitCodeError
	if errors.As(err, &coded) {
		pslog.Ctx(ctx).Debug("ide command exit", "code", coded.code, "err", coded.err)
		return coded.code
	}
	pslog.Ctx(ctx).With("err", err).Error("ide command failed")
	return 1
}

// withArgv0Command lets the binary be installed as ide-worker.
func withArgv0Command(args []string) []string {
	if len(args) == 0 || filepath.Base(args[0]) != "ide-worker" {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], "worker")
	return append(out, args[1:]...)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ide",
		Short:         "Compile-session server for C++ programs",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newCompileCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}
