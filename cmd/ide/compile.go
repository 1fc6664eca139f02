package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/progcompcl/ide/core"
	"github.com/progcompcl/ide/internal/appconfig"
	"github.com/progcompcl/ide/internal/localchan"
	"github.com/progcompcl/ide/internal/logx"
	"github.com/progcompcl/ide/internal/toolchain"
	"github.com/progcompcl/ide/schema"
)

// exitCompileFailed reports that the user program did not compile or run.
const exitCompileFailed = 2

type compileFlags struct {
	cfgPath   string
	stdinFile string
	assembly  bool
	triple    string
	opt       string
	dryRun    bool
	timeout   time.Duration
}

func newCompileCmd() *cobra.Command {
	var flags compileFlags
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile and run one source file in a fresh session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.stdinFile, "stdin-file", "", "file fed to the program as stdin")
	cmd.Flags().BoolVar(&flags.assembly, "assembly", false, "print the assembly listing instead of running")
	cmd.Flags().StringVar(&flags.triple, "triple", schema.DefaultTargetTriple, "assembly target triple")
	cmd.Flags().StringVar(&flags.opt, "opt", schema.DefaultOptimizationLevel, "assembly optimization level")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "use the built-in fake toolchain")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 2*time.Minute, "overall deadline")
	return cmd
}

func runCompile(ctx context.Context, out, errOut io.Writer, path string, flags compileFlags) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read source")
	}
	var stdin []byte
	if flags.stdinFile != "" {
		stdin, err = os.ReadFile(flags.stdinFile)
		if err != nil {
			return errors.Wrap(err, "read stdin file")
		}
	}
	cfg, err := appconfig.Load(flags.cfgPath)
	if err != nil {
		return err
	}
	newToolchain := clangFactory(cfg)
	if flags.dryRun {
		newToolchain = func() toolchain.Toolchain { return &toolchain.Fake{} }
	}

	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}
	id := schema.SessionID(uuid.NewString())
	logx.WithSession(ctx, id).Debug("compile session start", "file", path, "assembly", flags.assembly)
	sink := newConsoleSink(out, errOut)
	session, err := core.NewSession(ctx, core.SessionOptions{
		ID:      id,
		Config:  cfg.SessionDefaults(),
		Factory: &localchan.Factory{NewToolchain: newToolchain},
		Sink:    sink,
	})
	if err != nil {
		return err
	}
	defer session.Terminate()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case state := <-sink.Settled():
		if state != schema.StateReady {
			return fmt.Errorf("compiler did not start: %s", state)
		}
	}

	var pending *core.Pending
	if flags.assembly {
		pending, err = session.CompileToAssembly(ctx, string(code), schema.AssemblyOptions{
			TargetTriple:      flags.triple,
			OptimizationLevel: flags.opt,
		})
	} else {
		pending, err = session.Compile(ctx, schema.CompileRequest{
			SourceCode: string(code),
			Filename:   filepath.Base(path),
			Stdin:      string(stdin),
		})
	}
	if err != nil {
		return err
	}
	result, err := pending.Wait(ctx)
	if err != nil {
		return err
	}
	if flags.assembly && result.Success {
		_, _ = io.WriteString(out, result.Assembly)
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "compilation failed"
		}
		return &exitCodeError{code: exitCompileFailed, err: errors.New(msg)}
	}
	return nil
}

func clangFactory(cfg appconfig.Config) func() toolchain.Toolchain {
	tc := toolchain.Config{
		CXX:        cfg.Toolchain.CXX,
		WorkDir:    cfg.Toolchain.WorkDir,
		Flags:      cfg.Toolchain.Flags,
		RunTimeout: cfg.RunTimeout(),
	}
	return func() toolchain.Toolchain { return toolchain.NewClang(tc) }
}
