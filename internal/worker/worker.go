// Package worker implements the isolated side of a compile session: it owns
// a toolchain, answers control messages in order, and never lets a failure
// escape as anything but a compiled or error message.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/progcompcl/ide/internal/logx"
	"github.com/progcompcl/ide/internal/toolchain"
	"github.com/progcompcl/ide/schema"
	"pkt.systems/pslog"
)

const (
	statusInitializing = "Initializing compiler..."
	statusReady        = "Compiler ready!"
	statusCompiling    = "Compiling..."
)

// Outbox receives every message the worker produces, in order.
type Outbox func(msg schema.WorkerMessage)

// Worker serves one generation of a session.
type Worker struct {
	tc    toolchain.Toolchain
	gen   schema.Generation
	out   Outbox
	outMu sync.Mutex
	ready bool
}

// New constructs a worker stamping its messages with gen.
func New(tc toolchain.Toolchain, gen schema.Generation, out Outbox) *Worker {
	return &Worker{tc: tc, gen: gen, out: out}
}

// Run prepares the toolchain and then handles inbox messages one at a time
// until the inbox closes or ctx ends.
func (w *Worker) Run(ctx context.Context, inbox <-chan schema.ControlMessage) {
	log := logx.WithGeneration(ctx, w.gen)
	w.initialize(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopped", "err", ctx.Err())
			return
		case msg, ok := <-inbox:
			if !ok {
				log.Debug("worker inbox closed")
				return
			}
			w.execute(ctx, log, msg)
		}
	}
}

func (w *Worker) initialize(ctx context.Context, log pslog.Logger) {
	w.send(schema.StatusMessage(statusInitializing))
	err := w.guard(log, "prepare", func() error {
		return w.tc.Prepare(ctx, w.emitOutput)
	})
	if err != nil {
		log.Error("worker init failed", "err", err)
		w.send(schema.FaultMessage(fmt.Sprintf("Failed to initialize compiler: %s", err.Error())))
		return
	}
	w.ready = true
	w.send(schema.StatusMessage(statusReady))
	w.send(schema.ReadyMessage())
	log.Info("worker ready")
}

// execute handles one message, converting panics into a fault.
func (w *Worker) execute(ctx context.Context, log pslog.Logger, msg schema.ControlMessage) {
	_ = w.guard(log, string(msg.Type), func() error {
		w.handle(ctx, log, msg)
		return nil
	})
}

func (w *Worker) guard(log pslog.Logger, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panic", "op", op, "panic", fmt.Sprint(r))
			if op == "prepare" {
				err = fmt.Errorf("panic: %v", r)
				return
			}
			w.send(schema.FaultMessage(fmt.Sprintf("Worker error: %v", r)))
		}
	}()
	return fn()
}

func (w *Worker) handle(ctx context.Context, log pslog.Logger, msg schema.ControlMessage) {
	log.Trace("worker message", "type", string(msg.Type))
	switch msg.Type {
	case schema.MsgCompile:
		if !w.ready {
			w.send(schema.FaultMessage("Compiler not ready yet. Please wait..."))
			return
		}
		if msg.Compile == nil {
			w.send(schema.FaultMessage("compile message without payload"))
			return
		}
		w.compile(ctx, log, *msg.Compile)
	case schema.MsgCompileToAssembly:
		if !w.ready {
			w.send(schema.FaultMessage("Compiler not ready yet"))
			return
		}
		if msg.Assembly == nil {
			w.send(schema.FaultMessage("compileToAssembly message without payload"))
			return
		}
		w.assemble(ctx, log, *msg.Assembly)
	default:
		log.Warn("worker unknown message", "type", string(msg.Type))
		w.send(schema.FaultMessage(fmt.Sprintf("Unknown message type: %s", msg.Type)))
	}
}

func (w *Worker) compile(ctx context.Context, log pslog.Logger, data schema.CompileData) {
	w.send(schema.StatusMessage(statusCompiling))
	res, err := w.tc.CompileAndRun(ctx, toolchain.RunRequest{
		Code:     data.Code,
		Filename: data.Filename,
		Stdin:    data.Stdin,
	}, w.emitOutput)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Warn("worker compile error", "err", err)
		w.send(schema.CompiledMessage(schema.CompiledData{Success: false, Error: err.Error()}))
		return
	}
	log.Debug("worker compile done", "success", res.Success, "still_running", res.StillRunning, "exit_code", res.ExitCode)
	w.send(schema.CompiledMessage(schema.CompiledData{
		Success:      res.Success,
		StillRunning: res.StillRunning,
		Error:        res.Error,
	}))
}

func (w *Worker) assemble(ctx context.Context, log pslog.Logger, data schema.AssemblyData) {
	listing, err := w.tc.CompileToAssembly(ctx, toolchain.AssemblyRequest{
		Code:   data.Code,
		Triple: data.Triple,
		Opt:    data.Opt,
	}, w.emitOutput)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		var compileErr *toolchain.CompileError
		if errors.As(err, &compileErr) {
			log.Debug("worker assembly rejected", "err", err)
			w.send(schema.CompiledMessage(schema.CompiledData{Success: false, Error: compileErr.Error()}))
			return
		}
		log.Warn("worker assembly error", "err", err)
		w.send(schema.FaultMessage(err.Error()))
		return
	}
	log.Debug("worker assembly done", "bytes", len(listing))
	w.send(schema.AssemblyMessage(listing))
}

func (w *Worker) emitOutput(text string) {
	w.send(schema.OutputMessage(text))
}

func (w *Worker) send(msg schema.WorkerMessage) {
	msg.Generation = w.gen
	w.outMu.Lock()
	defer w.outMu.Unlock()
	w.out(msg)
}
