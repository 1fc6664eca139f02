package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/progcompcl/ide/schema"
)

func TestSessionStartsInitializing(t *testing.T) {
	session, factory, sink := newTestSession(t, schema.SessionConfig{})
	if session.State() != schema.StateInitializing {
		t.Fatalf("expected initializing, got %s", session.State())
	}
	if session.Generation() != 1 {
		t.Fatalf("expected generation 1, got %d", session.Generation())
	}
	if factory.count() != 1 {
		t.Fatalf("expected one worker, got %d", factory.count())
	}
	if sink.lastStatus() != "Loading C++ compiler..." {
		t.Fatalf("unexpected status %q", sink.lastStatus())
	}
}

func TestSessionSpawnFailure(t *testing.T) {
	factory := &fakeFactory{err: errors.New("no worker binary")}
	_, err := NewSession(context.Background(), SessionOptions{Factory: factory})
	var fault *FaultError
	if !errors.As(err, &fault) || fault.Kind != FaultSpawn {
		t.Fatalf("expected spawn fault, got %v", err)
	}
}

func TestCompileBeforeReadyIsRejected(t *testing.T) {
	session, factory, sink := newTestSession(t, schema.SessionConfig{})
	pending, err := session.Compile(context.Background(), schema.CompileRequest{SourceCode: "int main(){}"})
	if !errors.Is(err, schema.ErrNotReady) || pending != nil {
		t.Fatalf("expected not ready rejection, got %v", err)
	}
	if _, err := session.CompileToAssembly(context.Background(), "int main(){}", schema.AssemblyOptions{}); !errors.Is(err, schema.ErrNotReady) {
		t.Fatalf("expected assembly not ready rejection, got %v", err)
	}
	if sent := factory.last().sentMessages(); len(sent) != 0 {
		t.Fatalf("expected no worker messages, got %d", len(sent))
	}
	if session.State() != schema.StateInitializing {
		t.Fatalf("rejection changed state to %s", session.State())
	}
	if sink.lastStatus() != "Compiler not ready" {
		t.Fatalf("unexpected status %q", sink.lastStatus())
	}
}

func TestAtMostOneCompileInFlight(t *testing.T) {
	session, factory, sink := newReadySession(t)
	ctx := context.Background()
	if _, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "a"}); err != nil {
		t.Fatalf("first compile: %v", err)
	}
	if _, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "b"}); !errors.Is(err, schema.ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if sink.lastStatus() != "Compilation in progress..." {
		t.Fatalf("unexpected status %q", sink.lastStatus())
	}
	if _, err := session.CompileToAssembly(ctx, "c", schema.AssemblyOptions{}); !errors.Is(err, schema.ErrBusy) {
		t.Fatalf("expected busy for assembly, got %v", err)
	}
	if sent := factory.last().sentMessages(); len(sent) != 1 {
		t.Fatalf("expected exactly one worker message, got %d", len(sent))
	}
	if session.State() != schema.StateBusy {
		t.Fatalf("expected busy, got %s", session.State())
	}
}

func TestCompileEndToEnd(t *testing.T) {
	session, factory, sink := newReadySession(t)
	pending, err := session.Compile(context.Background(), schema.CompileRequest{SourceCode: "int main(){return 0;}"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sent := factory.last().sentMessages()
	if len(sent) != 1 || sent[0].Type != schema.MsgCompile || sent[0].Compile == nil {
		t.Fatalf("unexpected control messages: %+v", sent)
	}
	if sent[0].Compile.Filename != "main.cpp" || sent[0].Compile.Stdin != "" {
		t.Fatalf("unexpected compile payload: %+v", sent[0].Compile)
	}
	system := session.Snapshot().System.Content
	if !strings.Contains(system, "Compiling main.cpp...\n") {
		t.Fatalf("expected compiling banner, got %q", system)
	}

	factory.last().emit(schema.OutputMessage("Program finished with exit code 0"))
	factory.last().emit(schema.CompiledMessage(schema.CompiledData{Success: true}))

	result, err := waitPending(t, pending)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !result.Success || result.Mode != schema.ModeRun || result.Generation != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if session.State() != schema.StateReady {
		t.Fatalf("expected ready, got %s", session.State())
	}
	if sink.resultCount() != 1 {
		t.Fatalf("expected exactly one result, got %d", sink.resultCount())
	}
	if sink.lastStatus() != "Compilation successful!" {
		t.Fatalf("unexpected status %q", sink.lastStatus())
	}
}

func TestCompileFailureReturnsToReady(t *testing.T) {
	session, factory, sink := newReadySession(t)
	pending, err := session.Compile(context.Background(), schema.CompileRequest{SourceCode: "int main("})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	factory.last().emit(schema.CompiledMessage(schema.CompiledData{Success: false, Error: "Compilation failed with 1 error"}))
	result, err := waitPending(t, pending)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.Success || result.Error != "Compilation failed with 1 error" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if session.State() != schema.StateReady {
		t.Fatalf("expected ready, got %s", session.State())
	}
	if sink.lastStatus() != "Compilation failed" {
		t.Fatalf("unexpected status %q", sink.lastStatus())
	}
	snap := session.Snapshot()
	if !strings.Contains(snap.System.Content, "\n❌ Error: Compilation failed with 1 error\n") {
		t.Fatalf("expected error in system stream, got %q", snap.System.Content)
	}
	if snap.Program.Content != "" {
		t.Fatalf("expected empty program stream, got %q", snap.Program.Content)
	}
}

func TestOutputDiagnosticsBecomeAnnotations(t *testing.T) {
	session, factory, sink := newReadySession(t)
	if _, err := session.Compile(context.Background(), schema.CompileRequest{SourceCode: "x"}); err != nil {
		t.Fatalf("compile: %v", err)
	}
	factory.last().emit(schema.OutputMessage("\x1b[1mmain.cpp:12:5: \x1b[31merror: \x1b[0mexpected ';'\n1 error generated."))
	factory.last().emit(schema.OutputMessage("hello from program"))

	snap := session.Snapshot()
	if len(snap.Annotations) != 1 {
		t.Fatalf("expected one annotation, got %+v", snap.Annotations)
	}
	a := snap.Annotations[0]
	if a.Row != 11 || a.Column != 5 || a.Type != schema.SeverityError || a.Text != "expected ';'" {
		t.Fatalf("unexpected annotation: %+v", a)
	}
	if strings.Contains(snap.System.Content, "\x1b[") {
		t.Fatalf("ANSI left in system stream: %q", snap.System.Content)
	}
	if !strings.Contains(snap.System.Content, "main.cpp:12:5: error: expected ';'\n1 error generated.\n") {
		t.Fatalf("expected whole chunk in system stream, got %q", snap.System.Content)
	}
	if snap.Program.Content != "hello from program\n" {
		t.Fatalf("unexpected program stream %q", snap.Program.Content)
	}
	if snap.Focus != schema.StreamProgram {
		t.Fatalf("expected program focus, got %s", snap.Focus)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	last := sink.annotations[len(sink.annotations)-1]
	if len(last.Annotations) != 1 {
		t.Fatalf("expected annotation event with one entry, got %+v", last)
	}
}

func TestCompileClearsPreviousRun(t *testing.T) {
	session, factory, _ := newReadySession(t)
	ctx := context.Background()
	if _, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "x"}); err != nil {
		t.Fatalf("compile: %v", err)
	}
	factory.last().emit(schema.OutputMessage("main.cpp:1:1: warning: old"))
	factory.last().emit(schema.OutputMessage("old output"))
	factory.last().emit(schema.CompiledMessage(schema.CompiledData{Success: true}))

	if _, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "y", Filename: "b.cpp"}); err != nil {
		t.Fatalf("second compile: %v", err)
	}
	snap := session.Snapshot()
	if snap.Program.Content != "" || snap.Program.LineCount != 0 {
		t.Fatalf("expected program stream cleared, got %+v", snap.Program)
	}
	if snap.System.Content != "Compiling b.cpp...\n" {
		t.Fatalf("unexpected system stream %q", snap.System.Content)
	}
	if len(snap.Annotations) != 0 {
		t.Fatalf("expected annotations cleared, got %+v", snap.Annotations)
	}
}

func TestReadyClearsOutputAndArmsOnce(t *testing.T) {
	session, factory, _ := newTestSession(t, schema.SessionConfig{})
	ch := factory.last()
	ch.emit(schema.StatusMessage("Initializing compiler..."))
	if !strings.Contains(session.Snapshot().System.Content, "Initializing compiler...") {
		t.Fatalf("expected status routed to system stream")
	}
	ch.emit(schema.ReadyMessage())
	snap := session.Snapshot()
	if snap.System.Content != "✓ Compiler ready\n" {
		t.Fatalf("unexpected system stream after ready %q", snap.System.Content)
	}
	if snap.Status.Text != "Compiler ready" || snap.Status.Level != schema.StatusSuccess {
		t.Fatalf("unexpected status %+v", snap.Status)
	}

	if _, err := session.Compile(context.Background(), schema.CompileRequest{SourceCode: "x"}); err != nil {
		t.Fatalf("compile: %v", err)
	}
	ch.emit(schema.ReadyMessage())
	if session.State() != schema.StateBusy {
		t.Fatalf("duplicate ready changed state to %s", session.State())
	}
}

func TestAssemblyResultIsSeparateFromStreams(t *testing.T) {
	session, factory, _ := newReadySession(t)
	pending, err := session.CompileToAssembly(context.Background(), "int f(){return 1;}", schema.AssemblyOptions{})
	if err != nil {
		t.Fatalf("assembly: %v", err)
	}
	sent := factory.last().sentMessages()
	if len(sent) != 1 || sent[0].Type != schema.MsgCompileToAssembly || sent[0].Assembly == nil {
		t.Fatalf("unexpected control messages: %+v", sent)
	}
	if sent[0].Assembly.Triple != "x86_64" || sent[0].Assembly.Opt != "2" {
		t.Fatalf("unexpected defaults: %+v", sent[0].Assembly)
	}
	listing := "f:\n\tmovl\t$1, %eax\n\tretq\n"
	factory.last().emit(schema.AssemblyMessage([]byte(listing)))
	result, err := waitPending(t, pending)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.Mode != schema.ModeAssembly || !result.Success || result.Assembly != listing {
		t.Fatalf("unexpected result: %+v", result)
	}
	snap := session.Snapshot()
	if strings.Contains(snap.Program.Content, "movl") || strings.Contains(snap.System.Content, "movl") {
		t.Fatalf("assembly leaked into output streams")
	}
	if snap.State != schema.StateReady {
		t.Fatalf("expected ready, got %s", snap.State)
	}
}

func TestWorkerFaultIsTerminalUntilReset(t *testing.T) {
	session, factory, sink := newReadySession(t)
	ctx := context.Background()
	pending, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "x"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	factory.last().emit(schema.FaultMessage("toolchain crashed"))

	_, err = waitPending(t, pending)
	var fault *FaultError
	if !errors.As(err, &fault) || fault.Kind != FaultWorker {
		t.Fatalf("expected worker fault, got %v", err)
	}
	if session.State() != schema.StateFaulted {
		t.Fatalf("expected faulted, got %s", session.State())
	}
	if sink.lastStatus() != "Error" {
		t.Fatalf("unexpected status %q", sink.lastStatus())
	}
	if !strings.Contains(session.Snapshot().System.Content, "\n❌ toolchain crashed\n") {
		t.Fatalf("expected fault in system stream")
	}
	if _, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "x"}); !errors.Is(err, schema.ErrFaulted) {
		t.Fatalf("expected faulted rejection, got %v", err)
	}

	if err := session.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if session.State() != schema.StateInitializing || session.Generation() != 2 {
		t.Fatalf("unexpected state after reset: %s gen %d", session.State(), session.Generation())
	}
	factory.last().emit(schema.ReadyMessage())
	if session.State() != schema.StateReady {
		t.Fatalf("expected ready after reset, got %s", session.State())
	}
}

func TestChannelErrorFaultsSession(t *testing.T) {
	session, factory, _ := newReadySession(t)
	factory.last().fail(errors.New("stream broken"))
	if session.State() != schema.StateFaulted {
		t.Fatalf("expected faulted, got %s", session.State())
	}
	if !strings.Contains(session.Snapshot().System.Content, "\n❌ Worker error: stream broken\n") {
		t.Fatalf("expected worker error line, got %q", session.Snapshot().System.Content)
	}
}

func TestSendFailureFaultsSession(t *testing.T) {
	session, factory, _ := newReadySession(t)
	factory.last().sendErr = errors.New("pipe closed")
	_, err := session.Compile(context.Background(), schema.CompileRequest{SourceCode: "x"})
	var fault *FaultError
	if !errors.As(err, &fault) || fault.Kind != FaultChannel {
		t.Fatalf("expected channel fault, got %v", err)
	}
	if session.State() != schema.StateFaulted {
		t.Fatalf("expected faulted, got %s", session.State())
	}
}

func TestResetDiscardsStaleGeneration(t *testing.T) {
	session, factory, sink := newReadySession(t)
	ctx := context.Background()
	pending, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "x"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	old := factory.last()
	if err := session.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := waitPending(t, pending); !errors.Is(err, schema.ErrDiscarded) {
		t.Fatalf("expected discarded, got %v", err)
	}
	before := sink.resultCount()

	old.emitStale(schema.CompiledMessage(schema.CompiledData{Success: true}))
	old.emitStale(schema.ReadyMessage())
	old.fail(errors.New("late crash"))
	if session.State() != schema.StateInitializing {
		t.Fatalf("stale message changed state to %s", session.State())
	}
	if sink.resultCount() != before {
		t.Fatalf("stale message produced a result")
	}

	fresh := factory.last()
	stamped := schema.ReadyMessage()
	stamped.Generation = 1
	fresh.emit(stamped)
	if session.State() != schema.StateInitializing {
		t.Fatalf("message stamped with old generation changed state to %s", session.State())
	}
	fresh.emit(schema.ReadyMessage())
	if session.State() != schema.StateReady {
		t.Fatalf("expected ready, got %s", session.State())
	}
}

func TestTerminateRejectsEverything(t *testing.T) {
	session, factory, _ := newReadySession(t)
	ctx := context.Background()
	pending, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "x"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	session.Terminate()
	if _, err := waitPending(t, pending); !errors.Is(err, schema.ErrDiscarded) {
		t.Fatalf("expected discarded, got %v", err)
	}
	if !factory.last().terminated {
		t.Fatalf("expected channel terminated")
	}
	if session.State() != schema.StateTerminated {
		t.Fatalf("expected terminated, got %s", session.State())
	}
	if _, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "x"}); !errors.Is(err, schema.ErrTerminated) {
		t.Fatalf("expected terminated rejection, got %v", err)
	}
	if err := session.Reset(ctx); !errors.Is(err, schema.ErrTerminated) {
		t.Fatalf("expected reset rejection, got %v", err)
	}
	if factory.count() != 1 {
		t.Fatalf("terminate respawned a worker")
	}
}

func TestReadyTimeoutFaultsSession(t *testing.T) {
	session, _, _ := newTestSession(t, schema.SessionConfig{ReadyTimeout: 20 * time.Millisecond})
	deadline := time.Now().Add(2 * time.Second)
	for session.State() != schema.StateFaulted {
		if time.Now().After(deadline) {
			t.Fatalf("expected ready timeout fault, state %s", session.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !strings.Contains(session.Snapshot().System.Content, "did not report ready") {
		t.Fatalf("expected timeout notice in system stream")
	}
}

func TestInvalidRequestIsRejectedBeforeGate(t *testing.T) {
	session, factory, _ := newReadySession(t)
	_, err := session.Compile(context.Background(), schema.CompileRequest{SourceCode: "x", Filename: "../etc/passwd"})
	if !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if len(factory.last().sentMessages()) != 0 || session.State() != schema.StateReady {
		t.Fatalf("invalid request reached the worker")
	}
}
