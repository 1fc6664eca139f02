package toolchain

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is a scriptable Toolchain for tests and dry runs. Without hooks it
// echoes stdin as program output, reports sources containing "#error" as
// compile failures, and returns the source as the assembly listing.
type Fake struct {
	PrepareErr error
	RunFunc    func(ctx context.Context, req RunRequest, emit Emitter) (RunResult, error)
	AsmFunc    func(ctx context.Context, req AssemblyRequest, emit Emitter) ([]byte, error)

	mu    sync.Mutex
	calls []string
}

// Prepare implements Toolchain.
func (f *Fake) Prepare(ctx context.Context, emit Emitter) error {
	f.record("prepare")
	return f.PrepareErr
}

// CompileAndRun implements Toolchain.
func (f *Fake) CompileAndRun(ctx context.Context, req RunRequest, emit Emitter) (RunResult, error) {
	f.record("run")
	if f.RunFunc != nil {
		return f.RunFunc(ctx, req, emit)
	}
	if strings.Contains(req.Code, "#error") {
		emit(fmt.Sprintf("%s:1:2: error: #error directive", req.Filename))
		emit("1 error generated.")
		return RunResult{Success: false, ExitCode: 1, Error: "compilation failed with exit code 1"}, nil
	}
	if req.Stdin != "" {
		emit(strings.TrimSuffix(req.Stdin, "\n"))
	}
	emit("Program finished with exit code 0")
	return RunResult{Success: true}, nil
}

// CompileToAssembly implements Toolchain.
func (f *Fake) CompileToAssembly(ctx context.Context, req AssemblyRequest, emit Emitter) ([]byte, error) {
	f.record("assembly")
	if f.AsmFunc != nil {
		return f.AsmFunc(ctx, req, emit)
	}
	if strings.Contains(req.Code, "#error") {
		return nil, &CompileError{Msg: "compilation failed with exit code 1"}
	}
	return []byte(fmt.Sprintf("; target %s -O%s\n%s", req.Triple, req.Opt, req.Code)), nil
}

// Calls returns the recorded method names in call order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}
