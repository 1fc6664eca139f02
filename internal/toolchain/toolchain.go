// Package toolchain compiles and runs C++ sources for a worker.
package toolchain

import (
	"context"
	"fmt"
)

// Emitter receives compiler and program output as it is produced.
type Emitter func(text string)

// RunRequest is one compile, link, and run cycle.
type RunRequest struct {
	Code     string
	Filename string
	Stdin    string
}

// RunResult reports how a run ended. Success is false when the program
// failed to build or exited non-zero.
type RunResult struct {
	Success      bool
	StillRunning bool
	ExitCode     int
	Error        string
}

// AssemblyRequest asks for an instruction listing.
type AssemblyRequest struct {
	Code   string
	Triple string
	Opt    string
}

// Toolchain is the compiler black box behind a worker. Errors returned from
// its methods are infrastructure failures; a user program that does not
// compile is reported through RunResult or *CompileError.
type Toolchain interface {
	Prepare(ctx context.Context, emit Emitter) error
	CompileAndRun(ctx context.Context, req RunRequest, emit Emitter) (RunResult, error)
	CompileToAssembly(ctx context.Context, req AssemblyRequest, emit Emitter) ([]byte, error)
}

// CompileError reports user code that the compiler rejected.
type CompileError struct {
	Msg    string
	Output string
}

func (e *CompileError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "compilation failed"
}

func newCompileError(format string, args ...any) *CompileError {
	return &CompileError{Msg: fmt.Sprintf(format, args...)}
}
