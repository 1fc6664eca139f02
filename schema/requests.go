package schema

import "strings"

// CompileMode selects what the worker produces.
type CompileMode string

const (
	// ModeRun compiles, links, and runs the program.
	ModeRun CompileMode = "run"
	// ModeAssembly compiles to an instruction listing.
	ModeAssembly CompileMode = "toAssembly"
)

const (
	// DefaultFilename is used when a request names no file.
	DefaultFilename = "main.cpp"
	// DefaultTargetTriple is the default assembly target.
	DefaultTargetTriple = "x86_64"
	// DefaultOptimizationLevel is the default assembly optimization level.
	DefaultOptimizationLevel = "2"
)

// AssemblyOptions controls assembly output.
type AssemblyOptions struct {
	TargetTriple      string `json:"triple,omitempty"`
	OptimizationLevel string `json:"opt,omitempty"`
}

// CompileRequest is one submission to the session. It is not modified after submit.
type CompileRequest struct {
	SourceCode string           `json:"code"`
	Filename   string           `json:"filename,omitempty"`
	Stdin      string           `json:"stdin,omitempty"`
	Mode       CompileMode      `json:"mode,omitempty"`
	Options    *AssemblyOptions `json:"options,omitempty"`
}

// NormalizeCompileRequest applies defaults and validates the request.
func NormalizeCompileRequest(req CompileRequest) (CompileRequest, error) {
	if req.Mode == "" {
		req.Mode = ModeRun
	}
	switch req.Mode {
	case ModeRun, ModeAssembly:
	default:
		return CompileRequest{}, ErrInvalidRequest
	}
	req.Filename = strings.TrimSpace(req.Filename)
	if req.Filename == "" {
		req.Filename = DefaultFilename
	}
	if strings.ContainsAny(req.Filename, "/\\") {
		return CompileRequest{}, ErrInvalidRequest
	}
	if req.Mode == ModeAssembly {
		opts := AssemblyOptions{}
		if req.Options != nil {
			opts = *req.Options
		}
		opts.TargetTriple = strings.TrimSpace(opts.TargetTriple)
		if opts.TargetTriple == "" {
			opts.TargetTriple = DefaultTargetTriple
		}
		opts.OptimizationLevel = strings.TrimSpace(opts.OptimizationLevel)
		if opts.OptimizationLevel == "" {
			opts.OptimizationLevel = DefaultOptimizationLevel
		}
		req.Options = &opts
	} else {
		req.Options = nil
	}
	return req, nil
}

// CompileResult is the terminal outcome of one accepted request.
type CompileResult struct {
	Mode         CompileMode `json:"mode"`
	Generation   Generation  `json:"generation"`
	Success      bool        `json:"success"`
	StillRunning bool        `json:"still_running,omitempty"`
	Error        string      `json:"error,omitempty"`
	Assembly     string      `json:"assembly,omitempty"`
}
