package toolchain

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"pkt.systems/pslog"
)

//go:embed include/bits/stdc++.h
var stdcppHeader []byte

const (
	defaultCXX        = "clang++"
	defaultRunTimeout = 10 * time.Second
	scanBufferSize    = 1024 * 1024
)

var (
	triplePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	validOptLevel = map[string]bool{"0": true, "1": true, "2": true, "3": true, "s": true, "z": true, "g": true}
)

// Config controls how the clang toolchain is invoked.
type Config struct {
	CXX        string
	WorkDir    string
	Flags      []string
	RunTimeout time.Duration
	WaitDelay  time.Duration
}

// Clang compiles with a host clang++ and runs the result as a child process.
type Clang struct {
	cfg Config

	mu         sync.Mutex
	cxxPath    string
	includeDir string
}

// NewClang constructs a clang toolchain. Prepare must run before use.
func NewClang(cfg Config) *Clang {
	if cfg.CXX == "" {
		cfg.CXX = defaultCXX
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = time.Second
	}
	return &Clang{cfg: cfg}
}

// Prepare resolves the compiler and installs the compatibility headers.
func (c *Clang) Prepare(ctx context.Context, emit Emitter) error {
	log := pslog.Ctx(ctx)
	cxx, err := exec.LookPath(c.cfg.CXX)
	if err != nil {
		return errors.Wrapf(err, "failed to find compiler %q", c.cfg.CXX)
	}
	base := c.cfg.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return errors.Wrap(err, "failed to make work dir")
	}
	includeDir := filepath.Join(base, "include")
	if err := os.MkdirAll(filepath.Join(includeDir, "bits"), 0o755); err != nil {
		return errors.Wrap(err, "failed to make include dir")
	}
	if err := os.WriteFile(filepath.Join(includeDir, "bits", "stdc++.h"), stdcppHeader, 0o644); err != nil {
		return errors.Wrap(err, "failed to install bits/stdc++.h")
	}

	out, err := exec.CommandContext(ctx, cxx, "--version").Output()
	if err != nil {
		return errors.Wrap(err, "failed to query compiler version")
	}
	version := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if emit != nil && version != "" {
		emit("Loading compiler... " + version)
	}
	log.Info("toolchain ready", "cxx", cxx, "include_dir", includeDir, "version", version)

	c.mu.Lock()
	c.cxxPath = cxx
	c.includeDir = includeDir
	c.mu.Unlock()
	return nil
}

// CompileAndRun builds the program, streaming compiler output, then runs it
// with the request stdin.
func (c *Clang) CompileAndRun(ctx context.Context, req RunRequest, emit Emitter) (RunResult, error) {
	cxx, includeDir, err := c.prepared()
	if err != nil {
		return RunResult{}, err
	}
	log := pslog.Ctx(ctx)
	dir, err := os.MkdirTemp(c.cfg.WorkDir, "build-")
	if err != nil {
		return RunResult{}, errors.Wrap(err, "failed to make build dir")
	}
	defer os.RemoveAll(dir)

	filename := filepath.Base(req.Filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = "main.cpp"
	}
	src := filepath.Join(dir, filename)
	if err := os.WriteFile(src, []byte(req.Code), 0o644); err != nil {
		return RunResult{}, errors.Wrap(err, "failed to write source file")
	}
	bin := filepath.Join(dir, "a.out")

	args := append([]string{"-I", includeDir}, c.cfg.Flags...)
	args = append(args, "-o", bin, src)
	started := time.Now()
	cmd := exec.CommandContext(ctx, cxx, args...)
	cmd.Dir = dir
	code, err := c.stream(cmd, nil, emit)
	if err != nil {
		return RunResult{}, errors.Wrap(err, "failed to run compiler")
	}
	log.Debug("toolchain compile done", "exit_code", code, "duration_ms", time.Since(started).Milliseconds())
	if code != 0 {
		return RunResult{Success: false, ExitCode: code, Error: fmt.Sprintf("compilation failed with exit code %d", code)}, nil
	}

	if emit != nil {
		emit("Running...")
	}
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()
	run := exec.CommandContext(runCtx, bin)
	run.Dir = dir
	started = time.Now()
	code, err = c.stream(run, strings.NewReader(req.Stdin), emit)
	if err != nil {
		return RunResult{}, errors.Wrap(err, "failed to run program")
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		log.Warn("toolchain program timed out", "timeout", c.cfg.RunTimeout.String())
		if emit != nil {
			emit(fmt.Sprintf("Program stopped after %s", c.cfg.RunTimeout))
		}
		return RunResult{Success: true, StillRunning: true, ExitCode: code}, nil
	}
	log.Debug("toolchain program done", "exit_code", code, "duration_ms", time.Since(started).Milliseconds())
	if emit != nil {
		emit(fmt.Sprintf("Program finished with exit code %d", code))
	}
	if code != 0 {
		return RunResult{Success: false, ExitCode: code, Error: fmt.Sprintf("program exited with code %d", code)}, nil
	}
	return RunResult{Success: true}, nil
}

// CompileToAssembly returns the listing for the request triple and level.
func (c *Clang) CompileToAssembly(ctx context.Context, req AssemblyRequest, emit Emitter) ([]byte, error) {
	cxx, includeDir, err := c.prepared()
	if err != nil {
		return nil, err
	}
	triple := req.Triple
	if triple == "" {
		triple = "x86_64"
	}
	if !triplePattern.MatchString(triple) {
		return nil, newCompileError("invalid target triple %q", triple)
	}
	opt := strings.TrimPrefix(req.Opt, "O")
	if opt == "" {
		opt = "2"
	}
	if !validOptLevel[opt] {
		return nil, newCompileError("invalid optimization level %q", req.Opt)
	}

	args := append([]string{"-I", includeDir}, c.cfg.Flags...)
	args = append(args, "-S", "-O"+opt, "--target="+triple, "-x", "c++", "-o", "-", "-")
	cmd := exec.CommandContext(ctx, cxx, args...)
	cmd.Stdin = strings.NewReader(req.Code)
	var listing bytes.Buffer
	cmd.Stdout = &listing
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open compiler stderr")
	}
	configureProcess(cmd, c.cfg.WaitDelay)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start compiler")
	}
	var output strings.Builder
	pump(stderr, func(text string) {
		output.WriteString(text)
		output.WriteByte('\n')
		if emit != nil {
			emit(text)
		}
	})
	code, err := exitCode(cmd.Wait())
	if err != nil {
		return nil, errors.Wrap(err, "failed to wait for compiler")
	}
	if code != 0 {
		return nil, &CompileError{Msg: fmt.Sprintf("compilation failed with exit code %d", code), Output: output.String()}
	}
	return listing.Bytes(), nil
}

func (c *Clang) prepared() (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cxxPath == "" {
		return "", "", errors.New("toolchain not prepared")
	}
	return c.cxxPath, c.includeDir, nil
}

// stream runs cmd with stdout and stderr merged line by line into emit.
// A non-zero exit is reported as a code, not an error.
func (c *Clang) stream(cmd *exec.Cmd, stdin io.Reader, emit Emitter) (int, error) {
	if stdin != nil {
		cmd.Stdin = stdin
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	configureProcess(cmd, c.cfg.WaitDelay)
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return 0, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		pump(pr, func(text string) {
			if emit != nil {
				emit(text)
			}
		})
	}()
	waitErr := cmd.Wait()
	_ = pw.Close()
	<-done
	return exitCode(waitErr)
}

func pump(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	// Drain so the child never blocks on a full pipe after an overlong line.
	_, _ = io.Copy(io.Discard, r)
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		return 128 + signalNumber(exitErr), nil
	}
	return 0, err
}
