package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/progcompcl/ide/internal/diag"
	"github.com/progcompcl/ide/internal/logx"
	"github.com/progcompcl/ide/schema"
	"pkt.systems/pslog"
)

const (
	statusLoading        = "Loading C++ compiler..."
	statusReady          = "Compiler ready"
	statusNotReady       = "Compiler not ready"
	statusBusy           = "Compilation in progress..."
	statusCompiling      = "Compiling..."
	statusSucceeded      = "Compilation successful!"
	statusFailed         = "Compilation failed"
	statusFault          = "Error"
	statusWorkerError    = "Worker error"
	statusReadyTimeout   = "Compiler start timed out"
	statusTerminated     = "Session terminated"
	lineLoading          = "Loading compiler..."
	lineReady            = "✓ Compiler ready"
	lineAssemblyStarting = "Compiling to assembly..."
)

// SessionOptions configures a Session.
type SessionOptions struct {
	ID      schema.SessionID
	Config  schema.SessionConfig
	Factory ChannelFactory
	Sink    EventSink
	Logger  pslog.Logger
}

// Session owns one worker channel and guards it with the compile state machine.
// At most one request is in flight; messages from replaced workers are dropped.
type Session struct {
	id      schema.SessionID
	cfg     schema.SessionConfig
	factory ChannelFactory
	sink    EventSink
	logger  pslog.Logger

	mu          sync.Mutex
	state       schema.SessionState
	gen         schema.Generation
	channel     Channel
	pending     *Pending
	router      *Router
	focus       *FocusTracker
	status      schema.StatusEvent
	annotations []schema.Annotation
	lastResult  *schema.CompileResult
	readyTimer  *time.Timer
	lastActive  time.Time
}

// NewSession constructs a session and spawns its first worker.
func NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	if opts.Factory == nil {
		return nil, errors.New("missing channel factory")
	}
	cfg, err := schema.NormalizeSessionConfig(opts.Config)
	if err != nil {
		return nil, err
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	if opts.ID != "" {
		logger = logger.With("session", opts.ID)
	}
	s := &Session{
		id:         opts.ID,
		cfg:        cfg,
		factory:    opts.Factory,
		sink:       sink,
		logger:     logger,
		state:      schema.StateUninitialized,
		lastActive: time.Now(),
	}
	s.focus = NewFocusTracker(cfg.FocusPolicy, s.emitFocus)
	s.router = NewRouter(cfg.MaxLines, routerEvents{s}, s.focus)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.spawnLocked(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() schema.SessionID {
	return s.id
}

// State returns the current state.
func (s *Session) State() schema.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the generation of the current worker.
func (s *Session) Generation() schema.Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// LastActive returns the time of the last accepted call or terminal message.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Compile submits a request. A nil error means the request was accepted and
// the returned Pending resolves with its terminal result.
func (s *Session) Compile(ctx context.Context, req schema.CompileRequest) (*Pending, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	normalized, err := schema.NormalizeCompileRequest(req)
	if err != nil {
		return nil, err
	}
	req = normalized

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gateLocked(); err != nil {
		s.logger.Warn("session compile rejected", "mode", string(req.Mode), "state", s.state.String(), "err", err)
		return nil, err
	}

	msg := schema.ControlMessage{Type: schema.MsgCompile}
	banner := fmt.Sprintf("Compiling %s...", req.Filename)
	if req.Mode == schema.ModeAssembly {
		msg = schema.ControlMessage{
			Type: schema.MsgCompileToAssembly,
			Assembly: &schema.AssemblyData{
				Code:   req.SourceCode,
				Triple: req.Options.TargetTriple,
				Opt:    req.Options.OptimizationLevel,
			},
		}
		banner = lineAssemblyStarting
	} else {
		msg.Compile = &schema.CompileData{
			Code:     req.SourceCode,
			Filename: req.Filename,
			Stdin:    req.Stdin,
		}
	}

	s.router.Clear()
	s.annotations = nil
	s.sink.OnAnnotations(schema.AnnotationEvent{SessionID: s.id, Annotations: []schema.Annotation{}})
	pending := newPending(req.Mode, s.gen)
	s.pending = pending
	s.lastActive = time.Now()
	s.setStateLocked(schema.StateBusy)
	s.setStatusLocked(statusCompiling, schema.StatusWarning)
	s.router.Route(banner, schema.SeverityNone)

	if err := s.channel.Send(msg); err != nil {
		fault := NewFaultError(FaultChannel, "send", err)
		s.faultLocked(fault, statusWorkerError, fmt.Sprintf("\n❌ Worker error: %s\n", err.Error()))
		return nil, fault
	}
	s.logger.Info("session compile accepted", "mode", string(req.Mode), "filename", req.Filename, "generation", uint64(s.gen))
	return pending, nil
}

// CompileToAssembly submits an assembly request with the given options.
func (s *Session) CompileToAssembly(ctx context.Context, code string, opts schema.AssemblyOptions) (*Pending, error) {
	return s.Compile(ctx, schema.CompileRequest{
		SourceCode: code,
		Mode:       schema.ModeAssembly,
		Options:    &opts,
	})
}

// Reset replaces the worker, discarding any in-flight request. Buffered
// output is kept until the new worker reports ready.
func (s *Session) Reset(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == schema.StateTerminated {
		return schema.ErrTerminated
	}
	s.logger.Info("session reset", "state", s.state.String(), "generation", uint64(s.gen))
	s.teardownLocked()
	return s.spawnLocked(ctx)
}

// Terminate ends the worker permanently. Every later call is rejected.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == schema.StateTerminated {
		return
	}
	s.logger.Info("session terminate", "generation", uint64(s.gen))
	s.teardownLocked()
	s.setStateLocked(schema.StateTerminated)
	s.setStatusLocked(statusTerminated, schema.StatusInfo)
}

// Snapshot returns a read-only copy of the session view.
func (s *Session) Snapshot() schema.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := schema.SessionSnapshot{
		ID:                s.id,
		State:             s.state,
		Generation:        s.gen,
		Status:            s.status,
		Program:           s.router.Program(),
		System:            s.router.System(),
		Focus:             s.focus.Focus(),
		HasSystemMessages: s.router.HasSystemMessages(),
		Annotations:       append([]schema.Annotation{}, s.annotations...),
	}
	if s.lastResult != nil {
		result := *s.lastResult
		snap.LastResult = &result
	}
	return snap
}

func (s *Session) gateLocked() error {
	switch s.state {
	case schema.StateReady:
		return nil
	case schema.StateBusy:
		s.setStatusLocked(statusBusy, schema.StatusWarning)
		return schema.ErrBusy
	case schema.StateFaulted:
		return schema.ErrFaulted
	case schema.StateTerminated:
		return schema.ErrTerminated
	default:
		s.setStatusLocked(statusNotReady, schema.StatusWarning)
		return schema.ErrNotReady
	}
}

func (s *Session) spawnLocked(ctx context.Context) error {
	s.gen++
	gen := s.gen
	s.setStatusLocked(statusLoading, schema.StatusWarning)
	s.router.Route(lineLoading, schema.SeverityNone)

	workerLog := s.logger.With("generation", uint64(gen))
	channel, err := s.factory.Create(logx.ContextWithWorkerLogger(logx.ContextWithSession(ctx, s.id), workerLog, gen), gen)
	if err != nil {
		fault := NewFaultError(FaultSpawn, "create", err)
		s.logger.Error("session worker spawn failed", "generation", uint64(gen), "err", err)
		s.faultLocked(fault, statusWorkerError, fmt.Sprintf("\n❌ Worker error: %s\n", err.Error()))
		return fault
	}
	s.channel = channel
	s.setStateLocked(schema.StateInitializing)
	if s.cfg.ReadyTimeout > 0 {
		s.readyTimer = time.AfterFunc(s.cfg.ReadyTimeout, func() {
			s.handleReadyTimeout(gen)
		})
	}
	channel.OnError(func(err error) {
		s.handleChannelError(gen, err)
	})
	channel.OnMessage(func(msg schema.WorkerMessage) {
		s.handleMessage(gen, msg)
	})
	s.logger.Debug("session worker spawned", "generation", uint64(gen))
	return nil
}

func (s *Session) teardownLocked() {
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	if s.channel != nil {
		s.channel.Terminate()
		s.channel = nil
	}
	if s.pending != nil {
		s.pending.resolve(schema.CompileResult{}, schema.ErrDiscarded)
		s.pending = nil
	}
}

func (s *Session) handleMessage(gen schema.Generation, msg schema.WorkerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || (msg.Generation != 0 && msg.Generation != s.gen) {
		s.logger.Trace("session message discarded", "type", string(msg.Type), "generation", uint64(gen), "current", uint64(s.gen))
		return
	}
	if s.state == schema.StateTerminated || s.state == schema.StateFaulted {
		s.logger.Trace("session message ignored", "type", string(msg.Type), "state", s.state.String())
		return
	}
	s.logger.Trace("session message", "type", string(msg.Type))
	switch msg.Type {
	case schema.MsgStatus:
		s.setStatusLocked(msg.Text, schema.StatusWarning)
		s.router.Route(msg.Text, schema.SeverityNone)
	case schema.MsgReady:
		s.handleReadyLocked()
	case schema.MsgOutput:
		s.handleOutputLocked(msg.Text)
	case schema.MsgCompiled:
		data := schema.CompiledData{}
		if msg.Compiled != nil {
			data = *msg.Compiled
		}
		s.handleCompiledLocked(data)
	case schema.MsgAssembly:
		s.handleAssemblyLocked(msg.Assembly)
	case schema.MsgError:
		fault := &FaultError{Kind: FaultWorker, Op: "worker", Message: msg.Text}
		s.faultLocked(fault, statusFault, fmt.Sprintf("\n❌ %s\n", msg.Text))
	default:
		s.logger.Debug("session message unknown", "type", string(msg.Type))
	}
}

func (s *Session) handleReadyLocked() {
	if s.state != schema.StateInitializing {
		s.logger.Trace("session duplicate ready ignored", "state", s.state.String())
		return
	}
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	s.setStatusLocked(statusReady, schema.StatusSuccess)
	s.router.Clear()
	s.router.Route(lineReady, schema.SeverityNone)
	s.setStateLocked(schema.StateReady)
	s.logger.Info("session ready", "generation", uint64(s.gen))
}

func (s *Session) handleOutputLocked(text string) {
	clean := diag.StripANSI(text)
	diags := diag.ParseChunk(clean)
	s.router.Route(clean, diag.Strongest(diags))
	if len(diags) == 0 {
		return
	}
	for _, d := range diags {
		s.annotations = append(s.annotations, d.Annotation())
	}
	s.sink.OnAnnotations(schema.AnnotationEvent{
		SessionID:   s.id,
		Annotations: append([]schema.Annotation{}, s.annotations...),
	})
}

func (s *Session) handleCompiledLocked(data schema.CompiledData) {
	if s.state != schema.StateBusy {
		s.logger.Debug("session compiled without request", "state", s.state.String())
		return
	}
	mode := schema.ModeRun
	if s.pending != nil {
		mode = s.pending.Mode
	}
	result := schema.CompileResult{
		Mode:         mode,
		Generation:   s.gen,
		Success:      data.Success,
		StillRunning: data.StillRunning,
		Error:        data.Error,
	}
	if data.Success {
		s.setStatusLocked(statusSucceeded, schema.StatusSuccess)
	} else {
		s.setStatusLocked(statusFailed, schema.StatusError)
		s.router.Route(fmt.Sprintf("\n❌ Error: %s\n", data.Error), schema.SeverityError)
	}
	s.finishLocked(result)
}

func (s *Session) handleAssemblyLocked(listing []byte) {
	if s.state != schema.StateBusy {
		s.logger.Debug("session assembly without request", "state", s.state.String())
		return
	}
	s.setStatusLocked(statusSucceeded, schema.StatusSuccess)
	s.finishLocked(schema.CompileResult{
		Mode:       schema.ModeAssembly,
		Generation: s.gen,
		Success:    true,
		Assembly:   strings.ToValidUTF8(string(listing), "\uFFFD"),
	})
}

func (s *Session) finishLocked(result schema.CompileResult) {
	s.setStateLocked(schema.StateReady)
	s.lastActive = time.Now()
	s.lastResult = &result
	s.sink.OnResult(schema.ResultEvent{SessionID: s.id, Result: result})
	if s.pending != nil {
		s.pending.resolve(result, nil)
		s.pending = nil
	}
	s.logger.Info("session compile finished", "mode", string(result.Mode), "success", result.Success)
}

func (s *Session) handleChannelError(gen schema.Generation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state == schema.StateTerminated || s.state == schema.StateFaulted {
		s.logger.Trace("session channel error discarded", "generation", uint64(gen), "err", err)
		return
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	fault := NewFaultError(FaultChannel, "channel", err)
	s.faultLocked(fault, statusWorkerError, fmt.Sprintf("\n❌ Worker error: %s\n", msg))
}

func (s *Session) handleReadyTimeout(gen schema.Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != schema.StateInitializing {
		return
	}
	s.readyTimer = nil
	fault := &FaultError{
		Kind:    FaultTimeout,
		Op:      "ready",
		Message: fmt.Sprintf("compiler did not report ready within %s", s.cfg.ReadyTimeout),
	}
	s.faultLocked(fault, statusReadyTimeout, fmt.Sprintf("\n❌ %s\n", fault.Error()))
}

// faultLocked moves the session to Faulted and fails the in-flight request.
// The worker is left in place until Reset or Terminate.
func (s *Session) faultLocked(fault *FaultError, status, line string) {
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
	s.logger.Error("session fault", "kind", string(fault.Kind), "op", fault.Op, "err", fault)
	s.setStatusLocked(status, schema.StatusError)
	s.router.Route(line, schema.SeverityError)
	s.setStateLocked(schema.StateFaulted)
	if s.pending != nil {
		s.pending.resolve(schema.CompileResult{}, fault)
		s.pending = nil
	}
}

func (s *Session) setStateLocked(next schema.SessionState) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.logger.Debug("session state", "from", prev.String(), "to", next.String())
	s.sink.OnState(schema.StateEvent{
		SessionID:  s.id,
		Generation: s.gen,
		State:      next,
		Previous:   prev,
	})
}

func (s *Session) setStatusLocked(text string, level schema.StatusLevel) {
	s.status = schema.StatusEvent{
		SessionID:  s.id,
		Generation: s.gen,
		Text:       text,
		Level:      level,
	}
	s.sink.OnStatus(s.status)
}

func (s *Session) emitFocus(stream schema.StreamKind) {
	s.sink.OnFocus(schema.FocusEvent{SessionID: s.id, Stream: stream})
}

// routerEvents forwards router activity to the session sink.
type routerEvents struct {
	s *Session
}

func (r routerEvents) Routed(result RouteResult) {
	r.s.sink.OnOutput(schema.OutputEvent{
		SessionID:  r.s.id,
		Stream:     result.Stream,
		Text:       result.Text,
		Terminated: result.Terminated,
	})
}

func (r routerEvents) Cleared() {
	r.s.sink.OnClear(schema.ClearEvent{SessionID: r.s.id})
}

// Pending is the future of one accepted request.
type Pending struct {
	Mode       schema.CompileMode
	Generation schema.Generation

	once   sync.Once
	done   chan struct{}
	result schema.CompileResult
	err    error
}

func newPending(mode schema.CompileMode, gen schema.Generation) *Pending {
	return &Pending{Mode: mode, Generation: gen, done: make(chan struct{})}
}

// Done is closed once the request has a terminal outcome.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the request resolves or ctx ends. A reset or terminate
// resolves it with schema.ErrDiscarded; a worker fault with *FaultError.
func (p *Pending) Wait(ctx context.Context) (schema.CompileResult, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return schema.CompileResult{}, ctx.Err()
	}
}

func (p *Pending) resolve(result schema.CompileResult, err error) {
	p.once.Do(func() {
		p.result = result
		p.err = err
		close(p.done)
	})
}
