package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/progcompcl/ide/schema"
)

type fakeChannel struct {
	gen        schema.Generation
	mu         sync.Mutex
	sent       []schema.ControlMessage
	onMsg      func(schema.WorkerMessage)
	onErr      func(error)
	terminated bool
	sendErr    error
}

func (c *fakeChannel) Send(msg schema.ControlMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return schema.ErrChannelClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) OnMessage(handler func(schema.WorkerMessage)) {
	c.mu.Lock()
	c.onMsg = handler
	c.mu.Unlock()
}

func (c *fakeChannel) OnError(handler func(error)) {
	c.mu.Lock()
	c.onErr = handler
	c.mu.Unlock()
}

func (c *fakeChannel) Terminate() {
	c.mu.Lock()
	c.terminated = true
	c.mu.Unlock()
}

// emit delivers like a live channel: nothing after Terminate.
func (c *fakeChannel) emit(msg schema.WorkerMessage) {
	c.mu.Lock()
	handler := c.onMsg
	terminated := c.terminated
	c.mu.Unlock()
	if handler == nil || terminated {
		return
	}
	handler(msg)
}

// emitStale delivers even after Terminate, as a racing transport would.
func (c *fakeChannel) emitStale(msg schema.WorkerMessage) {
	c.mu.Lock()
	handler := c.onMsg
	c.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (c *fakeChannel) fail(err error) {
	c.mu.Lock()
	handler := c.onErr
	c.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (c *fakeChannel) sentMessages() []schema.ControlMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.ControlMessage(nil), c.sent...)
}

type fakeFactory struct {
	mu       sync.Mutex
	channels []*fakeChannel
	err      error
}

func (f *fakeFactory) Create(_ context.Context, gen schema.Generation) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ch := &fakeChannel{gen: gen}
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeFactory) last() *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.channels) == 0 {
		return nil
	}
	return f.channels[len(f.channels)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

type recordingSink struct {
	mu          sync.Mutex
	statuses    []schema.StatusEvent
	outputs     []schema.OutputEvent
	clears      int
	focus       []schema.StreamKind
	annotations []schema.AnnotationEvent
	states      []schema.StateEvent
	results     []schema.ResultEvent
}

func (s *recordingSink) OnStatus(event schema.StatusEvent) {
	s.mu.Lock()
	s.statuses = append(s.statuses, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnOutput(event schema.OutputEvent) {
	s.mu.Lock()
	s.outputs = append(s.outputs, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnClear(schema.ClearEvent) {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
}

func (s *recordingSink) OnFocus(event schema.FocusEvent) {
	s.mu.Lock()
	s.focus = append(s.focus, event.Stream)
	s.mu.Unlock()
}

func (s *recordingSink) OnAnnotations(event schema.AnnotationEvent) {
	s.mu.Lock()
	s.annotations = append(s.annotations, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnState(event schema.StateEvent) {
	s.mu.Lock()
	s.states = append(s.states, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnResult(event schema.ResultEvent) {
	s.mu.Lock()
	s.results = append(s.results, event)
	s.mu.Unlock()
}

func (s *recordingSink) lastStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1].Text
}

func (s *recordingSink) resultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func newTestSession(t *testing.T, cfg schema.SessionConfig) (*Session, *fakeFactory, *recordingSink) {
	t.Helper()
	factory := &fakeFactory{}
	sink := &recordingSink{}
	session, err := NewSession(context.Background(), SessionOptions{
		ID:      "s1",
		Config:  cfg,
		Factory: factory,
		Sink:    sink,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session, factory, sink
}

func newReadySession(t *testing.T) (*Session, *fakeFactory, *recordingSink) {
	t.Helper()
	session, factory, sink := newTestSession(t, schema.SessionConfig{})
	factory.last().emit(schema.ReadyMessage())
	if state := session.State(); state != schema.StateReady {
		t.Fatalf("expected ready, got %s", state)
	}
	return session, factory, sink
}

func waitPending(t *testing.T, pending *Pending) (schema.CompileResult, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := pending.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("pending did not resolve")
	}
	return result, err
}
