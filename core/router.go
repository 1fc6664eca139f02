package core

import (
	"sync"

	"github.com/progcompcl/ide/schema"
)

// RouteResult describes what one routed chunk did.
type RouteResult struct {
	Stream schema.StreamKind
	// Text is the content appended, including any overflow notice.
	Text     string
	Appended bool
	// Terminated is set only on the append that froze the buffer.
	Terminated bool
	// First is set when the stream was empty since the last clear.
	First bool
}

// RouterObserver is notified after every append and every clear.
type RouterObserver interface {
	Routed(result RouteResult)
	Cleared()
}

// Router classifies chunks into the program and system streams.
// It is safe for concurrent use.
type Router struct {
	mu                sync.Mutex
	program           *streamBuffer
	system            *streamBuffer
	hasSystemMessages bool
	observers         []RouterObserver
}

// NewRouter constructs a router whose buffers hold at most maxLines lines.
func NewRouter(maxLines int, observers ...RouterObserver) *Router {
	return &Router{
		program:   newStreamBuffer(schema.StreamProgram, maxLines),
		system:    newStreamBuffer(schema.StreamSystem, maxLines),
		observers: observers,
	}
}

// Route classifies the chunk once and appends it to exactly one stream.
func (r *Router) Route(text string, severity schema.Severity) RouteResult {
	stream := Classify(text, severity)
	r.mu.Lock()
	buf := r.program
	if stream == schema.StreamSystem {
		buf = r.system
	}
	res := buf.Append(text)
	if res.Appended && stream == schema.StreamSystem {
		r.hasSystemMessages = true
	}
	observers := r.observers
	r.mu.Unlock()

	result := RouteResult{
		Stream:     stream,
		Text:       res.Text,
		Appended:   res.Appended,
		Terminated: res.Terminated,
		First:      res.First,
	}
	if result.Appended {
		for _, obs := range observers {
			obs.Routed(result)
		}
	}
	return result
}

// Clear resets both buffers and the system message flag.
func (r *Router) Clear() {
	r.mu.Lock()
	r.program.Reset()
	r.system.Reset()
	r.hasSystemMessages = false
	observers := r.observers
	r.mu.Unlock()
	for _, obs := range observers {
		obs.Cleared()
	}
}

// HasSystemMessages reports whether the system stream received content since the last clear.
func (r *Router) HasSystemMessages() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasSystemMessages
}

// Program returns a snapshot of the program stream.
func (r *Router) Program() schema.StreamSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.program.Snapshot()
}

// System returns a snapshot of the system stream.
func (r *Router) System() schema.StreamSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.system.Snapshot()
}
