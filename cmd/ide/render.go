package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/progcompcl/ide/schema"
)

// consoleSink writes session output straight to the terminal. Program output
// goes to out; compiler and session messages go to errOut.
type consoleSink struct {
	out    io.Writer
	errOut io.Writer

	mu       sync.Mutex
	settled  chan schema.SessionState
	notified bool
	// printed counts annotations already written for the current compile.
	printed int
}

func newConsoleSink(out, errOut io.Writer) *consoleSink {
	return &consoleSink{
		out:     out,
		errOut:  errOut,
		settled: make(chan schema.SessionState, 1),
	}
}

// Settled delivers the first state the worker reaches after start: ready,
// faulted or terminated.
func (c *consoleSink) Settled() <-chan schema.SessionState {
	return c.settled
}

func (c *consoleSink) OnStatus(schema.StatusEvent) {}

func (c *consoleSink) OnOutput(event schema.OutputEvent) {
	w := c.errOut
	if event.Stream == schema.StreamProgram {
		w = c.out
	}
	_, _ = io.WriteString(w, event.Text)
}

func (c *consoleSink) OnClear(schema.ClearEvent) {
	c.mu.Lock()
	c.printed = 0
	c.mu.Unlock()
}

func (c *consoleSink) OnFocus(schema.FocusEvent) {}

// OnAnnotations receives the cumulative set and prints only the new tail.
func (c *consoleSink) OnAnnotations(event schema.AnnotationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(event.Annotations) < c.printed {
		c.printed = 0
	}
	fresh := event.Annotations[c.printed:]
	c.printed = len(event.Annotations)
	for _, a := range fresh {
		_, _ = fmt.Fprintf(c.errOut, "  line %d, column %d: %s: %s\n", a.Row+1, a.Column, a.Type, a.Text)
	}
}

func (c *consoleSink) OnState(event schema.StateEvent) {
	switch event.State {
	case schema.StateReady, schema.StateFaulted, schema.StateTerminated:
	default:
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notified {
		return
	}
	c.notified = true
	c.settled <- event.State
}

func (c *consoleSink) OnResult(schema.ResultEvent) {}
