package core

import (
	"sync"

	"github.com/progcompcl/ide/schema"
)

// FocusTracker derives the displayed stream from router activity.
type FocusTracker struct {
	mu          sync.Mutex
	policy      schema.FocusPolicy
	focus       schema.StreamKind
	programSeen bool
	onChange    func(schema.StreamKind)
}

// NewFocusTracker constructs a tracker focused on the program stream.
// onChange, when set, is called whenever focus moves.
func NewFocusTracker(policy schema.FocusPolicy, onChange func(schema.StreamKind)) *FocusTracker {
	if policy == "" {
		policy = schema.FocusProgramWins
	}
	return &FocusTracker{
		policy:   policy,
		focus:    schema.StreamProgram,
		onChange: onChange,
	}
}

// Routed implements RouterObserver.
func (f *FocusTracker) Routed(result RouteResult) {
	if !result.Appended {
		return
	}
	f.mu.Lock()
	next := f.focus
	switch f.policy {
	case schema.FocusLastChunk:
		next = result.Stream
	default:
		if result.Stream == schema.StreamProgram {
			f.programSeen = true
			next = schema.StreamProgram
		} else if !f.programSeen {
			next = schema.StreamSystem
		}
	}
	changed := next != f.focus
	f.focus = next
	onChange := f.onChange
	f.mu.Unlock()
	if changed && onChange != nil {
		onChange(next)
	}
}

// Cleared implements RouterObserver.
func (f *FocusTracker) Cleared() {
	f.mu.Lock()
	changed := f.focus != schema.StreamProgram
	f.focus = schema.StreamProgram
	f.programSeen = false
	onChange := f.onChange
	f.mu.Unlock()
	if changed && onChange != nil {
		onChange(schema.StreamProgram)
	}
}

// Focus returns the stream that should be displayed.
func (f *FocusTracker) Focus() schema.StreamKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.focus
}
