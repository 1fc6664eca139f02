package schema

import "fmt"

// SessionID identifies a compiler session.
type SessionID string

// Generation identifies one worker instance within a session. It increases on every reset.
type Generation uint64

// StreamKind names one of the two output streams of a session.
type StreamKind string

const (
	// StreamProgram carries output written by the compiled program.
	StreamProgram StreamKind = "program"
	// StreamSystem carries compiler, linker, and session messages.
	StreamSystem StreamKind = "system"
)

// Severity tags a diagnostic or an output chunk.
type Severity string

const (
	// SeverityNone marks untagged output.
	SeverityNone Severity = ""
	// SeverityError marks an error.
	SeverityError Severity = "error"
	// SeverityWarning marks a warning.
	SeverityWarning Severity = "warning"
)

// IsDiagnostic reports whether the severity forces system classification.
func (s Severity) IsDiagnostic() bool {
	return s == SeverityError || s == SeverityWarning
}

// StatusLevel is the display level of a status line.
type StatusLevel string

const (
	// StatusInfo is a neutral status.
	StatusInfo StatusLevel = "info"
	// StatusWarning is a transient or cautionary status.
	StatusWarning StatusLevel = "warning"
	// StatusSuccess reports a successful step.
	StatusSuccess StatusLevel = "success"
	// StatusError reports a failure.
	StatusError StatusLevel = "error"
)

// SessionState is the lifecycle state of a compiler session.
type SessionState int

const (
	// StateUninitialized is the state before a worker exists.
	StateUninitialized SessionState = iota
	// StateInitializing waits for the worker to report ready.
	StateInitializing
	// StateReady accepts one compile request.
	StateReady
	// StateBusy has one compile request in flight.
	StateBusy
	// StateFaulted refuses requests until reset.
	StateFaulted
	// StateTerminated refuses requests permanently.
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateFaulted:
		return "faulted"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name for JSON transports.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *SessionState) UnmarshalText(text []byte) error {
	name := string(text)
	for state := StateUninitialized; state <= StateTerminated; state++ {
		if state.String() == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", name)
}

// Diagnostic is a compiler error or warning bound to a source position.
// Line is 1-based; Column is passed through as reported.
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Row returns the zero-based row used by editors.
func (d Diagnostic) Row() int {
	return d.Line - 1
}

// Annotation projects the diagnostic for the editor.
func (d Diagnostic) Annotation() Annotation {
	return Annotation{
		Row:    d.Row(),
		Column: d.Column,
		Text:   d.Message,
		Type:   d.Severity,
	}
}

// Annotation is an inline editor marker.
type Annotation struct {
	Row    int      `json:"row"`
	Column int      `json:"column"`
	Text   string   `json:"text"`
	Type   Severity `json:"type"`
}
