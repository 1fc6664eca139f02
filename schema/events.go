package schema

// StatusEvent reports the session status line.
type StatusEvent struct {
	SessionID  SessionID   `json:"session_id"`
	Generation Generation  `json:"generation"`
	Text       string      `json:"text"`
	Level      StatusLevel `json:"level"`
}

// OutputEvent reports text appended to one stream. Text includes an overflow
// notice when Terminated is set.
type OutputEvent struct {
	SessionID  SessionID  `json:"session_id"`
	Stream     StreamKind `json:"stream"`
	Text       string     `json:"text"`
	Terminated bool       `json:"terminated,omitempty"`
}

// ClearEvent reports both streams were emptied.
type ClearEvent struct {
	SessionID SessionID `json:"session_id"`
}

// FocusEvent reports the stream that should be shown.
type FocusEvent struct {
	SessionID SessionID  `json:"session_id"`
	Stream    StreamKind `json:"stream"`
}

// AnnotationEvent carries the full annotation set of the current compile.
type AnnotationEvent struct {
	SessionID   SessionID    `json:"session_id"`
	Annotations []Annotation `json:"annotations"`
}

// StateEvent reports a session state transition.
type StateEvent struct {
	SessionID  SessionID    `json:"session_id"`
	Generation Generation   `json:"generation"`
	State      SessionState `json:"state"`
	Previous   SessionState `json:"previous"`
}

// ResultEvent reports the terminal result of an accepted request.
type ResultEvent struct {
	SessionID SessionID     `json:"session_id"`
	Result    CompileResult `json:"result"`
}
