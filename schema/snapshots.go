package schema

// StreamSnapshot is a read-only copy of one stream buffer.
type StreamSnapshot struct {
	Stream     StreamKind `json:"stream"`
	Content    string     `json:"content"`
	LineCount  int        `json:"line_count"`
	Terminated bool       `json:"terminated"`
	MaxLines   int        `json:"max_lines"`
}

// SessionSnapshot is a read-only view of a session for transports.
type SessionSnapshot struct {
	ID                SessionID      `json:"id"`
	State             SessionState   `json:"state"`
	Generation        Generation     `json:"generation"`
	Status            StatusEvent    `json:"status"`
	Program           StreamSnapshot `json:"program"`
	System            StreamSnapshot `json:"system"`
	Focus             StreamKind     `json:"focus"`
	HasSystemMessages bool           `json:"has_system_messages"`
	Annotations       []Annotation   `json:"annotations"`
	LastResult        *CompileResult `json:"last_result,omitempty"`
}
