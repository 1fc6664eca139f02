package schema

// MessageType tags a message crossing the worker channel.
type MessageType string

const (
	// MsgCompile asks the worker to compile, link, and run.
	MsgCompile MessageType = "compile"
	// MsgCompileToAssembly asks the worker for an instruction listing.
	MsgCompileToAssembly MessageType = "compileToAssembly"

	// MsgStatus carries a worker status line.
	MsgStatus MessageType = "status"
	// MsgReady reports the worker finished initializing.
	MsgReady MessageType = "ready"
	// MsgOutput carries raw compiler or program text.
	MsgOutput MessageType = "output"
	// MsgCompiled terminates a compile request.
	MsgCompiled MessageType = "compiled"
	// MsgAssembly terminates an assembly request.
	MsgAssembly MessageType = "assembly"
	// MsgError reports a fatal worker fault.
	MsgError MessageType = "error"
)

// CompileData is the payload of a compile control message.
type CompileData struct {
	Code     string `msgpack:"code" json:"code"`
	Filename string `msgpack:"filename" json:"filename"`
	Stdin    string `msgpack:"stdin" json:"stdin"`
}

// AssemblyData is the payload of a compileToAssembly control message.
type AssemblyData struct {
	Code   string `msgpack:"code" json:"code"`
	Triple string `msgpack:"triple" json:"triple"`
	Opt    string `msgpack:"opt" json:"opt"`
}

// ControlMessage travels from the controller to the worker.
type ControlMessage struct {
	Type     MessageType
	Compile  *CompileData
	Assembly *AssemblyData
}

// CompiledData is the payload of a compiled message.
type CompiledData struct {
	Success      bool   `msgpack:"success" json:"success"`
	StillRunning bool   `msgpack:"stillRunning,omitempty" json:"stillRunning,omitempty"`
	Error        string `msgpack:"error,omitempty" json:"error,omitempty"`
}

// WorkerMessage travels from the worker to the controller.
// Text holds the payload of status, output, and error messages.
type WorkerMessage struct {
	Type       MessageType
	Generation Generation
	Text       string
	Compiled   *CompiledData
	Assembly   []byte
}

// IsTerminal reports whether the message ends an in-flight request.
func (m WorkerMessage) IsTerminal() bool {
	switch m.Type {
	case MsgCompiled, MsgAssembly, MsgError:
		return true
	default:
		return false
	}
}

// StatusMessage builds a status message.
func StatusMessage(text string) WorkerMessage {
	return WorkerMessage{Type: MsgStatus, Text: text}
}

// OutputMessage builds an output message.
func OutputMessage(text string) WorkerMessage {
	return WorkerMessage{Type: MsgOutput, Text: text}
}

// ReadyMessage builds a ready message.
func ReadyMessage() WorkerMessage {
	return WorkerMessage{Type: MsgReady}
}

// FaultMessage builds an error message.
func FaultMessage(text string) WorkerMessage {
	return WorkerMessage{Type: MsgError, Text: text}
}

// CompiledMessage builds a compiled message.
func CompiledMessage(data CompiledData) WorkerMessage {
	return WorkerMessage{Type: MsgCompiled, Compiled: &data}
}

// AssemblyMessage builds an assembly message.
func AssemblyMessage(listing []byte) WorkerMessage {
	return WorkerMessage{Type: MsgAssembly, Assembly: listing}
}
