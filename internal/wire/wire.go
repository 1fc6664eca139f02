// Package wire encodes messages exchanged between a session and its worker.
//
// Every message is a msgpack map {type, gen, data}; data is itself a msgpack
// document whose shape depends on type.
package wire

import (
	"github.com/pkg/errors"
	"github.com/progcompcl/ide/schema"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformed indicates a frame whose payload does not fit its type.
var ErrMalformed = errors.New("malformed frame")

// Frame is the envelope shared by both directions.
type Frame struct {
	Type schema.MessageType `msgpack:"type"`
	Gen  uint64             `msgpack:"gen,omitempty"`
	Data msgpack.RawMessage `msgpack:"data,omitempty"`
}

// Marshal encodes a frame.
func Marshal(f Frame) ([]byte, error) {
	dat, err := msgpack.Marshal(&f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode frame")
	}
	return dat, nil
}

// Unmarshal decodes a frame.
func Unmarshal(dat []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(dat, &f); err != nil {
		return Frame{}, errors.Wrap(err, "failed to decode frame")
	}
	if f.Type == "" {
		return Frame{}, errors.Wrap(ErrMalformed, "missing type")
	}
	return f, nil
}

// ControlFrame wraps a controller message.
func ControlFrame(msg schema.ControlMessage) (Frame, error) {
	f := Frame{Type: msg.Type}
	var payload any
	switch msg.Type {
	case schema.MsgCompile:
		if msg.Compile == nil {
			return Frame{}, errors.Wrap(ErrMalformed, "compile without payload")
		}
		payload = msg.Compile
	case schema.MsgCompileToAssembly:
		if msg.Assembly == nil {
			return Frame{}, errors.Wrap(ErrMalformed, "compileToAssembly without payload")
		}
		payload = msg.Assembly
	}
	if err := f.setData(payload); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Control unwraps a controller message. Unknown types decode to a message
// carrying only the type so the receiver can reject them explicitly.
func (f Frame) Control() (schema.ControlMessage, error) {
	msg := schema.ControlMessage{Type: f.Type}
	switch f.Type {
	case schema.MsgCompile:
		var data schema.CompileData
		if err := f.getData(&data); err != nil {
			return schema.ControlMessage{}, err
		}
		msg.Compile = &data
	case schema.MsgCompileToAssembly:
		var data schema.AssemblyData
		if err := f.getData(&data); err != nil {
			return schema.ControlMessage{}, err
		}
		msg.Assembly = &data
	}
	return msg, nil
}

// WorkerFrame wraps a worker message.
func WorkerFrame(msg schema.WorkerMessage) (Frame, error) {
	f := Frame{Type: msg.Type, Gen: uint64(msg.Generation)}
	var payload any
	switch msg.Type {
	case schema.MsgStatus, schema.MsgOutput, schema.MsgError:
		payload = msg.Text
	case schema.MsgCompiled:
		data := schema.CompiledData{}
		if msg.Compiled != nil {
			data = *msg.Compiled
		}
		payload = &data
	case schema.MsgAssembly:
		payload = msg.Assembly
		if msg.Assembly == nil {
			payload = []byte{}
		}
	}
	if err := f.setData(payload); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Worker unwraps a worker message.
func (f Frame) Worker() (schema.WorkerMessage, error) {
	msg := schema.WorkerMessage{Type: f.Type, Generation: schema.Generation(f.Gen)}
	switch f.Type {
	case schema.MsgStatus, schema.MsgOutput, schema.MsgError:
		if err := f.getData(&msg.Text); err != nil {
			return schema.WorkerMessage{}, err
		}
	case schema.MsgCompiled:
		var data schema.CompiledData
		if err := f.getData(&data); err != nil {
			return schema.WorkerMessage{}, err
		}
		msg.Compiled = &data
	case schema.MsgAssembly:
		if err := f.getData(&msg.Assembly); err != nil {
			return schema.WorkerMessage{}, err
		}
	}
	return msg, nil
}

// EncodeControl serializes a controller message.
func EncodeControl(msg schema.ControlMessage) ([]byte, error) {
	f, err := ControlFrame(msg)
	if err != nil {
		return nil, err
	}
	return Marshal(f)
}

// DecodeControl parses a controller message.
func DecodeControl(dat []byte) (schema.ControlMessage, error) {
	f, err := Unmarshal(dat)
	if err != nil {
		return schema.ControlMessage{}, err
	}
	return f.Control()
}

// EncodeWorker serializes a worker message.
func EncodeWorker(msg schema.WorkerMessage) ([]byte, error) {
	f, err := WorkerFrame(msg)
	if err != nil {
		return nil, err
	}
	return Marshal(f)
}

// DecodeWorker parses a worker message.
func DecodeWorker(dat []byte) (schema.WorkerMessage, error) {
	f, err := Unmarshal(dat)
	if err != nil {
		return schema.WorkerMessage{}, err
	}
	return f.Worker()
}

func (f *Frame) setData(payload any) error {
	if payload == nil {
		f.Data = nil
		return nil
	}
	dat, err := msgpack.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s payload", f.Type)
	}
	f.Data = dat
	return nil
}

func (f Frame) getData(v any) error {
	if len(f.Data) == 0 {
		return errors.Wrapf(ErrMalformed, "%s without payload", f.Type)
	}
	if err := msgpack.Unmarshal(f.Data, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s payload", f.Type)
	}
	return nil
}
