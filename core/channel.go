package core

import (
	"context"

	"github.com/progcompcl/ide/schema"
)

// Channel is a bidirectional message link to one isolated worker.
//
// Messages are delivered in order with no duplication in each direction.
// Messages the worker produces before OnMessage is registered are held until
// a handler exists. Once Terminate returns no new handler invocation starts.
type Channel interface {
	Send(msg schema.ControlMessage) error
	OnMessage(handler func(schema.WorkerMessage))
	OnError(handler func(error))
	Terminate()
}

// ChannelFactory spawns a fresh worker for a generation.
type ChannelFactory interface {
	Create(ctx context.Context, gen schema.Generation) (Channel, error)
}

// ChannelFactoryFunc adapts a function to ChannelFactory.
type ChannelFactoryFunc func(ctx context.Context, gen schema.Generation) (Channel, error)

// Create implements ChannelFactory.
func (f ChannelFactoryFunc) Create(ctx context.Context, gen schema.Generation) (Channel, error) {
	return f(ctx, gen)
}
