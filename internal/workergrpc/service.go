package workergrpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/progcompcl/ide/schema"
)

const (
	// ServiceName is the fully qualified worker service name.
	ServiceName = "ide.worker.v1.Worker"
	// GenerationKey is the metadata key carrying the session generation.
	GenerationKey = "x-worker-generation"

	connectMethod = "/" + ServiceName + "/Connect"
)

// connectServer is implemented by Server; the descriptor dispatches to it.
type connectServer interface {
	Connect(stream grpc.ServerStream) error
}

var connectStreamDesc = grpc.StreamDesc{
	StreamName:    "Connect",
	Handler:       connectHandler,
	ServerStreams: true,
	ClientStreams: true,
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*connectServer)(nil),
	Streams:     []grpc.StreamDesc{connectStreamDesc},
	Metadata:    "ide/worker/v1",
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(connectServer).Connect(stream)
}

func generationFromContext(ctx context.Context) schema.Generation {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0
	}
	values := md.Get(GenerationKey)
	if len(values) == 0 {
		return 0
	}
	gen, err := strconv.ParseUint(values[0], 10, 64)
	if err != nil {
		return 0
	}
	return schema.Generation(gen)
}

func withGeneration(ctx context.Context, gen schema.Generation) context.Context {
	return metadata.AppendToOutgoingContext(ctx, GenerationKey, strconv.FormatUint(uint64(gen), 10))
}
