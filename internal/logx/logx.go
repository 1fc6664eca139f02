package logx

import (
	"context"

	"github.com/progcompcl/ide/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	generationKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithGeneration annotates the logger with the worker generation unless the
// context logger already carries it.
func WithGeneration(ctx context.Context, gen schema.Generation) pslog.Logger {
	log := pslog.Ctx(ctx)
	if gen == 0 {
		return log
	}
	if current, ok := ctx.Value(generationKey).(schema.Generation); ok && current == gen {
		return log
	}
	return log.With("generation", uint64(gen))
}

// WithRequest annotates the logger with compile request metadata.
func WithRequest(log pslog.Logger, req schema.CompileRequest) pslog.Logger {
	if req.Mode != "" {
		log = log.With("mode", string(req.Mode))
	}
	if req.Filename != "" {
		log = log.With("filename", req.Filename)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// ContextWithWorkerLogger attaches a logger that already carries the
// generation field and marks the context so WithGeneration does not repeat it.
func ContextWithWorkerLogger(ctx context.Context, log pslog.Logger, gen schema.Generation) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	if gen == 0 {
		return ctx
	}
	return context.WithValue(ctx, generationKey, gen)
}
