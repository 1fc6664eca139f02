package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotReady indicates the worker has not reported ready yet.
	ErrNotReady = errors.New("compiler not ready")
	// ErrBusy indicates a compilation is already in flight.
	ErrBusy = errors.New("compilation in progress")
	// ErrFaulted indicates the worker faulted and the session needs a reset.
	ErrFaulted = errors.New("compiler faulted")
	// ErrTerminated indicates the session was terminated.
	ErrTerminated = errors.New("session terminated")
	// ErrDiscarded indicates the request was dropped by a reset or terminate.
	ErrDiscarded = errors.New("request discarded")
	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrChannelClosed indicates a send on a terminated channel.
	ErrChannelClosed = errors.New("channel closed")
)
