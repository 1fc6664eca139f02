package core

import "fmt"

// FaultKind classifies worker failures.
type FaultKind string

const (
	// FaultWorker is a fault message reported by the worker.
	FaultWorker FaultKind = "worker"
	// FaultChannel is a transport failure of the channel.
	FaultChannel FaultKind = "channel"
	// FaultTimeout indicates the worker did not report ready in time.
	FaultTimeout FaultKind = "timeout"
	// FaultSpawn indicates the channel could not be created.
	FaultSpawn FaultKind = "spawn"
)

// FaultError wraps worker failures with a stable classification.
type FaultError struct {
	Kind    FaultKind
	Op      string
	Message string
	Err     error
}

// NewFaultError constructs a classified fault.
func NewFaultError(kind FaultKind, op string, err error) *FaultError {
	return &FaultError{Kind: kind, Op: op, Err: err}
}

func (e *FaultError) Error() string {
	if e == nil {
		return "worker fault"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("worker %s failed", e.Op)
	}
	return "worker fault"
}

func (e *FaultError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
