package core

import (
	"errors"
	"testing"
)

func TestFaultErrorMessageAndUnwrap(t *testing.T) {
	base := errors.New("dial unix /run/ide.sock: connect: no such file")
	err := NewFaultError(FaultSpawn, "create", base)
	if err.Error() != base.Error() {
		t.Fatalf("expected wrapped message, got %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to find base error")
	}
	err.Message = "worker unavailable"
	if err.Error() != "worker unavailable" {
		t.Fatalf("expected explicit message, got %q", err.Error())
	}
	if got := (&FaultError{Op: "ready"}).Error(); got != "worker ready failed" {
		t.Fatalf("unexpected op message %q", got)
	}
	var nilErr *FaultError
	if nilErr.Error() != "worker fault" || nilErr.Unwrap() != nil {
		t.Fatalf("unexpected nil fault behavior")
	}
}
