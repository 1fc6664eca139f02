package ide

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/progcompcl/ide/httpapi"
	"github.com/progcompcl/ide/internal/toolchain"
	"github.com/progcompcl/ide/internal/workergrpc"
	"github.com/progcompcl/ide/schema"
)

func fakeToolchain() toolchain.Toolchain { return &toolchain.Fake{} }

func TestNewRequiresService(t *testing.T) {
	if _, err := New(ServerConfig{}, ServerDeps{NewToolchain: fakeToolchain}); err == nil {
		t.Fatalf("expected error without enabled services")
	}
	if _, err := New(ServerConfig{}, ServerDeps{}, WithHTTP()); err == nil {
		t.Fatalf("expected error without toolchain")
	}
	if _, err := New(ServerConfig{WorkerMode: "carrier-pigeon"}, ServerDeps{NewToolchain: fakeToolchain}, WithHTTP()); err == nil {
		t.Fatalf("expected error for unknown worker mode")
	}
}

func TestServerStopClosesSessions(t *testing.T) {
	srv, err := New(ServerConfig{HTTP: httpapi.Config{Addr: "127.0.0.1:0"}}, ServerDeps{NewToolchain: fakeToolchain}, WithHTTP())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	session, err := srv.(*compositeServer).registry.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if session.State() != schema.StateTerminated {
		t.Fatalf("expected session terminated on stop, got %s", session.State())
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestServerCompilesThroughEmbeddedDaemon(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "worker.sock")
	cfg := ServerConfig{
		HTTP:       httpapi.Config{Addr: "127.0.0.1:0"},
		WorkerMode: WorkerModeGRPC,
		Worker:     workergrpc.Config{Network: "unix", Address: sock},
	}
	srv, err := New(cfg, ServerDeps{NewToolchain: fakeToolchain}, WithHTTP(), WithWorker())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = srv.Stop(stopCtx)
	}()

	client := srv.(*compositeServer).client
	deadline := time.Now().Add(3 * time.Second)
	for {
		checkCtx, checkCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		err := client.Check(checkCtx)
		checkCancel()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker daemon never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	session, err := srv.(*compositeServer).registry.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for session.State() != schema.StateReady {
		if time.Now().After(deadline) {
			t.Fatalf("expected ready, got %s", session.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	pending, err := session.Compile(ctx, schema.CompileRequest{SourceCode: "int main(){return 0;}"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
	defer waitCancel()
	result, err := pending.Wait(waitCtx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
}
