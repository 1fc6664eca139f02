package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/progcompcl/ide/internal/appconfig"
	"github.com/progcompcl/ide/schema"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"serve", "worker", "compile", "config", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestConfigInitWritesOnce(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "cfg", "config.yaml")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "-c", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Fatalf("expected written path in output, got %q", out.String())
	}
	if _, err := appconfig.Load(path); err != nil {
		t.Fatalf("load written config: %v", err)
	}

	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "-c", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected second init to fail without --force")
	}
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "-c", path, "--force"})
	if err := root.Execute(); err != nil {
		t.Fatalf("forced init: %v", err)
	}
}

func writeSource(t *testing.T, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.cpp")
	if err := os.WriteFile(path, []byte(code), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestCompileDryRun(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	src := writeSource(t, "int main(){return 0;}")
	stdin := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(stdin, []byte("hello there\n"), 0o600); err != nil {
		t.Fatalf("write stdin: %v", err)
	}

	var out, errOut bytes.Buffer
	err := runCompile(context.Background(), &out, &errOut, src, compileFlags{stdinFile: stdin, dryRun: true})
	if err != nil {
		t.Fatalf("compile: %v (stderr %q)", err, errOut.String())
	}
	if !strings.Contains(out.String(), "hello there") {
		t.Fatalf("expected program output on stdout, got %q", out.String())
	}
	if strings.Contains(out.String(), "Program finished") {
		t.Fatalf("system line leaked to stdout: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "Compiling prog.cpp") {
		t.Fatalf("expected compile banner on stderr, got %q", errOut.String())
	}
}

func TestCompileDryRunFailure(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	src := writeSource(t, "#error boom\nint main(){}")

	var out, errOut bytes.Buffer
	err := runCompile(context.Background(), &out, &errOut, src, compileFlags{dryRun: true})
	var coded *exitCodeError
	if !errors.As(err, &coded) || coded.code != exitCompileFailed {
		t.Fatalf("expected compile failure exit code, got %v", err)
	}
	if !strings.Contains(errOut.String(), "line 1, column 2: error") {
		t.Fatalf("expected annotation on stderr, got %q", errOut.String())
	}
}

func TestCompileDryRunAssembly(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	src := writeSource(t, "int main(){return 0;}")

	var out, errOut bytes.Buffer
	err := runCompile(context.Background(), &out, &errOut, src, compileFlags{assembly: true, triple: "aarch64", opt: "1", dryRun: true})
	if err != nil {
		t.Fatalf("assembly: %v", err)
	}
	if !strings.Contains(out.String(), "; target aarch64 -O1") {
		t.Fatalf("expected listing on stdout, got %q", out.String())
	}
}

func TestCompileMissingFile(t *testing.T) {
	var out, errOut bytes.Buffer
	err := runCompile(context.Background(), &out, &errOut, filepath.Join(t.TempDir(), "nope.cpp"), compileFlags{dryRun: true})
	if err == nil || !strings.Contains(err.Error(), "read source") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestVersionJSON(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), `"module"`) || !strings.Contains(out.String(), `"version"`) {
		t.Fatalf("expected build info json, got %q", out.String())
	}
}

func TestArgv0Worker(t *testing.T) {
	got := withArgv0Command([]string{"/usr/local/bin/ide-worker", "--address", "x.sock"})
	want := []string{"/usr/local/bin/ide-worker", "worker", "--address", "x.sock"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("withArgv0Command = %v, want %v", got, want)
	}
	plain := []string{"ide", "serve"}
	if got := withArgv0Command(plain); strings.Join(got, " ") != "ide serve" {
		t.Fatalf("expected args untouched, got %v", got)
	}
}

func TestExitCode(t *testing.T) {
	ctx := context.Background()
	if got := exitCode(ctx, nil); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := exitCode(ctx, errors.New("boom")); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	wrapped := fmt.Errorf("run: %w", &exitCodeError{code: exitCompileFailed, err: errors.New("bad")})
	if got := exitCode(ctx, wrapped); got != exitCompileFailed {
		t.Fatalf("expected %d, got %d", exitCompileFailed, got)
	}
}

func TestConsoleSinkPrintsEachAnnotationOnce(t *testing.T) {
	var out, errOut bytes.Buffer
	sink := newConsoleSink(&out, &errOut)
	first := schema.Annotation{Row: 0, Column: 5, Text: "missing ';'", Type: schema.SeverityError}
	second := schema.Annotation{Row: 3, Column: 1, Text: "unused variable", Type: schema.SeverityWarning}

	sink.OnAnnotations(schema.AnnotationEvent{Annotations: []schema.Annotation{first}})
	sink.OnAnnotations(schema.AnnotationEvent{Annotations: []schema.Annotation{first, second}})
	if got := strings.Count(errOut.String(), "missing ';'"); got != 1 {
		t.Fatalf("expected first annotation printed once, got %d in %q", got, errOut.String())
	}
	if !strings.Contains(errOut.String(), "line 4, column 1: warning: unused variable") {
		t.Fatalf("expected second annotation, got %q", errOut.String())
	}

	sink.OnClear(schema.ClearEvent{})
	errOut.Reset()
	sink.OnAnnotations(schema.AnnotationEvent{Annotations: []schema.Annotation{first}})
	if got := strings.Count(errOut.String(), "missing ';'"); got != 1 {
		t.Fatalf("expected annotation printed again after clear, got %d", got)
	}

	sink.OnAnnotations(schema.AnnotationEvent{})
	errOut.Reset()
	sink.OnAnnotations(schema.AnnotationEvent{Annotations: []schema.Annotation{second}})
	if !strings.Contains(errOut.String(), "unused variable") {
		t.Fatalf("expected printing to restart after an empty set, got %q", errOut.String())
	}
}
