package diag

import (
	"strings"
	"testing"

	"github.com/progcompcl/ide/schema"
)

func TestParseMapsRow(t *testing.T) {
	d, ok := Parse("main.cpp:12:5: error: expected ';'")
	if !ok {
		t.Fatalf("expected diagnostic")
	}
	if d.File != "main.cpp" || d.Row() != 11 || d.Column != 5 {
		t.Fatalf("unexpected position: %+v", d)
	}
	if d.Severity != schema.SeverityError {
		t.Fatalf("expected error severity, got %q", d.Severity)
	}
	if d.Message != "expected ';'" {
		t.Fatalf("unexpected message %q", d.Message)
	}
	a := d.Annotation()
	if a.Row != 11 || a.Column != 5 || a.Text != "expected ';'" || a.Type != schema.SeverityError {
		t.Fatalf("unexpected annotation: %+v", a)
	}
}

func TestParseKeepsEmbeddedColons(t *testing.T) {
	d, ok := Parse("src/a.cc:3:1: warning: unused variable 'x': consider removing: now")
	if !ok {
		t.Fatalf("expected diagnostic")
	}
	if d.Severity != schema.SeverityWarning {
		t.Fatalf("expected warning, got %q", d.Severity)
	}
	if d.Message != "unused variable 'x': consider removing: now" {
		t.Fatalf("unexpected message %q", d.Message)
	}
}

func TestParseStripsANSI(t *testing.T) {
	line := "\x1b[1mmain.cpp:4:10: \x1b[0m\x1b[0;1;31merror: \x1b[0m\x1b[1mno member named 'foo'\x1b[0m"
	d, ok := Parse(line)
	if !ok {
		t.Fatalf("expected diagnostic from colored line")
	}
	if d.Line != 4 || d.Column != 10 || d.Message != "no member named 'foo'" {
		t.Fatalf("unexpected diagnostic: %+v", d)
	}
}

func TestParseRejectsNonDiagnostics(t *testing.T) {
	lines := []string{
		"",
		"Hello, World!",
		"main.cpp:0:1: error: line zero",
		"main.cpp:1:1: note: candidate",
		"main.cpp:x:1: error: bad line",
		"1 error generated.",
	}
	for _, line := range lines {
		if d, ok := Parse(line); ok {
			t.Fatalf("expected no match for %q, got %+v", line, d)
		}
	}
}

func TestStripANSIPreservesLines(t *testing.T) {
	in := "\x1b[31mred\x1b[0m\nplain\n\x1b[1;32mgreen\x1b[0m\n"
	out := StripANSI(in)
	if out != "red\nplain\ngreen\n" {
		t.Fatalf("unexpected strip result %q", out)
	}
	if strings.Count(out, "\n") != strings.Count(in, "\n") {
		t.Fatalf("line count changed")
	}
}

func TestParseChunkAndStrongest(t *testing.T) {
	chunk := "main.cpp:2:3: warning: implicit conversion\nIn file included from x.h:1:\nmain.cpp:7:1: error: expected '}'\n"
	diags := ParseChunk(chunk)
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(diags))
	}
	if diags[0].Line != 2 || diags[1].Line != 7 {
		t.Fatalf("unexpected order: %+v", diags)
	}
	if got := Strongest(diags); got != schema.SeverityError {
		t.Fatalf("expected error, got %q", got)
	}
	if got := Strongest(diags[:1]); got != schema.SeverityWarning {
		t.Fatalf("expected warning, got %q", got)
	}
	if got := Strongest(nil); got != schema.SeverityNone {
		t.Fatalf("expected none, got %q", got)
	}
}
