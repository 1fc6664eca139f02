package core

import (
	"strings"

	"github.com/progcompcl/ide/schema"
)

// MarkerTableVersion identifies the marker set below. Bump it when a literal
// changes so stored transcripts can be re-classified consistently.
const MarkerTableVersion = 1

// MatchKind selects how a marker literal is compared to a trimmed line.
type MatchKind int

const (
	// MatchContains matches when the literal appears anywhere in the line.
	MatchContains MatchKind = iota
	// MatchPrefix matches when the line starts with the literal.
	MatchPrefix
	// MatchExact matches when the line equals the literal.
	MatchExact
)

// MarkerRule is one entry of the system marker table.
type MarkerRule struct {
	Kind    MatchKind
	Literal string
}

// Match reports whether the trimmed line satisfies the rule.
func (r MarkerRule) Match(line string) bool {
	switch r.Kind {
	case MatchPrefix:
		return strings.HasPrefix(line, r.Literal)
	case MatchExact:
		return line == r.Literal
	default:
		return strings.Contains(line, r.Literal)
	}
}

// systemMarkers is evaluated in order; the literals are byte-exact.
var systemMarkers = [...]MarkerRule{
	{MatchContains, "Compiling"},
	{MatchContains, "clang -cc1"},
	{MatchContains, "wasm-ld"},
	{MatchContains, "/wasm/"},
	{MatchContains, "Loading compiler"},
	{MatchContains, "Compiler ready"},
	{MatchContains, "Initializing"},
	{MatchContains, "Linking"},
	{MatchContains, "Running"},
	{MatchContains, "Program finished"},
	{MatchContains, "Compilation successful"},
	{MatchContains, "error:"},
	{MatchContains, "warning:"},
	{MatchContains, "✓"},
	{MatchContains, "done."},
	{MatchContains, "Fetching"},
}

// SystemMarkers returns a copy of the marker table.
func SystemMarkers() []MarkerRule {
	out := make([]MarkerRule, len(systemMarkers))
	copy(out, systemMarkers[:])
	return out
}

// Classify assigns a chunk to a stream. Diagnostic severities force the
// system stream; otherwise any trimmed line matching a marker does.
func Classify(text string, severity schema.Severity) schema.StreamKind {
	if severity.IsDiagnostic() {
		return schema.StreamSystem
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		for _, rule := range systemMarkers {
			if rule.Match(trimmed) {
				return schema.StreamSystem
			}
		}
	}
	return schema.StreamProgram
}
