// Package diag extracts compiler diagnostics from raw output text.
package diag

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/progcompcl/ide/schema"
)

var (
	ansiPattern       = regexp.MustCompile("\x1b\\[[0-9;]*m")
	diagnosticPattern = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(error|warning):\s*(.+)$`)
)

// StripANSI removes SGR escape sequences. Newlines are never touched.
func StripANSI(text string) string {
	if !strings.Contains(text, "\x1b[") {
		return text
	}
	return ansiPattern.ReplaceAllString(text, "")
}

// Parse matches FILE:LINE:COLUMN: SEVERITY: MESSAGE on a single line.
func Parse(line string) (schema.Diagnostic, bool) {
	line = strings.TrimRight(StripANSI(line), "\r")
	match := diagnosticPattern.FindStringSubmatch(line)
	if match == nil {
		return schema.Diagnostic{}, false
	}
	lineNum, err := strconv.Atoi(match[2])
	if err != nil || lineNum < 1 {
		return schema.Diagnostic{}, false
	}
	column, err := strconv.Atoi(match[3])
	if err != nil {
		return schema.Diagnostic{}, false
	}
	severity := schema.SeverityWarning
	if match[4] == "error" {
		severity = schema.SeverityError
	}
	return schema.Diagnostic{
		File:     match[1],
		Line:     lineNum,
		Column:   column,
		Severity: severity,
		Message:  match[5],
	}, true
}

// ParseChunk returns the diagnostics of every line in text, in order.
func ParseChunk(text string) []schema.Diagnostic {
	var out []schema.Diagnostic
	for _, line := range strings.Split(StripANSI(text), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if d, ok := Parse(line); ok {
			out = append(out, d)
		}
	}
	return out
}

// Strongest returns error if any diagnostic is an error, warning if any is a
// warning, and no severity otherwise.
func Strongest(diags []schema.Diagnostic) schema.Severity {
	severity := schema.SeverityNone
	for _, d := range diags {
		switch d.Severity {
		case schema.SeverityError:
			return schema.SeverityError
		case schema.SeverityWarning:
			severity = schema.SeverityWarning
		}
	}
	return severity
}
