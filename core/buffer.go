package core

import (
	"strings"

	"github.com/progcompcl/ide/schema"
)

const defaultMaxLines = schema.DefaultMaxLines

// streamBuffer stores the text of one output stream.
// Once terminated it ignores every append until reset.
type streamBuffer struct {
	kind       schema.StreamKind
	content    strings.Builder
	lineCount  int
	terminated bool
	maxLines   int
}

// appendResult describes the effect of one append.
type appendResult struct {
	Text       string
	Appended   bool
	Terminated bool
	First      bool
}

// Append adds a chunk followed by a newline. The append that pushes the line
// count past maxLines is kept, followed by the overflow notice, and freezes
// the buffer.
func (b *streamBuffer) Append(text string) appendResult {
	if b.terminated {
		return appendResult{}
	}
	first := b.content.Len() == 0
	b.lineCount += strings.Count(text, "\n") + 1
	appended := text + "\n"
	if b.lineCount > b.limit() {
		b.terminated = true
		appended += b.overflowNotice()
	}
	b.content.WriteString(appended)
	return appendResult{
		Text:       appended,
		Appended:   true,
		Terminated: b.terminated,
		First:      first,
	}
}

// Reset empties the buffer and clears termination.
func (b *streamBuffer) Reset() {
	b.content.Reset()
	b.lineCount = 0
	b.terminated = false
}

// Snapshot returns a copy of the buffer state.
func (b *streamBuffer) Snapshot() schema.StreamSnapshot {
	return schema.StreamSnapshot{
		Stream:     b.kind,
		Content:    b.content.String(),
		LineCount:  b.lineCount,
		Terminated: b.terminated,
		MaxLines:   b.limit(),
	}
}

func (b *streamBuffer) limit() int {
	if b.maxLines <= 0 {
		return defaultMaxLines
	}
	return b.maxLines
}

func (b *streamBuffer) overflowNotice() string {
	if b.kind == schema.StreamSystem {
		return schema.SystemOverflowNotice(b.limit())
	}
	return schema.ProgramOverflowNotice(b.limit())
}

func newStreamBuffer(kind schema.StreamKind, maxLines int) *streamBuffer {
	buf := &streamBuffer{kind: kind, maxLines: defaultMaxLines}
	if maxLines > 0 {
		buf.maxLines = maxLines
	}
	return buf
}
