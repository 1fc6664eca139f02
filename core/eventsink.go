package core

import "github.com/progcompcl/ide/schema"

// EventSink receives session events. Implementations must not block and must
// not call back into the session that emitted the event.
type EventSink interface {
	OnStatus(event schema.StatusEvent)
	OnOutput(event schema.OutputEvent)
	OnClear(event schema.ClearEvent)
	OnFocus(event schema.FocusEvent)
	OnAnnotations(event schema.AnnotationEvent)
	OnState(event schema.StateEvent)
	OnResult(event schema.ResultEvent)
}

type nopSink struct{}

func (nopSink) OnStatus(schema.StatusEvent) {}
func (nopSink) OnOutput(schema.OutputEvent) {}
func (nopSink) OnClear(schema.ClearEvent) {}
func (nopSink) OnFocus(schema.FocusEvent) {}
func (nopSink) OnAnnotations(schema.AnnotationEvent) {}
func (nopSink) OnState(schema.StateEvent) {}
func (nopSink) OnResult(schema.ResultEvent) {}
