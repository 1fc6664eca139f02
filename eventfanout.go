package ide

import (
	"github.com/progcompcl/ide/core"
	"github.com/progcompcl/ide/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func newEventFanout(sinks ...core.EventSink) core.EventSink {
	kept := make([]core.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return eventFanout{sinks: kept}
}

func (f eventFanout) OnStatus(event schema.StatusEvent) {
	for _, sink := range f.sinks {
		sink.OnStatus(event)
	}
}

func (f eventFanout) OnOutput(event schema.OutputEvent) {
	for _, sink := range f.sinks {
		sink.OnOutput(event)
	}
}

func (f eventFanout) OnClear(event schema.ClearEvent) {
	for _, sink := range f.sinks {
		sink.OnClear(event)
	}
}

func (f eventFanout) OnFocus(event schema.FocusEvent) {
	for _, sink := range f.sinks {
		sink.OnFocus(event)
	}
}

func (f eventFanout) OnAnnotations(event schema.AnnotationEvent) {
	for _, sink := range f.sinks {
		sink.OnAnnotations(event)
	}
}

func (f eventFanout) OnState(event schema.StateEvent) {
	for _, sink := range f.sinks {
		sink.OnState(event)
	}
}

func (f eventFanout) OnResult(event schema.ResultEvent) {
	for _, sink := range f.sinks {
		sink.OnResult(event)
	}
}
