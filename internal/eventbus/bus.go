package eventbus

import (
	"context"
	"sync"

	"github.com/progcompcl/ide/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventStatus carries status line updates.
	EventStatus EventType = "status"
	// EventOutput carries text appended to a stream.
	EventOutput EventType = "output"
	// EventClear reports both streams were emptied.
	EventClear EventType = "clear"
	// EventFocus carries the stream to show.
	EventFocus EventType = "focus"
	// EventAnnotations carries the editor annotation set.
	EventAnnotations EventType = "annotations"
	// EventState carries session state transitions.
	EventState EventType = "state"
	// EventResult carries the terminal result of a request.
	EventResult EventType = "result"
)

const (
	defaultDepth   = 256
	defaultHistory = 512
)

// Event is one session event with its per-session sequence number.
type Event struct {
	Seq         uint64                  `json:"seq"`
	Type        EventType               `json:"type"`
	SessionID   schema.SessionID        `json:"session_id"`
	Status      *schema.StatusEvent     `json:"status,omitempty"`
	Output      *schema.OutputEvent     `json:"output,omitempty"`
	Clear       *schema.ClearEvent      `json:"clear,omitempty"`
	Focus       *schema.FocusEvent      `json:"focus,omitempty"`
	Annotations *schema.AnnotationEvent `json:"annotations,omitempty"`
	State       *schema.StateEvent      `json:"state,omitempty"`
	Result      *schema.ResultEvent     `json:"result,omitempty"`
}

type topic struct {
	seq     uint64
	history []Event
	subs    map[chan Event]struct{}
}

// Bus fans session events out to per-session subscribers and keeps a short
// history so reconnecting subscribers can catch up.
type Bus struct {
	mu      sync.Mutex
	topics  map[schema.SessionID]*topic
	log     pslog.Logger
	depth   int
	history int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		topics:  make(map[schema.SessionID]*topic),
		log:     logger,
		depth:   defaultDepth,
		history: defaultHistory,
	}
}

// Subscribe registers a subscriber for the session. Events with a sequence
// above after that are still in history are returned for replay; live events
// follow on the channel.
func (b *Bus) Subscribe(id schema.SessionID, after uint64) ([]Event, <-chan Event, func()) {
	if b == nil {
		return nil, nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	t := b.topicLocked(id)
	var replay []Event
	for _, ev := range t.history {
		if ev.Seq > after {
			replay = append(replay, ev)
		}
	}
	t.subs[ch] = struct{}{}
	count := len(t.subs)
	b.mu.Unlock()
	b.log.With("session", string(id)).Debug("eventbus subscribe", "subs", count, "replay", len(replay))

	var once sync.Once
	return replay, ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if t := b.topics[id]; t != nil {
				if _, ok := t.subs[ch]; ok {
					delete(t.subs, ch)
					close(ch)
				}
			}
			b.mu.Unlock()
			b.log.With("session", string(id)).Debug("eventbus unsubscribe")
		})
	}
}

// Forget drops the session's history and closes its subscribers.
func (b *Bus) Forget(id schema.SessionID) {
	if b == nil {
		return
	}
	b.mu.Lock()
	t := b.topics[id]
	delete(b.topics, id)
	if t != nil {
		for ch := range t.subs {
			close(ch)
		}
	}
	b.mu.Unlock()
}

// Seq returns the last sequence number published for the session.
func (b *Bus) Seq(id schema.SessionID) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := b.topics[id]; t != nil {
		return t.seq
	}
	return 0
}

func (b *Bus) OnStatus(event schema.StatusEvent) {
	b.publish(Event{Type: EventStatus, SessionID: event.SessionID, Status: &event})
}

func (b *Bus) OnOutput(event schema.OutputEvent) {
	b.publish(Event{Type: EventOutput, SessionID: event.SessionID, Output: &event})
}

func (b *Bus) OnClear(event schema.ClearEvent) {
	b.publish(Event{Type: EventClear, SessionID: event.SessionID, Clear: &event})
}

func (b *Bus) OnFocus(event schema.FocusEvent) {
	b.publish(Event{Type: EventFocus, SessionID: event.SessionID, Focus: &event})
}

func (b *Bus) OnAnnotations(event schema.AnnotationEvent) {
	b.publish(Event{Type: EventAnnotations, SessionID: event.SessionID, Annotations: &event})
}

func (b *Bus) OnState(event schema.StateEvent) {
	b.publish(Event{Type: EventState, SessionID: event.SessionID, State: &event})
}

func (b *Bus) OnResult(event schema.ResultEvent) {
	b.publish(Event{Type: EventResult, SessionID: event.SessionID, Result: &event})
}

func (b *Bus) topicLocked(id schema.SessionID) *topic {
	t := b.topics[id]
	if t == nil {
		t = &topic{subs: make(map[chan Event]struct{})}
		b.topics[id] = t
	}
	return t
}

// publish never blocks; a full subscriber misses the event and can catch up
// from history.
func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	t := b.topicLocked(event.SessionID)
	t.seq++
	event.Seq = t.seq
	t.history = append(t.history, event)
	if over := len(t.history) - b.history; over > 0 {
		t.history = append(t.history[:0:0], t.history[over:]...)
	}
	dropped := 0
	for sub := range t.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("session", string(event.SessionID)).Trace("eventbus dropped", "count", dropped, "seq", event.Seq)
	}
}
