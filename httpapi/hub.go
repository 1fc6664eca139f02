package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/progcompcl/ide/core"
	"github.com/progcompcl/ide/internal/eventbus"
	"github.com/progcompcl/ide/internal/logx"
	"github.com/progcompcl/ide/schema"
)

// StreamEvent is sent to SSE clients. The first event of every stream is a
// snapshot; later events are bus events in sequence order. Events with a
// sequence at or below the snapshot sequence may already be reflected in it.
type StreamEvent struct {
	eventbus.Event
	Snapshot  *schema.SessionSnapshot `json:"snapshot,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

const eventSnapshot eventbus.EventType = "snapshot"

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, session *core.Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context())
	id := session.ID()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	after := lastID
	if after == 0 {
		after = math.MaxUint64
	}
	replay, ch, unsubscribe := s.bus.Subscribe(id, after)
	defer unsubscribe()

	if lastID == 0 {
		seq := s.bus.Seq(id)
		snapshot := session.Snapshot()
		_ = writeSSEvent(w, StreamEvent{
			Event:     eventbus.Event{Seq: seq, Type: eventSnapshot, SessionID: id},
			Snapshot:  &snapshot,
			Timestamp: time.Now(),
		})
	}
	for _, event := range replay {
		_ = writeSSEvent(w, StreamEvent{Event: event, Timestamp: time.Now()})
	}
	flusher.Flush()

	keepalive := time.NewTicker(s.cfg.StreamKeepalive)
	defer keepalive.Stop()
	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", len(replay))
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				log.Info("http stream ended", "reason", "session closed")
				return
			}
			_ = writeSSEvent(w, StreamEvent{Event: event, Timestamp: time.Now()})
			flusher.Flush()
		}
	}
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 && event.Type != eventSnapshot {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	return nil
}
