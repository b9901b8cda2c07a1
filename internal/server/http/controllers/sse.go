package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rzbill/syncq/internal/events"
)

// sseSink writes events to a text/event-stream response. The event id is the
// broadcaster's ordered id and the event name is the event kind.
type sseSink struct {
	w http.ResponseWriter
}

func (s sseSink) Send(ev events.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Event, b); err != nil {
		return err
	}
	return s.Flush()
}

// Ping writes a comment line to keep intermediaries from closing an idle
// stream.
func (s sseSink) Ping() error {
	if _, err := s.w.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	return s.Flush()
}

func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
