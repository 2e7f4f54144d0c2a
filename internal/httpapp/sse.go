package httpapp

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sse"

	"github.com/anontester/ripweb/internal/events"
)

// heartbeatInterval keeps proxies from timing out idle streams.
const heartbeatInterval = 25 * time.Second

// StreamEvents serves the server-sent event stream. Every connection first
// receives a full queue snapshot and the saved list, then live updates until
// the client disconnects.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := h.Broker.Subscribe()
	defer sub.Close()

	// Prime the new subscriber with current state so it never renders from
	// a partial view.
	if err := sse.Encode(w, sse.Event{Event: events.EventQueue, Data: h.Registry.Snapshot()}); err != nil {
		return
	}
	if saved, err := h.Registry.SavedList(); err == nil {
		if err := sse.Encode(w, sse.Event{Event: events.EventSaved, Data: saved}); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			if err := sse.Encode(w, sse.Event{Event: ev.Name, Data: ev.Data}); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if err := sse.Encode(w, sse.Event{Event: "heartbeat", Data: "ping"}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
