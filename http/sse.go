package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/usefocal/focal"
)

// heartbeatInterval is how often an SSE comment is written to keep idle
// connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// handleJobStream streams a job's stage events as Server-Sent Events. The
// subscription replays the job's current state first, so late subscribers
// always receive at least one event; the stream closes after a terminal
// event.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	events, cancel, err := s.JobService.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		s.Error(w, r, err)
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.Error(w, r, focal.Errorf(focal.EINTERNAL, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Jobs can outlive any reasonable write deadline.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeStageEvent(w, flusher, ev)
			if ev.Terminal {
				return
			}
		}
	}
}

// writeStageEvent writes one SSE "stage" event frame.
func writeStageEvent(w io.Writer, flusher http.Flusher, ev focal.StageEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: stage\ndata: %s\n\n", data)
	flusher.Flush()
}
