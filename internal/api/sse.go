package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/events"
	"github.com/google/uuid"
)

// handleEvents streams broadcaster events as server-sent events. Each
// connection gets its own buffered channel and a heartbeat comment on a
// ticker so idle proxies keep the connection alive. Any write failure ends
// only this connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, ErrorBody{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientID := uuid.NewString()
	ch := make(chan events.Event, s.eventsCfg.ClientBuffer)
	s.broadcaster.AddListener(clientID, ch)
	defer s.broadcaster.RemoveListener(clientID)

	log := s.logger.WithField("client", clientID)
	log.Debug("sse client connected")

	heartbeat := time.NewTicker(s.eventsCfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("sse client disconnected")
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				log.WithError(err).Debug("sse heartbeat write failed")
				return
			}
			flusher.Flush()

		case event, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
				log.WithError(err).Debug("sse event write failed")
				return
			}
			flusher.Flush()
		}
	}
}
