package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const keepaliveInterval = 15 * time.Second

// handleHomeStream streams home snapshots as server-sent events. The
// subscription is what keeps the aggregator's combining loop warm; when
// the last stream closes the loop winds down after its grace period.
func (s *Server) handleHomeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming_error", "Streaming not supported")
		return
	}

	// Set up SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	snapshots, release := s.agg.Subscribe()
	defer release()

	requestID := GetRequestID(r.Context())
	s.logger.Info("home stream opened", slog.String("request_id", requestID))

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Client disconnects are the normal way a stream ends.
			s.logger.Info("home stream closed", slog.String("request_id", requestID))
			return

		case snap := <-snapshots:
			s.sendSSEEvent(w, flusher, "snapshot", snap)

		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE event", slog.String("error", err.Error()))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	flusher.Flush()
}
