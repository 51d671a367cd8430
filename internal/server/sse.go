package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// handlePhylogenyEvents streams GET /api/phylogeny/{jobId}/events. The job is polled
// every pollInterval and each envelope is sent as a "progress" event; the terminal
// envelope is sent as "complete" and closes the stream. Tokens advance as the
// pipeline does, so the stream follows the job across stages.
func (s *Server) handlePhylogenyEvents(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDFrom(r)
	ctx := r.Context()

	env, err := s.phylogeny.Poll(ctx, jobID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), errorMessage(err))
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if env.Terminal() {
			if err := sse.WriteEvent("complete", env); err != nil {
				log.Printf("[server] event stream for %s closed: %v", jobID, err)
			}
			return
		}
		if err := sse.WriteEvent("progress", env); err != nil {
			log.Printf("[server] event stream for %s closed: %v", jobID, err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := s.phylogeny.Poll(ctx, env.JobID)
		if err != nil {
			sse.WriteError(errorMessage(err))
			return
		}
		env = next
	}
}
