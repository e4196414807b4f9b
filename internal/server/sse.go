package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter emits Server-Sent Events on a streaming response.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for an event stream. It fails when the
// underlying writer cannot flush, since buffered events would defeat the
// point of streaming.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent marshals data and flushes it out as one named event.
func (s *SSEWriter) WriteEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError reports a stream-level failure to the client. The write error
// itself is ignored: a broken connection has nowhere left to report to.
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// WriteComplete closes out the stream with the job's final status.
func (s *SSEWriter) WriteComplete(jobID, status string) {
	s.WriteEvent("complete", map[string]string{ //nolint:errcheck
		"job_id": jobID,
		"status": status,
	})
}
