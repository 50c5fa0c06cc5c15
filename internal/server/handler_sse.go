package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/ingestd/internal/status"
	"github.com/me/ingestd/pkg/model"
)

// handleSSESubmission streams submission updates via Server-Sent Events.
// GET /api/v1/sse/submissions/{id}
func (s *Server) handleSSESubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reqID := RequestIDFromContext(r.Context())

	sub, err := s.scheduler.Status(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, reqID, id, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError("streaming not supported"))
		return
	}

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	if err := sendSSEEvent(w, flusher, "init", sub); err != nil {
		s.logger.Debug("sse client disconnected", "id", id, "error", err)
		return
	}
	if sub.Settled() {
		sendSSEEvent(w, flusher, "complete", sub)
		return
	}

	ticker := time.NewTicker(s.sseInterval)
	defer ticker.Stop()

	last := changeKey(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			sub, err = s.scheduler.Status(r.Context(), id)
			if err != nil {
				if errors.Is(err, status.ErrNotFound) {
					return
				}
				s.logger.Error("sse fetch error", "id", id, "error", err)
				continue
			}

			if key := changeKey(sub); key != last {
				if err := sendSSEEvent(w, flusher, "update", sub); err != nil {
					s.logger.Debug("sse client disconnected", "id", id)
					return
				}
				last = key
			} else {
				fmt.Fprintf(w, ": heartbeat\n\n")
				flusher.Flush()
			}

			if sub.Settled() {
				sendSSEEvent(w, flusher, "complete", sub)
				return
			}
		}
	}
}

// changeKey summarizes the parts of a submission that an update event reports.
func changeKey(sub *model.Submission) string {
	key := string(sub.Status)
	for _, b := range sub.Batches {
		key += "|" + string(b.Status)
	}
	return key
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
