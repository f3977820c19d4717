package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/appetiteclub/appetite-client/internal/kitchen"
)

// Events streams the board view as Server-Sent Events. A full view is sent
// on connect and after every change the controller reports.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriberID, changes := h.board.Subscribe()
	defer h.board.Unsubscribe(subscriberID)
	log := h.logger.With("subscriber_id", subscriberID)
	log.Info("new SSE connection")

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")
	if err := h.sendView(w, "connected"); err != nil {
		log.Error("cannot encode view", "error", err)
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info("SSE client disconnected")
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()

		case change, ok := <-changes:
			if !ok {
				log.Info("board stopped, closing SSE stream")
				return
			}
			if err := h.sendView(w, change.Reason); err != nil {
				log.Error("cannot encode view", "error", err)
				continue
			}
			flusher.Flush()
		}
	}
}

type queueEvent struct {
	Reason string       `json:"reason"`
	View   kitchen.View `json:"view"`
}

func (h *Handler) sendView(w http.ResponseWriter, reason string) error {
	data, err := json.Marshal(queueEvent{Reason: reason, View: h.board.View()})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: queue\n")
	fmt.Fprintf(w, "data: %s\n\n", data)
	return nil
}
