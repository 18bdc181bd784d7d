package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleEvents streams settings-change events over SSE. Each event is one
// JSON object on a data line. The stream ends when the client disconnects.
func handleEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		// Tell the client it is connected before the first change arrives.
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		events := deps.Notifier.Subscribe(r.Context())
		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
