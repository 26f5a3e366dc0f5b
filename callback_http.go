package flowengine

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// CallbackHandler is an HTTP trigger for the callback protocol: it extracts
// a callback key and a JSON payload from a POST request and invokes
// DeliverCallback. Any transport works for delivery; this is the one the
// repo ships. Mount it under a route with a {key} path parameter:
//
//	mux.Handle("POST /callbacks/{key}", flowengine.NewCallbackHandler(engine))
func NewCallbackHandler(engine *Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		if key == "" {
			http.Error(w, "callback key required", http.StatusBadRequest)
			return
		}

		var payload map[string]any
		if r.Body != nil {
			// An empty body is a bare acknowledgement, not a malformed one.
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "invalid JSON payload", http.StatusBadRequest)
				return
			}
		}

		err := engine.DeliverCallback(r.Context(), key, payload)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusOK)
		case errors.Is(err, ErrCallbackNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrCallbackConflict), errors.Is(err, ErrCallbackExpired):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
