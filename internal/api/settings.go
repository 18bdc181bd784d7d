// Package api exposes the settings bridge to host invocation mechanisms:
// a bearer-auth'd JSON HTTP API and an MCP server.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prefd/prefd/internal/bridge"
)

const maxBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP surface dispatches into.
type Deps struct {
	Accessor *bridge.Accessor
	Registry *bridge.Registry
	Notifier *bridge.Notifier
	Token    string
}

// NewHandler builds the HTTP API. All routes except /health require the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/settings", handleListSettings(deps))
		r.Get("/settings/{key}", handleGetSetting(deps))
		r.Put("/settings/{key}", handlePutSetting(deps))
		r.Patch("/settings", handlePatchSettings(deps))
		r.Delete("/settings/{key}", handleDeleteSetting(deps))
		r.Get("/constants", handleConstants(deps))
		r.Post("/invoke", handleInvoke(deps))
		r.Get("/events", handleEvents(deps))
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func handleListSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := deps.Accessor.Values()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading settings: %v", err)
			return
		}
		writeJSON(w, values)
	}
}

// handleGetSetting reports an absent key as a normal result, not a 404:
// absence is an expected outcome of a settings lookup, encoded in the body.
func handleGetSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		value, ok, err := deps.Accessor.GetValue(key)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading %q: %v", key, err)
			return
		}
		writeJSON(w, map[string]any{"key": key, "present": ok, "value": value})
	}
}

func handlePutSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req struct {
			Value any `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		// A null value deletes the key.
		if err := deps.Accessor.SetValue(key, req.Value); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "writing %q: %v", key, err)
			return
		}
		writeJSON(w, map[string]any{"key": key})
	}
}

func handlePatchSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var values map[string]any
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := deps.Accessor.SetValues(values); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "writing settings: %v", err)
			return
		}
		writeJSON(w, map[string]any{"count": len(values)})
	}
}

func handleDeleteSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		if err := deps.Accessor.DeleteValues(key); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting %q: %v", key, err)
			return
		}
		writeJSON(w, map[string]any{"key": key})
	}
}

func handleConstants(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Accessor.Constants())
	}
}

// handleInvoke is the generic host dispatch entry point: any registered
// module's operations can be called by name.
func handleInvoke(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req struct {
			Module string         `json:"module"`
			Op     string         `json:"op"`
			Args   map[string]any `json:"args"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Module == "" || req.Op == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "module and op are required")
			return
		}

		result, err := deps.Registry.Invoke(r.Context(), req.Module, req.Op, req.Args)
		if err != nil {
			switch {
			case errors.Is(err, bridge.ErrUnknownModule), errors.Is(err, bridge.ErrUnknownOp):
				httpError(w, http.StatusNotFound, "invalid_request_error", "%v", err)
			default:
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			}
			return
		}
		writeJSON(w, map[string]any{"result": result})
	}
}
