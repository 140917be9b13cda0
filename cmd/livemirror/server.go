package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/livemirror/errors"
	"github.com/c360/livemirror/metric"
	"github.com/c360/livemirror/provider"
)

// maxRequestBody bounds verb payloads. Mutations carry one record or a
// list of ids; 4 MiB is generous.
const maxRequestBody = 4 << 20

// newServer builds the HTTP server: verb dispatch, metrics and health.
func newServer(addr string, p *provider.Provider, m *metric.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/{resource}/{verb}", dispatchHandler(p, logger))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// dispatchHandler translates one HTTP call into one provider verb call.
func dispatchHandler(p *provider.Provider, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := r.PathValue("resource")
		verb := r.PathValue("verb")

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read request body")
			return
		}

		result, err := p.Dispatch(r.Context(), verb, resource, body)
		if err != nil {
			logger.Debug("dispatch failed",
				"verb", verb, "resource", resource, "error", err)
			writeError(w, statusFor(err), err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.Error("encode response", "verb", verb, "resource", resource, "error", err)
		}
	}
}

// statusFor maps the error classification onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
