package gateway

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scoreboard/go/internal/match"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every failed REST call.
type ErrorResponse struct {
	Success    bool                   `json:"success"`
	Error      string                 `json:"error"`
	Violations match.ValidationErrors `json:"violations,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, clock clockwork.Clock, status int, message string, violations match.ValidationErrors) {
	writeJSON(w, status, ErrorResponse{
		Success:    false,
		Error:      message,
		Violations: violations,
		Timestamp:  clock.Now().UnixMilli(),
	})
}

func jsonStatusHandler(clock clockwork.Clock, status int, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, clock, status, message, nil)
	}
}

// RecoverMiddleware turns a handler panic into a 500 JSON response.
func RecoverMiddleware(clock clockwork.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("recovered from handler panic")
				writeError(w, clock, http.StatusInternalServerError, "internal server error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
