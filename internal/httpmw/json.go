package httpmw

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// maxJSONBodySize is the request-body cap LimitBody applies, mirroring
// the teacher's internal/api/router.go limitJSONBody middleware.
const maxJSONBodySize = 1 << 20 // 1 MiB

// LimitBody wraps r.Body so handlers decoding small JSON payloads (judge
// results, heartbeats) cannot be used to exhaust memory.
func LimitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		next.ServeHTTP(w, r)
	})
}

// ErrorBody is the structured JSON body returned on non-2xx responses.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON marshals v as the response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// WriteError writes {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}
