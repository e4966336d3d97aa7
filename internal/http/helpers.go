package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"retire/internal/diagnostics"
)

// maxEventsLimit caps GET /api/events?limit=N.
const maxEventsLimit = 200

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeJSONError writes {"error": msg}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// parseLimit reads the limit query parameter. Missing or malformed values
// fall back to the default.
func parseLimit(query url.Values) int {
	n, _ := strconv.Atoi(strings.TrimSpace(query.Get("limit")))
	return diagnostics.NormalizeLimit(n, maxEventsLimit)
}
