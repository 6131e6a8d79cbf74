package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"wrdms.org/internal/audit"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the uniform failure body; every failure carries a
// message field plus the request id when one is assigned.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{"message": msg}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, code, body)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// decodeJSON reads a single JSON object and rejects unknown fields and
// trailing garbage.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: unexpected trailing data")
	}
	return nil
}
