package handler

import (
	"encoding/json"
	"net/http"
)

// errorEnvelope is the error body for every non-2xx API response.
type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}

// decodeNotes reads the optional notes body attached to escalation
// transitions. A missing or malformed body means no notes.
func decodeNotes(r *http.Request) string {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ""
	}
	return body.Notes
}
