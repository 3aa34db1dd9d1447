// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
)

// APIError is the Invidious-shaped error body spec.md §4.10/§7 mandates,
// an external contract this gateway must match rather than the teacher's
// own {"error": "..."} shape.
type APIError struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	InnerMessage  string `json:"inner_message,omitempty"`
	AvailableData any    `json:"available_streams,omitempty"`
}

// RespondError writes status with an Invidious-shaped error body.
func RespondError(w http.ResponseWriter, status int, message, innerMessage string) {
	writeJSON(w, status, APIError{Type: "error", Message: message, InnerMessage: innerMessage})
}

// RespondErrorWithData writes status with an Invidious-shaped error body
// that also carries an auxiliary payload, e.g. S5's available_streams
// list on an unknown-itag 404.
func RespondErrorWithData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, APIError{Type: "error", Message: message, AvailableData: data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONPretty(w http.ResponseWriter, status int, raw json.RawMessage, pretty bool) {
	w.Header().Set("Content-Type", "application/json")
	if !pretty {
		w.WriteHeader(status)
		_, _ = w.Write(raw)
		return
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		w.WriteHeader(status)
		_, _ = w.Write(raw)
		return
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		w.WriteHeader(status)
		_, _ = w.Write(raw)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(out)
}
