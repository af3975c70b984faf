package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"
)

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeYAML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "text/yaml")
	w.WriteHeader(status)
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to encode YAML response", "error", err)
	}
}
