// Package api implements the HTTP API server for the telemetry pipeline.
package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// DetailResponse is the standard error envelope.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// WriteDetail writes a standard error response.
func WriteDetail(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, DetailResponse{Detail: detail})
}
