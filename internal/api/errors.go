package api

import (
	"encoding/json"
	"net/http"

	"github.com/caribu66/veruspulse-sub016/internal/verrors"
)

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error string `json:"error"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError maps a typed error to its HTTP status. Scan conflicts are a
// success shape ("already scanning"), not an error body.
func respondError(w http.ResponseWriter, err error) {
	status := verrors.HTTPStatusCode(err)
	if verrors.IsScanConflict(err) {
		respondJSON(w, status, map[string]string{"status": "already scanning"})
		return
	}
	respondJSON(w, status, ErrorBody{Error: err.Error()})
}
