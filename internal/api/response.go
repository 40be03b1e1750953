package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Error codes carried in APIError.Code.
const (
	CodeMissingParam = "MISSING_PARAM"
	CodeInvalidParam = "INVALID_PARAM"
	CodeInvalidMode  = "INVALID_MODE"
	CodeNotFound     = "NOT_FOUND"
	CodeRateLimited  = "RATE_LIMIT_EXCEEDED"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
	Timestamp string `json:"timestamp"`
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	respondMeta(w, status, data, &APIMeta{})
}

func respondMeta(w http.ResponseWriter, status int, data interface{}, meta *APIMeta) {
	meta.Timestamp = time.Now().UTC().Format(time.RFC3339)
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
