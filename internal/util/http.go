package util

import (
	"encoding/json"
	"net/http"
)

// APIError is the single error envelope every failing endpoint returns.
type APIError struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, msg, reqID string) {
	WriteJSON(w, status, APIError{Error: msg, RequestID: reqID})
}
