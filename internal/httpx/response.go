// Package httpx carries the JSON response conventions shared by every
// handler: a single envelope for errors and stable machine-readable
// error codes the frontend switches on.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Error codes shared across handlers. Endpoint-specific failures use
// their own codes next to these.
const (
	CodeInvalidJSON      = "invalid_json"
	CodeValidationFailed = "validation_failed"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
)

// ErrorResponse is the envelope for every non-2xx body. Details holds
// per-field messages for validation failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON writes payload with the given status. Encoding failures replace
// the body entirely rather than emit partial JSON.
func JSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// JSONError writes an ErrorResponse with the given code.
func JSONError(w http.ResponseWriter, status int, code string, details any) {
	JSON(w, status, ErrorResponse{Error: code, Details: details})
}

// ValidationError reports a 400 with per-field messages.
func ValidationError(w http.ResponseWriter, fields map[string]string) {
	JSONError(w, http.StatusBadRequest, CodeValidationFailed, fields)
}
