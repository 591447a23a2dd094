// Package response holds the JSON shapes and write helpers shared by the
// HTTP handlers.
package response

import (
	"encoding/json"
	"net/http"
	"time"
)

// APIError represents an API error
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse is the envelope for all non-2xx responses.
type ErrorResponse struct {
	Error     *APIError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorCode constants
const (
	ErrorCodeBadRequest       = "BAD_REQUEST"
	ErrorCodeMalformedPayload = "MALFORMED_PAYLOAD"
	ErrorCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrorCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrorCodeInternalError    = "INTERNAL_SERVER_ERROR"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone at this point; nothing more useful to do.
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteError writes an error response
func WriteError(w http.ResponseWriter, requestID string, statusCode int, code, message string, details interface{}) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, requestID string, message string, details interface{}) {
	WriteError(w, requestID, http.StatusBadRequest, ErrorCodeBadRequest, message, details)
}

// WriteMethodNotAllowed writes a method not allowed error (405)
func WriteMethodNotAllowed(w http.ResponseWriter, requestID string) {
	WriteError(w, requestID, http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed, "Method not allowed", nil)
}

// WriteStoreUnavailable writes a service unavailable error (503)
func WriteStoreUnavailable(w http.ResponseWriter, requestID string, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, ErrorCodeStoreUnavailable, message, nil)
}

// WriteInternalServerError writes an internal server error (500)
func WriteInternalServerError(w http.ResponseWriter, requestID string, message string, details interface{}) {
	WriteError(w, requestID, http.StatusInternalServerError, ErrorCodeInternalError, message, details)
}

// HealthResponse reports store connectivity for load balancers and
// operational tooling.
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// WriteHealthCheck writes a health check response: 200 when healthy, 503
// otherwise.
func WriteHealthCheck(w http.ResponseWriter, healthy bool, reason string) {
	resp := HealthResponse{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: time.Now().UTC(),
	}
	statusCode := http.StatusOK

	if !healthy {
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		resp.Error = reason
		statusCode = http.StatusServiceUnavailable
	}

	WriteJSON(w, statusCode, resp)
}
