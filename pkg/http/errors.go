package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error    string `json:"error"`              // Machine-readable error code
	Message  string `json:"message"`            // Human-readable message
	Details  string `json:"details,omitempty"`  // Optional additional context
	Redirect string `json:"redirect,omitempty"` // Where the client should go next
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// WriteRedirect writes a JSON error that tells the client where to continue.
// The target is also sent as the Location header.
func WriteRedirect(w http.ResponseWriter, statusCode int, errorCode, message, location string) {
	w.Header().Set("Location", location)
	WriteJSON(w, statusCode, ErrorResponse{
		Error:    errorCode,
		Message:  message,
		Redirect: location,
	})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

// WriteUnauthorized answers a caller without a usable session. A non-empty
// location is sent as the login redirect.
func WriteUnauthorized(w http.ResponseWriter, message, location string) {
	if location == "" {
		WriteError(w, http.StatusUnauthorized, "unauthorized", message)
		return
	}
	WriteRedirect(w, http.StatusUnauthorized, "unauthorized", message, location)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "service_unavailable", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
