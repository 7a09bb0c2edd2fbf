package httputil

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type ContextKey string

const (
	RequestIDCtxKey ContextKey = "RequestID"
	LogEntryCtxKey  ContextKey = "LogEntry"
)

// RequestID returns the request id set by the RequestID middleware.
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDCtxKey).(string)
	return id
}

// Logger returns the request-scoped logger set by the logger middleware, or
// fallback.
func Logger(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if l, ok := r.Context().Value(LogEntryCtxKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	JSONWithContentType(w, statusCode, "application/json", data)
}

// JSONWithContentType writes data as JSON under a custom media type, e.g.
// application/vnd.api+json.
func JSONWithContentType(w http.ResponseWriter, statusCode int, contentType string, data any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Error sends a JSON response with an error code and message.
func Error(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, ErrorResponse{Code: statusCode, Message: message})
}
