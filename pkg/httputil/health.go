package httputil

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of health responses.
type HealthStatus struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Health answers 200 while check succeeds and 503 otherwise. check runs
// with a 2 second timeout.
func Health(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{Status: "ok", RequestID: RequestID(r)}
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				status.Status = "unavailable"
				status.Error = err.Error()
				JSON(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		JSON(w, http.StatusOK, status)
	}
}
