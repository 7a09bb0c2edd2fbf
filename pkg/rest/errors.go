package rest

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/httputil"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// ErrorDocument is the body of every error response.
type ErrorDocument struct {
	Errors []resource.ErrorDetail `json:"errors"`
}

// statusOf maps an operation error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, resource.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, resource.ErrUnprocessableRelation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resource.ErrInvalidQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := statusOf(err)
	details := resource.Details(err)
	if status == http.StatusInternalServerError {
		httputil.Logger(r, logger).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		details = []resource.ErrorDetail{{Code: "internal_error", Message: http.StatusText(status)}}
	}
	writeProblem(w, status, details...)
}

func writeProblem(w http.ResponseWriter, status int, details ...resource.ErrorDetail) {
	httputil.JSONWithContentType(w, status, MediaType, ErrorDocument{Errors: details})
}

func notFound(w http.ResponseWriter, code, message string, path ...string) {
	writeProblem(w, http.StatusNotFound, resource.ErrorDetail{Code: code, Message: message, Path: path})
}
