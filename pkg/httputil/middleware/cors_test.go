package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSWithOptions(t *testing.T) {
	tests := []struct {
		options         *CORSOptions
		expectedHeaders map[string]string
		name            string
		method          string
		origin          string
		expectedStatus  int
	}{
		{
			name:    "default options",
			method:  http.MethodGet,
			origin:  "https://app.example.com",
			options: nil,
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":      "*",
				"Access-Control-Allow-Methods":     "GET,POST,PATCH,DELETE,OPTIONS",
				"Access-Control-Allow-Headers":     "Content-Type,Accept,Authorization,Origin,Cache-Control,X-Request-Id",
				"Access-Control-Allow-Credentials": "",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "listed origin is echoed",
			method: http.MethodGet,
			origin: "https://b.example.com",
			options: &CORSOptions{
				AllowedOrigins:   []string{"https://a.example.com", "https://b.example.com"},
				AllowCredentials: true,
			},
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":      "https://b.example.com",
				"Access-Control-Allow-Credentials": "true",
				"Vary":                             "Origin",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "unlisted origin",
			method: http.MethodGet,
			origin: "https://evil.example.com",
			options: &CORSOptions{
				AllowedOrigins: []string{"https://a.example.com"},
			},
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin": "",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:    "empty options",
			method:  http.MethodGet,
			options: &CORSOptions{},
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "",
				"Access-Control-Allow-Methods": "",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:    "preflight",
			method:  http.MethodOptions,
			origin:  "https://app.example.com",
			options: DefaultCORSOptions(),
			expectedHeaders: map[string]string{
				"Access-Control-Allow-Methods": "GET,POST,PATCH,DELETE,OPTIONS",
			},
			expectedStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORSWithOptions(tt.options)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tt.method, "http://example.com/users", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			for header, expected := range tt.expectedHeaders {
				assert.Equal(t, expected, rr.Header().Get(header), header)
			}
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}
