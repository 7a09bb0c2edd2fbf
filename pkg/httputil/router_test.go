package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRouterHandle(t *testing.T) {
	r := NewRouter()
	r.HandleFunc("GET /test", ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouterMiddleware(t *testing.T) {
	r := NewRouter()
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, req)
			})
		}
	}
	r.Use(mw("outer"), mw("inner"))
	r.HandleFunc("GET /test", ok)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRouterGroup(t *testing.T) {
	r := NewRouter()
	api := r.Group("/api")
	api.Group("/v1").HandleFunc("GET /test/{id}", func(w http.ResponseWriter, req *http.Request) {
		Error(w, http.StatusTeapot, req.PathValue("id"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/42", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.JSONEq(t, `{"code":418,"message":"42"}`, w.Body.String())
}

func TestRouterInvalidPattern(t *testing.T) {
	require.Panics(t, func() { NewRouter().HandleFunc("/no-method", ok) })
}

func TestJSONWithContentType(t *testing.T) {
	w := httptest.NewRecorder()
	JSONWithContentType(w, http.StatusCreated, "application/vnd.api+json", map[string]int{"a": 1})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/vnd.api+json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"a":1}`, w.Body.String())
}
