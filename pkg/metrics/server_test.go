package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerEndpoints(t *testing.T) {
	s := NewServer(ServerConfig{BindAddress: "127.0.0.1"})
	assert.Equal(t, 9090, s.Port())
	assert.Equal(t, "127.0.0.1:9090", s.server.Addr)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", strings.TrimSpace(rec.Body.String()))

	rec = get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/metrics")

	assert.Equal(t, http.StatusNotFound, get("/nope").Code)
}
