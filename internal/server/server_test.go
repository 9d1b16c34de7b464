package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/zonestore/internal/server/handlers"
	"github.com/3leaps/zonestore/internal/server/middleware"
	"github.com/3leaps/zonestore/pkg/provider/file"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	store, err := file.New(file.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return New("127.0.0.1", 0, append([]Option{WithStore(store)}, opts...)...)
}

func serve(srv *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := serve(srv, http.MethodGet, "/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
	assert.Equal(t, body.Error.RequestID, rec.Header().Get(middleware.RequestIDHeader))
}

func TestServer_Port(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"default port", 8080},
		{"custom port", 9000},
		{"zero port", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New("127.0.0.1", tt.port)
			assert.Equal(t, tt.port, srv.Port())
		})
	}
}

func TestServer_Addr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", New("127.0.0.1", 8080).Addr())
	assert.Equal(t, "[::1]:9000", New("::1", 9000).Addr())
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := serve(srv, http.MethodPost, "/version", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestServer_RoutesRegistered(t *testing.T) {
	srv := newTestServer(t, WithMetrics(prometheus.NewRegistry(), "/metrics"))

	endpoints := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/health/live", http.StatusOK},
		{"GET", "/health/ready", http.StatusOK},
		{"GET", "/version", http.StatusOK},
		{"GET", "/metrics", http.StatusOK},
		{"GET", "/v1/objects", http.StatusOK},
		{"GET", "/v1/objects/", http.StatusOK},
		{"HEAD", "/v1/objects/missing.txt", http.StatusNotFound},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			rec := serve(srv, ep.method, ep.path, nil)
			assert.Equal(t, ep.want, rec.Code, "endpoint %s %s", ep.method, ep.path)
		})
	}
}

func TestServer_ObjectsNotMountedWithoutStore(t *testing.T) {
	srv := New("127.0.0.1", 0)
	assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/v1/objects", nil).Code)
}

func TestServer_MetricsDisabledByDefault(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, serve(srv, http.MethodGet, "/metrics", nil).Code)
}

func TestServer_VersionReportsBuild(t *testing.T) {
	srv := New("127.0.0.1", 0, WithVersion(handlers.VersionInfo{Version: "1.4.0", Commit: "deadbeef"}))

	rec := serve(srv, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info handlers.VersionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "deadbeef", info.Commit)
}

func TestServer_ObjectLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := serve(srv, http.MethodPut, "/v1/objects/a/b.txt", strings.NewReader("data"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(srv, http.MethodGet, "/v1/objects/a/b.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data", rec.Body.String())

	rec = serve(srv, http.MethodGet, "/v1/objects?prefix=/a/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"/a/b.txt"`)

	rec = serve(srv, http.MethodDelete, "/v1/objects/a/", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(srv, http.MethodDelete, "/v1/objects/", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_ReadOnly(t *testing.T) {
	srv := newTestServer(t, WithReadOnly(true))

	rec := serve(srv, http.MethodPut, "/v1/objects/a.txt", strings.NewReader("data"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(srv, http.MethodDelete, "/v1/objects/a.txt", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(srv, http.MethodGet, "/v1/objects/a.txt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t, WithTimeouts(time.Second, time.Second, time.Second, time.Second))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health/live"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
