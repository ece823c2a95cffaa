package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/bastion/internal/engine/enginetest"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/config"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Auth.APIKey = "k"
	cfg.Storage.DownloadsDir = filepath.Join(root, "downloads")
	cfg.Storage.UploadsDir = filepath.Join(root, "uploads")
	cfg.Storage.VaultPath = filepath.Join(root, "vault.bin")
	cfg.Server.Port = "0"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *enginetest.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := enginetest.New()
	srv, err := New(cfg, Deps{Engine: eng}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, eng
}

func serve(srv *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(testConfig(t), Deps{}, nil)
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))

	w := serve(srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","sessions":0,"maxSessions":5}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w = serve(srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bastion_http_requests_total")
}

func TestAPIRequiresCredential(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))

	assert.Equal(t, http.StatusUnauthorized, serve(srv, http.MethodGet, "/api/downloads?sessionId=S").Code)
	assert.Equal(t, http.StatusBadRequest, serve(srv, http.MethodGet, "/api/downloads?api_key=k").Code)
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/api/downloads?api_key=k&sessionId=S").Code)
}

func TestAPIRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1
	srv, _ := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/api/downloads?api_key=k&sessionId=S").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(srv, http.MethodGet, "/api/downloads?api_key=k&sessionId=S").Code)
	// The health probe is outside the limited group.
	assert.Equal(t, http.StatusOK, serve(srv, http.MethodGet, "/health").Code)
}

func TestControlChannelAndShutdown(t *testing.T) {
	srv, eng := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?api_key=k&sessionId=viewer"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ready map[string]any
	require.NoError(t, sonic.Unmarshal(data, &ready))
	assert.Equal(t, "session_ready", ready["type"])
	assert.Equal(t, "viewer", ready["sessionId"])
	assert.Equal(t, 1, srv.Sessions().Count())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	assert.Equal(t, 0, srv.Sessions().Count())
	assert.True(t, eng.Closed())
	assert.True(t, eng.LastContext().Closed())
}
