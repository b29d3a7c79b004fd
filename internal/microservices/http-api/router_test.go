package httpapi_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"geminichat/internal/config"
	"geminichat/internal/microservices/chatroom"
	"geminichat/internal/microservices/chatroom/chatroomtest"
	httpapi "geminichat/internal/microservices/http-api"
	"geminichat/internal/microservices/http-api/service"
	"geminichat/internal/microservices/storage"
	"geminichat/internal/microservices/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		GoEnv:             "test",
		StoreBackend:      config.BackendMemory,
		SendRateLimit:     1,
		SendRateBurst:     2,
		PrometheusEnabled: true,
		CORSOrigins:       []string{"http://localhost:3000"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	sessions := service.NewSessionService(storage.NewMemoryStore(8, 0), chatroom.Options{
		Scheduler: chatroomtest.NewManualScheduler(),
	}, logger)
	t.Cleanup(sessions.CloseAll)

	return httpapi.NewRouter(httpapi.Deps{
		Config:   cfg,
		Sessions: sessions,
		Hub:      websocket.NewHub(logger),
		Logger:   logger,
	})
}

func TestRouter_CheckConn(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/check-conn", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "API is alive")
	assert.Contains(t, w.Body.String(), `"backend":"memory"`)
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestRouter_CheckConnStoreDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := service.NewSessionService(storage.NewMemoryStore(8, 0), chatroom.Options{
		Scheduler: chatroomtest.NewManualScheduler(),
	}, logger)
	t.Cleanup(sessions.CloseAll)

	r := httpapi.NewRouter(httpapi.Deps{
		Config:   &config.Config{GoEnv: "test", StoreBackend: config.BackendRedis},
		Sessions: sessions,
		Hub:      websocket.NewHub(logger),
		Logger:   logger,
		Store:    downStore{},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/check-conn", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.Contains(t, w.Body.String(), `"backend":"redis"`)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "geminichat_active_sessions")

	disabled := newTestRouter(t, func(c *config.Config) { c.PrometheusEnabled = false })
	w = httptest.NewRecorder()
	disabled.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/chatrooms/room-1/messages", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/chatrooms/room-1/messages", nil)
	req.Header.Set("Origin", "http://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_SendIsRateLimited(t *testing.T) {
	r := newTestRouter(t, nil)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/chatrooms/room-1/messages", bytes.NewBufferString(`{"text":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
		}
	}
	require.Len(t, codes, 3)
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)

	// reads are not limited
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chatrooms/room-1/messages", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
