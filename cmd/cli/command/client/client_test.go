package client

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"geminichat/internal/microservices/chatroom"
	"geminichat/internal/microservices/chatroom/chatroomtest"
	"geminichat/internal/microservices/http-api/dto"
	"geminichat/internal/microservices/http-api/handler"
	"geminichat/internal/microservices/http-api/service"
	"geminichat/internal/microservices/storage"
	"geminichat/internal/microservices/websocket"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T) (*HTTPClient, *chatroomtest.ManualScheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := chatroomtest.NewManualScheduler()
	sessions := service.NewSessionService(storage.NewMemoryStore(8, 0), chatroom.Options{
		Scheduler: sched,
		Jitter:    func() float64 { return 0 },
	}, logger)

	r := gin.New()
	handler.NewChatroomHandler(sessions, logger).RegisterRoutes(r.Group("/api"))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		sessions.CloseAll()
	})
	return NewHTTPClient(srv.URL), sched
}

func writePNG(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	path := filepath.Join(t.TempDir(), "pixel.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestHTTPClient_SendAndHistory(t *testing.T) {
	api, sched := newAPI(t)

	resp, err := api.SendMessage("room-1", &dto.SendMessageRequest{Text: "hello"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "hello", resp.Message.Text)
	assert.True(t, resp.Persisted)

	sched.FireAll()

	window, err := api.GetHistory("room-1")
	require.NoError(t, err)
	require.Len(t, window.Messages, 3)
	assert.Equal(t, "Gemini: olleh", window.Messages[2].Text)
}

func TestHTTPClient_SendBlank(t *testing.T) {
	api, _ := newAPI(t)
	resp, err := api.SendMessage("room-1", &dto.SendMessageRequest{Text: " "})
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestHTTPClient_APIError(t *testing.T) {
	api, _ := newAPI(t)

	err := api.CloseSession("never-opened")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "not found")
}

func TestHTTPClient_LoadOlderAndClear(t *testing.T) {
	api, sched := newAPI(t)
	for range 12 {
		_, err := api.SendMessage("busy", &dto.SendMessageRequest{Text: "x"})
		require.NoError(t, err)
	}
	sched.FireAll()
	require.NoError(t, api.CloseSession("busy"))

	window, err := api.GetHistory("busy")
	require.NoError(t, err)
	assert.Len(t, window.Messages, 20)

	go func() {
		assert.Eventually(t, func() bool { return len(sched.Pending()) == 1 }, time.Second, 5*time.Millisecond)
		sched.FireAll()
	}()
	window, err = api.LoadOlder("busy")
	require.NoError(t, err)
	assert.Len(t, window.Messages, 25)

	window, err = api.ClearHistory("busy")
	require.NoError(t, err)
	require.Len(t, window.Messages, 1)
	assert.Equal(t, chatroom.WelcomeText, window.Messages[0].Text)
}

func TestImageDataURL(t *testing.T) {
	url, err := ImageDataURL(writePNG(t))
	require.NoError(t, err)
	assert.Contains(t, url, "data:image/png;base64,")

	text := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("just words"), 0o600))
	_, err = ImageDataURL(text)
	assert.ErrorIs(t, err, dto.ErrNotImage)

	_, err = ImageDataURL(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestParseInput(t *testing.T) {
	img := writePNG(t)

	tests := []struct {
		name     string
		line     string
		wantType websocket.MessageType
		wantText string
		quit     bool
		wantNil  bool
	}{
		{name: "blank", line: "   ", wantNil: true},
		{name: "quit", line: "/quit", quit: true, wantNil: true},
		{name: "older", line: "/older", wantType: websocket.TypeOlder},
		{name: "chat", line: " hi there ", wantType: websocket.TypeChat, wantText: "hi there"},
		{name: "image with caption", line: "/image " + img + " look", wantType: websocket.TypeChat, wantText: "look"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, quit, err := ParseInput(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.quit, quit)
			if tt.wantNil {
				assert.Nil(t, frame)
				return
			}
			require.NotNil(t, frame)
			assert.Equal(t, tt.wantType, frame.Type)
			assert.Equal(t, tt.wantText, frame.Content)
		})
	}

	_, _, err := ParseInput("/image /does/not/exist.png")
	assert.Error(t, err)
}

func TestWSURL(t *testing.T) {
	got, err := wsURL("http://localhost:8080", "room-1")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws/chatrooms/room-1", got)

	got, err = wsURL("https://chat.example.test/base/", "r")
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.test/base/ws/chatrooms/r", got)
}

func TestPrintMessage(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	PrintMessage(&buf, &websocket.Message{
		Type:    websocket.TypeChat,
		Message: &dto.MessageResponse{Sender: "assistant", Text: "Gemini: ih"},
	})
	PrintMessage(&buf, &websocket.Message{
		Type:  websocket.TypeTyping,
		State: &chatroom.ViewState{IsAwaitingReply: true},
	})
	PrintMessage(&buf, &websocket.Message{Type: websocket.TypeSystem, Content: "messages could not be saved"})

	out := buf.String()
	assert.Contains(t, out, "Gemini: ih")
	assert.Contains(t, out, "Gemini is typing...")
	assert.Contains(t, out, "messages could not be saved")
}
