package wsrouter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	N int `json:"n"`
}

func newTestServer(t *testing.T, r *WSRouter) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = r.ServeConn(context.Background(), conn)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	return conn
}

func TestRouterDecodesPayloadAndRunsMiddleware(t *testing.T) {
	r := New()
	var seenType string
	r.Use(func(next HandlerFunc[any]) HandlerFunc[any] {
		return func(ctx context.Context, conn *websocket.Conn, payload any) error {
			seenType = GetMessageTypeFromCtx(ctx)
			return next(ctx, conn, payload)
		}
	})
	Handle(r, "ECHO", func(_ context.Context, conn *websocket.Conn, in echoInput) error {
		return conn.WriteJSON(map[string]any{"type": "ECHOED", "n": in.N, "seen": seenType})
	})

	conn := newTestServer(t, r)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ECHO", "payload": map[string]any{"n": 7}}))

	var out struct {
		Type string `json:"type"`
		N    int    `json:"n"`
		Seen string `json:"seen"`
	}
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "ECHOED", out.Type)
	assert.Equal(t, 7, out.N)
	assert.Equal(t, "ECHO", out.Seen)
}

func TestRouterReportsUnknownTypeAndKeepsServing(t *testing.T) {
	r := New()
	r.SetErrorHandler(func(_ context.Context, conn *websocket.Conn, err error) {
		_ = conn.WriteJSON(map[string]any{"type": "ERROR", "unknown": errors.Is(err, ErrUnknownMessageType)})
	})
	Handle(r, "ALIVE", func(_ context.Context, conn *websocket.Conn, _ struct{}) error {
		return conn.WriteJSON(map[string]any{"type": "OK"})
	})

	conn := newTestServer(t, r)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "NOPE"}))

	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "ERROR", out["type"])
	assert.Equal(t, true, out["unknown"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ALIVE"}))
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "OK", out["type"])
}

func TestRouterReportsDecodeErrors(t *testing.T) {
	r := New()
	errCh := make(chan error, 1)
	r.SetErrorHandler(func(_ context.Context, _ *websocket.Conn, err error) {
		errCh <- err
	})
	Handle(r, "ECHO", func(context.Context, *websocket.Conn, echoInput) error {
		return nil
	})

	conn := newTestServer(t, r)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ECHO", "payload": map[string]any{"n": "seven"}}))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrInvalidPayload)
		assert.ErrorContains(t, err, "failed to decode ECHO payload")
	case <-time.After(5 * time.Second):
		t.Fatal("error handler was not called")
	}
}
