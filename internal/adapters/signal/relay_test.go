package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtcmesh/voice/internal/core"
)

func startEchoRelay(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRelayRoundTrip(t *testing.T) {
	url := startEchoRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := Dial(ctx, url)
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var got [][]byte
	c.Run(ctx, func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, append([]byte(nil), data...))
	})

	require.NoError(t, c.TrySend(core.Frame(`{"type":"voice_join"}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.JSONEq(t, `{"type":"voice_join"}`, string(got[0]))
	mu.Unlock()
}

func TestRelayBackpressure(t *testing.T) {
	url := startEchoRelay(t)

	// No Run: nothing drains the send queue.
	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < cap(c.send); i++ {
		require.NoError(t, c.TrySend(core.Frame("x")))
	}
	assert.ErrorIs(t, c.TrySend(core.Frame("x")), ErrBackpressure)
}

func TestRelayCloseIdempotent(t *testing.T) {
	url := startEchoRelay(t)

	c, err := Dial(context.Background(), url)
	require.NoError(t, err)

	c.Close()
	assert.NotPanics(t, c.Close)
	assert.ErrorIs(t, c.TrySend(core.Frame("x")), ErrChannelClosed)
}
