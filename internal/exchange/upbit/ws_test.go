package upbit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func wsTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoServer upgrades and drains the connection without writing back, so
// every frame the client sends is accepted.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetPingHandler(func(string) error { return nil })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestSubscribeInterleavesWithPings(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewWSClient(wsURL, time.Millisecond, wsTestLogger())
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	// Subscription writes race the ping loop's unless both hold the
	// connection mutex; the race detector flags any overlap.
	for i := 0; i < 50; i++ {
		require.NoError(t, client.Subscribe([]string{"KRW-BTC", "KRW-ETH"}))
	}
}

func TestSubscribeRequiresConnection(t *testing.T) {
	client := NewWSClient("ws://unused", time.Second, wsTestLogger())
	require.Error(t, client.Subscribe([]string{"KRW-BTC"}))
}
