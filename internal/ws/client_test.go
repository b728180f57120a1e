package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/config"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 1024,
		SendBuffer:     1,
	}
}

func TestClientEchoesThroughPumps(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient("srv", conn, testWSConfig())
		go c.WritePump()
		c.ReadPump(func(msg []byte) { _ = c.Send(msg) })
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte("hello")))
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := peer.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestClientSendNeverBlocks(t *testing.T) {
	c := &Client{id: "x", send: make(chan []byte, 1), done: make(chan struct{})}

	assert.NoError(t, c.Send([]byte("1")))
	assert.ErrorIs(t, c.Send([]byte("2")), ErrSendBufferFull)

	close(c.done)
	assert.ErrorIs(t, c.Send([]byte("3")), ErrClosed)
}
