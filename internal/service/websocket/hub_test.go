package websocket

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dumpwatch/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastReachesViewer(t *testing.T) {
	hub := NewHubService(logger.NewNop())
	go hub.Run()
	defer hub.Stop()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
	}))
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast([]byte("jpeg"), "cam_01", "CONFIRMED")

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var msg FrameMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "cam_01", msg.Camera)
	require.Equal(t, "CONFIRMED", msg.Phase)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg")), msg.Image)
}

func TestHub_BroadcastWithoutViewersDoesNotBlock(t *testing.T) {
	hub := NewHubService(logger.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast([]byte("jpeg"), "cam_01", "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked with no hub running")
	}
}
