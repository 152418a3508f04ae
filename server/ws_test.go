package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btfinch/email-game-public/mailbox"
)

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

// expectClose reads until the peer closes and returns the close code, or -1
// if the connection ended without a close frame.
func expectClose(t *testing.T, ws *websocket.Conn) int {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		if closeErr, ok := err.(*websocket.CloseError); ok {
			return closeErr.Code
		}
		return -1
	}
}

func TestWebsocketPushesStoredMessages(t *testing.T) {
	s, handler := newTestServer(t, 4)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	token := registerAgent(t, handler, "alice")
	bobToken := registerAgent(t, handler, "bob")

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/alice?token="+token), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool {
		return len(s.connections.ConnectedAgents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec := doJSON(t, handler, http.MethodPost, "/send_message", bobToken, map[string]string{
		"to": "alice", "subject": "realtime", "body": "pushed",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg mailbox.Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "bob", msg.From)
	assert.Equal(t, "realtime", msg.Subject)
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	_, handler := newTestServer(t, 4)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/alice"), nil)
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, closeUnauthorized, expectClose(t, ws))
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	_, handler := newTestServer(t, 4)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/alice?token=garbage"), nil)
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, closeUnauthorized, expectClose(t, ws))
}

func TestWebsocketRejectsMismatchedAgent(t *testing.T) {
	_, handler := newTestServer(t, 4)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	token := registerAgent(t, handler, "alice")

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/bob?token="+token), nil)
	require.NoError(t, err)
	defer ws.Close()

	assert.Equal(t, closeForbidden, expectClose(t, ws))
}

func TestWebsocketDisconnectLeavesQueue(t *testing.T) {
	s, handler := newTestServer(t, 4)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	token := registerAgent(t, handler, "alice")

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/alice?token="+token), nil)
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/join_queue", token, map[string]string{"agent_id": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, s.queue.Len())

	ws.Close()

	require.Eventually(t, func() bool {
		return s.queue.Len() == 0
	}, 2*time.Second, 10*time.Millisecond, "disconnect never removed agent from queue")
}
