package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Close codes in the application range, mirroring HTTP 401/403.
const (
	closeUnauthorized = 4401
	closeForbidden    = 4403
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Agents connect from scripts and local dashboards; origin checks add
	// nothing for bearer-token auth.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebsocket upgrades /ws/{agent_id} and streams stored messages to the
// agent in real time. Auth is a JWT in the token query param; the token
// subject must match the path agent. The connection also stands in for
// presence: dropping it removes the agent from the waiting queue.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		closeWith(ws, closeUnauthorized, "missing token")
		return
	}

	subject, err := s.issuer.Verify(token)
	if err != nil {
		closeWith(ws, closeUnauthorized, "invalid token")
		return
	}
	if subject != agentID {
		closeWith(ws, closeForbidden, "token does not match agent")
		return
	}

	s.metrics.WebsocketConnects.Inc()

	// Blocks for the life of the connection; chi runs handlers on their own
	// goroutines so this is fine.
	s.connections.Add(agentID, ws)
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	ws.Close()
}
