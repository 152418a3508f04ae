package mailbox

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// outboundBuffer bounds the per-connection push backlog. A connection that
// cannot drain this many messages is considered dead and pruned.
const outboundBuffer = 64

// connection pairs a websocket with its bounded outbound channel. A
// dedicated writer loop drains the channel so push callers never block on a
// slow peer.
type connection struct {
	ws       *websocket.Conn
	outbound chan Message
	closed   chan struct{}
}

// ConnectionManager tracks live push connections per agent and fans stored
// messages out to them.
type ConnectionManager struct {
	log *slog.Logger

	mu     sync.RWMutex
	active map[string]map[*connection]struct{}

	// onDisconnect runs once per connection after it is removed, with the
	// agent id. The server uses it to drop the agent from the waiting queue.
	onDisconnect func(agentID string)
}

// NewConnectionManager creates an empty connection registry.
func NewConnectionManager(log *slog.Logger) *ConnectionManager {
	if log == nil {
		log = slog.Default()
	}
	return &ConnectionManager{
		log:    log,
		active: make(map[string]map[*connection]struct{}),
	}
}

// SetDisconnectHandler installs the callback invoked when a connection
// drops. Must be called before connections are added.
func (m *ConnectionManager) SetDisconnectHandler(fn func(agentID string)) {
	m.onDisconnect = fn
}

// Add admits an already-authenticated websocket for agentID, starts its
// writer and liveness loops, and blocks until the connection drops.
func (m *ConnectionManager) Add(agentID string, ws *websocket.Conn) {
	conn := &connection{
		ws:       ws,
		outbound: make(chan Message, outboundBuffer),
		closed:   make(chan struct{}),
	}

	m.mu.Lock()
	set, ok := m.active[agentID]
	if !ok {
		set = make(map[*connection]struct{})
		m.active[agentID] = set
	}
	set[conn] = struct{}{}
	m.mu.Unlock()

	m.log.Debug("websocket connected", "agent", agentID)

	go m.writeLoop(agentID, conn)
	m.readLoop(agentID, conn)
}

// writeLoop drains the outbound channel into the websocket until the
// connection closes or a write fails.
func (m *ConnectionManager) writeLoop(agentID string, conn *connection) {
	for {
		select {
		case <-conn.closed:
			return
		case msg := <-conn.outbound:
			if err := conn.ws.WriteJSON(msg); err != nil {
				m.log.Debug("websocket write failed, pruning", "agent", agentID, "err", err)
				m.remove(agentID, conn)
				return
			}
		}
	}
}

// readLoop consumes inbound frames for liveness only; agents are not
// expected to send payloads. Returns when the peer disconnects.
func (m *ConnectionManager) readLoop(agentID string, conn *connection) {
	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			break
		}
	}
	m.remove(agentID, conn)
}

// remove drops a connection from the registry, closes it, and fires the
// disconnect callback exactly once per connection.
func (m *ConnectionManager) remove(agentID string, conn *connection) {
	m.mu.Lock()
	set, ok := m.active[agentID]
	if ok {
		if _, present := set[conn]; !present {
			ok = false
		}
		delete(set, conn)
		if len(set) == 0 {
			delete(m.active, agentID)
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	close(conn.closed)
	conn.ws.Close()
	m.log.Debug("websocket disconnected", "agent", agentID)

	if m.onDisconnect != nil {
		m.onDisconnect(agentID)
	}
}

// Notify enqueues a message on every live connection for the recipient.
// Never blocks: a full outbound channel marks the connection dead and it is
// pruned. Implements the store's Notifier.
func (m *ConnectionManager) Notify(to string, msg Message) {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.active[to]))
	for conn := range m.active[to] {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		select {
		case conn.outbound <- msg:
		default:
			m.log.Debug("push backlog full, pruning connection", "agent", to)
			go m.remove(to, conn)
		}
	}
}

// ConnectedAgents lists agents with at least one live connection.
func (m *ConnectionManager) ConnectedAgents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]string, 0, len(m.active))
	for agentID := range m.active {
		agents = append(agents, agentID)
	}
	return agents
}
