package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/btfinch/email-game-public/mailbox"
)

// Connection is a live push channel from the server. Messages sent to the
// agent are delivered on Messages as they are stored; the channel closes
// when the connection drops.
type Connection struct {
	ws       *websocket.Conn
	messages chan mailbox.Message
}

// Messages streams pushed messages until the connection closes.
func (c *Connection) Messages() <-chan mailbox.Message { return c.messages }

// Close tears down the websocket. The server treats this as the agent going
// offline and removes it from the matchmaking queue.
func (c *Connection) Close() error { return c.ws.Close() }

// Connect opens the real-time push channel. Register must have succeeded
// first; the stored token authenticates the connection.
func (c *Client) Connect(ctx context.Context) (*Connection, error) {
	if c.token == "" {
		return nil, fmt.Errorf("connect: not registered")
	}

	wsBase := strings.Replace(c.baseURL, "http", "ws", 1)
	url := fmt.Sprintf("%s/ws/%s?token=%s", wsBase, c.agentID, c.token)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect websocket: %w", err)
	}

	conn := &Connection{
		ws:       ws,
		messages: make(chan mailbox.Message, 16),
	}
	go conn.readLoop()
	return conn, nil
}

func (c *Connection) readLoop() {
	defer close(c.messages)
	for {
		var msg mailbox.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}
		c.messages <- msg
	}
}
