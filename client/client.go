// Package client is a typed HTTP and websocket client for the arena server.
// It wraps the full agent-facing API: registration, mailbox operations, the
// matchmaking queue, session results, and the real-time push channel.
package client

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btfinch/email-game-public/crypto"
	"github.com/btfinch/email-game-public/game"
	"github.com/btfinch/email-game-public/mailbox"
)

// Client talks to one arena server on behalf of one agent. Register must be
// called before any authenticated operation; it stores the bearer token on
// the client.
type Client struct {
	baseURL    string
	agentID    string
	privateKey *rsa.PrivateKey
	token      string
	httpClient *http.Client
}

// New creates a client for agentID against baseURL. The private key is used
// to register the matching public key and to sign messages for scoring
// submissions.
func New(baseURL, agentID string, privateKey *rsa.PrivateKey) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		agentID:    agentID,
		privateKey: privateKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AgentID returns the identity this client acts as.
func (c *Client) AgentID() string { return c.agentID }

// Token returns the bearer token obtained at registration, empty before
// Register succeeds.
func (c *Client) Token() string { return c.token }

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed (%d): %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Register registers the agent's public key and stores the returned token
// for subsequent authenticated calls.
func (c *Client) Register(ctx context.Context) error {
	pem, err := crypto.EncodePublicKey(&c.privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	err = c.doJSON(ctx, http.MethodPost, "/register_agent", map[string]string{
		"agent_id":       c.agentID,
		"rsa_public_key": pem,
	}, &resp)
	if err != nil {
		return err
	}

	c.token = resp.Token
	return nil
}

// SendResult reports a single accepted message.
type SendResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// Send delivers one message immediately.
func (c *Client) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	var resp SendResult
	err := c.doJSON(ctx, http.MethodPost, "/send_message", map[string]string{
		"to": to, "subject": subject, "body": body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendQueued is the burst-friendly send variant; the message is stored the
// same way but the response reports the pre-delivery status.
func (c *Client) SendQueued(ctx context.Context, to, subject, body string) (*SendResult, error) {
	var resp SendResult
	err := c.doJSON(ctx, http.MethodPost, "/send_message_queued", map[string]string{
		"to": to, "subject": subject, "body": body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendBatch delivers several messages in one request. The server rejects the
// whole batch if any recipient is invalid.
func (c *Client) SendBatch(ctx context.Context, entries []mailbox.BatchEntry) ([]mailbox.BatchResult, error) {
	var resp struct {
		Success      bool                  `json:"success"`
		MessagesSent int                   `json:"messages_sent"`
		Results      []mailbox.BatchResult `json:"results"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/send_batch", map[string]any{
		"messages": entries,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

type messagesResponse struct {
	Success  bool              `json:"success"`
	AgentID  string            `json:"agent_id"`
	Messages []mailbox.Message `json:"messages"`
	Count    int               `json:"count"`
}

// Inbox fetches the agent's received messages; fetching advances their
// status to delivered.
func (c *Client) Inbox(ctx context.Context) ([]mailbox.Message, error) {
	var resp messagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/get_messages/"+c.agentID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Outbox fetches the messages the agent has sent.
func (c *Client) Outbox(ctx context.Context) ([]mailbox.Message, error) {
	var resp messagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/get_sent/"+c.agentID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Conversation fetches all traffic the agent took part in, sent or received.
func (c *Client) Conversation(ctx context.Context) ([]mailbox.Message, error) {
	var resp messagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/get_conversation/"+c.agentID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// MarkRead marks a received message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.doJSON(ctx, http.MethodPut, "/mark_read/"+messageID, nil, nil)
}

// MessageStatus reports the delivery status of a message.
func (c *Client) MessageStatus(ctx context.Context, messageID string) (string, error) {
	var resp struct {
		Success   bool   `json:"success"`
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/message_status/"+messageID, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// JoinQueue enters the matchmaking queue and returns the agent's position.
func (c *Client) JoinQueue(ctx context.Context) (int, error) {
	var resp struct {
		Success  bool `json:"success"`
		Position int  `json:"position"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/join_queue", map[string]string{
		"agent_id": c.agentID,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Position, nil
}

// LeaveQueue removes the agent from the matchmaking queue. Returns whether
// the agent was actually waiting.
func (c *Client) LeaveQueue(ctx context.Context) (bool, error) {
	var resp struct {
		Success bool `json:"success"`
		Removed bool `json:"removed"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/leave_queue", nil, &resp); err != nil {
		return false, err
	}
	return resp.Removed, nil
}

// QueueStatus is the matchmaking snapshot exposed by the server.
type QueueStatus struct {
	QueueLength     int      `json:"queue_length"`
	AgentsWaiting   []string `json:"agents_waiting"`
	ConnectedAgents []string `json:"connected_agents"`
	GameInProgress  bool     `json:"game_in_progress"`
}

// GetQueueStatus fetches the current matchmaking snapshot.
func (c *Client) GetQueueStatus(ctx context.Context) (*QueueStatus, error) {
	var resp QueueStatus
	if err := c.doJSON(ctx, http.MethodGet, "/queue_status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionResults lists the persisted session result files, newest first.
func (c *Client) SessionResults(ctx context.Context) ([]game.ResultFile, error) {
	var resp struct {
		Success bool              `json:"success"`
		Files   []game.ResultFile `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/session_results", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// SessionResult loads one persisted session result by filename.
func (c *Client) SessionResult(ctx context.Context, filename string) (*game.SessionResult, error) {
	var resp struct {
		Success bool                `json:"success"`
		Data    *game.SessionResult `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/session_results/"+filename, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Health reports server liveness and the stored message count.
func (c *Client) Health(ctx context.Context) (int, error) {
	var resp struct {
		Status       string `json:"status"`
		MessageCount int    `json:"message_count"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return 0, err
	}
	return resp.MessageCount, nil
}
