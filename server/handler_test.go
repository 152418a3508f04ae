package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btfinch/email-game-public/crypto"
	"github.com/btfinch/email-game-public/game"
	"github.com/btfinch/email-game-public/metrics"
	"github.com/btfinch/email-game-public/testutil"
)

func newTestServer(t *testing.T, quorum int) (*Server, http.Handler) {
	t.Helper()

	cfg := game.DefaultConfig()
	cfg.NumAgents = quorum
	cfg.RequestsPerAgent = 1
	cfg.ResultsDir = t.TempDir()

	m, err := metrics.New("inbox_arena_test", "")
	require.NoError(t, err)

	s, err := New(testutil.NewDiscardLogger(), cfg, "test-secret", m.Metrics)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return s, r
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func registerAgent(t *testing.T, handler http.Handler, agentID string) string {
	t.Helper()

	priv, err := testutil.GenerateTestKeyPair()
	require.NoError(t, err)
	pem, err := crypto.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/register_agent", "", map[string]string{
		"agent_id":       agentID,
		"rsa_public_key": pem,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterAgent(t *testing.T) {
	_, handler := newTestServer(t, 4)

	token := registerAgent(t, handler, "alice")
	assert.NotEmpty(t, token)

	// Same id again conflicts.
	priv, err := testutil.GenerateTestKeyPair()
	require.NoError(t, err)
	pem, err := crypto.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/register_agent", "", map[string]string{
		"agent_id":       "alice",
		"rsa_public_key": pem,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterAgentRejectsBadInput(t *testing.T) {
	_, handler := newTestServer(t, 4)

	rec := doJSON(t, handler, http.MethodPost, "/register_agent", "", map[string]string{
		"agent_id":       "moderator",
		"rsa_public_key": "irrelevant",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/register_agent", "", map[string]string{
		"agent_id":       "mallory",
		"rsa_public_key": "not a pem key",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/register_agent", "", map[string]string{
		"agent_id":       "bad agent!",
		"rsa_public_key": "irrelevant",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageRequiresToken(t *testing.T) {
	_, handler := newTestServer(t, 4)

	rec := doJSON(t, handler, http.MethodPost, "/send_message", "", map[string]string{
		"to": "bob", "subject": "hi", "body": "hello",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/send_message", "garbage-token", map[string]string{
		"to": "bob", "subject": "hi", "body": "hello",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendAndReceiveMessage(t *testing.T) {
	_, handler := newTestServer(t, 4)
	aliceToken := registerAgent(t, handler, "alice")
	registerAgent(t, handler, "bob")

	rec := doJSON(t, handler, http.MethodPost, "/send_message", aliceToken, map[string]string{
		"to": "bob", "subject": "greetings", "body": "hello bob",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := decodeBody(t, rec)
	assert.Equal(t, "sent", sent["status"])
	messageID, _ := sent["message_id"].(string)
	require.NotEmpty(t, messageID)

	// Inbox fetch advances sent to delivered.
	rec = doJSON(t, handler, http.MethodGet, "/get_messages/bob", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := decodeBody(t, rec)
	assert.Equal(t, float64(1), inbox["count"])
	messages := inbox["messages"].([]any)
	first := messages[0].(map[string]any)
	assert.Equal(t, "alice", first["from"])
	assert.Equal(t, "delivered", first["status"])

	// Sender's outbox still shows the original status.
	rec = doJSON(t, handler, http.MethodGet, "/get_sent/alice", "", nil)
	outbox := decodeBody(t, rec)
	assert.Equal(t, float64(1), outbox["count"])

	rec = doJSON(t, handler, http.MethodPut, "/mark_read/"+messageID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/message_status/"+messageID, "", nil)
	status := decodeBody(t, rec)
	assert.Equal(t, "read", status["status"])
}

func TestSendMessageRejectsInvalidRecipient(t *testing.T) {
	_, handler := newTestServer(t, 4)
	token := registerAgent(t, handler, "alice")

	for _, to := range []string{"", "bad agent", "x/../y", string(make([]byte, 60))} {
		rec := doJSON(t, handler, http.MethodPost, "/send_message", token, map[string]string{
			"to": to, "subject": "s", "body": "b",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "recipient %q", to)
	}

	// The moderator is always a valid recipient.
	rec := doJSON(t, handler, http.MethodPost, "/send_message", token, map[string]string{
		"to": "moderator", "subject": "submission", "body": "{}",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendBatch(t *testing.T) {
	_, handler := newTestServer(t, 4)
	token := registerAgent(t, handler, "alice")

	rec := doJSON(t, handler, http.MethodPost, "/send_batch", token, map[string]any{
		"messages": []map[string]string{
			{"to": "bob", "subject": "s1", "body": "b1"},
			{"to": "carol", "subject": "s2", "body": "b2"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["messages_sent"])
	assert.Len(t, body["results"].([]any), 2)

	// One bad recipient rejects the whole batch before storing anything.
	rec = doJSON(t, handler, http.MethodPost, "/send_batch", token, map[string]any{
		"messages": []map[string]string{
			{"to": "bob", "subject": "s", "body": "b"},
			{"to": "not valid!", "subject": "s", "body": "b"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/get_all_messages", "", nil)
	all := decodeBody(t, rec)
	assert.Equal(t, float64(2), all["count"])
}

func TestConversationEndpoint(t *testing.T) {
	_, handler := newTestServer(t, 4)
	aliceToken := registerAgent(t, handler, "alice")
	bobToken := registerAgent(t, handler, "bob")

	doJSON(t, handler, http.MethodPost, "/send_message", aliceToken, map[string]string{
		"to": "bob", "subject": "ping", "body": "1",
	})
	doJSON(t, handler, http.MethodPost, "/send_message", bobToken, map[string]string{
		"to": "alice", "subject": "pong", "body": "2",
	})

	rec := doJSON(t, handler, http.MethodGet, "/get_conversation/alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decodeBody(t, rec)
	assert.Equal(t, float64(2), conv["count"])
}

func TestJoinQueue(t *testing.T) {
	_, handler := newTestServer(t, 4)
	aliceToken := registerAgent(t, handler, "alice")

	// Token subject must match the payload agent.
	rec := doJSON(t, handler, http.MethodPost, "/join_queue", aliceToken, map[string]string{"agent_id": "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/join_queue", aliceToken, map[string]string{"agent_id": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["position"])

	rec = doJSON(t, handler, http.MethodPost, "/join_queue", aliceToken, map[string]string{"agent_id": "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/queue_status", "", nil)
	status := decodeBody(t, rec)
	assert.Equal(t, float64(1), status["queue_length"])
	assert.Equal(t, false, status["game_in_progress"])

	rec = doJSON(t, handler, http.MethodPost, "/leave_queue", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["removed"])
}

func TestQueueAutoStartsGame(t *testing.T) {
	s, handler := newTestServer(t, 2)
	s.cfg.NumRounds = 1
	s.cfg.RoundDuration = 10 * time.Millisecond
	s.cfg.InstructionGrace = time.Millisecond

	for _, id := range []string{"alice", "bob"} {
		token := registerAgent(t, handler, id)
		rec := doJSON(t, handler, http.MethodPost, "/join_queue", token, map[string]string{"agent_id": id})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Eventually(t, func() bool {
		return !s.queue.InProgress()
	}, 5*time.Second, 20*time.Millisecond, "game never finished")

	rec := doJSON(t, handler, http.MethodGet, "/session_results", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	files := decodeBody(t, rec)["files"].([]any)
	require.Len(t, files, 1)

	filename := files[0].(map[string]any)["filename"].(string)
	rec = doJSON(t, handler, http.MethodGet, "/session_results/"+filename, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["total_rounds"])
}

func TestSessionResultEndpointValidation(t *testing.T) {
	_, handler := newTestServer(t, 4)

	rec := doJSON(t, handler, http.MethodGet, "/session_results", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["files"])

	rec = doJSON(t, handler, http.MethodGet, "/session_results/notes.txt", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/session_results/session_missing.json", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearState(t *testing.T) {
	_, handler := newTestServer(t, 4)
	token := registerAgent(t, handler, "alice")
	doJSON(t, handler, http.MethodPost, "/send_message", token, map[string]string{
		"to": "bob", "subject": "s", "body": "b",
	})

	rec := doJSON(t, handler, http.MethodPost, "/clear_state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, float64(0), decodeBody(t, rec)["message_count"])

	// The id can register again after the wipe.
	registerAgent(t, handler, "alice")
}

func TestRootEndpoint(t *testing.T) {
	_, handler := newTestServer(t, 4)
	registerAgent(t, handler, "alice")

	rec := doJSON(t, handler, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, float64(1), body["registered_agents"])
}

func TestMarkReadUnknownMessage(t *testing.T) {
	_, handler := newTestServer(t, 4)

	rec := doJSON(t, handler, http.MethodPut, "/mark_read/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/message_status/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
