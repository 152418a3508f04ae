package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btfinch/email-game-public/crypto"
	"github.com/btfinch/email-game-public/game"
	"github.com/btfinch/email-game-public/mailbox"
	"github.com/btfinch/email-game-public/metrics"
	"github.com/btfinch/email-game-public/server"
	"github.com/btfinch/email-game-public/testutil"
)

func newArenaServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := game.DefaultConfig()
	cfg.NumAgents = 10 // High quorum so tests never trip a game start.
	cfg.ResultsDir = t.TempDir()

	m, err := metrics.New("inbox_arena_test", "")
	require.NoError(t, err)

	s, err := server.New(testutil.NewDiscardLogger(), cfg, "test-secret", m.Metrics)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	r := chi.NewRouter()
	s.RegisterRoutes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func newRegisteredClient(t *testing.T, ts *httptest.Server, agentID string) *Client {
	t.Helper()

	key, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	c := New(ts.URL, agentID, key)
	require.NoError(t, c.Register(context.Background()))
	require.NotEmpty(t, c.Token())
	return c
}

func TestRegisterAndSend(t *testing.T) {
	ts := newArenaServer(t)
	ctx := context.Background()

	alice := newRegisteredClient(t, ts, "alice")
	bob := newRegisteredClient(t, ts, "bob")

	sent, err := alice.Send(ctx, "bob", "hello", "hi bob")
	require.NoError(t, err)
	assert.Equal(t, "sent", sent.Status)
	assert.NotEmpty(t, sent.MessageID)

	inbox, err := bob.Inbox(ctx)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "alice", inbox[0].From)
	assert.Equal(t, "hello", inbox[0].Subject)

	require.NoError(t, bob.MarkRead(ctx, sent.MessageID))
	status, err := bob.MessageStatus(ctx, sent.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "read", status)

	outbox, err := alice.Outbox(ctx)
	require.NoError(t, err)
	assert.Len(t, outbox, 1)
}

func TestRegisterTwiceFails(t *testing.T) {
	ts := newArenaServer(t)
	ctx := context.Background()

	newRegisteredClient(t, ts, "alice")

	key, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	dup := New(ts.URL, "alice", key)
	err = dup.Register(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestSendWithoutRegisterFails(t *testing.T) {
	ts := newArenaServer(t)

	key, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := New(ts.URL, "ghost", key)

	_, err = c.Send(context.Background(), "bob", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSendBatchAndConversation(t *testing.T) {
	ts := newArenaServer(t)
	ctx := context.Background()

	alice := newRegisteredClient(t, ts, "alice")
	bob := newRegisteredClient(t, ts, "bob")

	results, err := alice.SendBatch(ctx, []mailbox.BatchEntry{
		{To: "bob", Subject: "one", Body: "1"},
		{To: "carol", Subject: "two", Body: "2"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	_, err = bob.Send(ctx, "alice", "reply", "3")
	require.NoError(t, err)

	conv, err := alice.Conversation(ctx)
	require.NoError(t, err)
	assert.Len(t, conv, 3)

	count, err := alice.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestQueueLifecycle(t *testing.T) {
	ts := newArenaServer(t)
	ctx := context.Background()

	alice := newRegisteredClient(t, ts, "alice")
	bob := newRegisteredClient(t, ts, "bob")

	pos, err := alice.JoinQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = bob.JoinQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	_, err = alice.JoinQueue(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")

	status, err := alice.GetQueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.QueueLength)
	assert.Equal(t, []string{"alice", "bob"}, status.AgentsWaiting)
	assert.False(t, status.GameInProgress)

	removed, err := alice.LeaveQueue(ctx)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = alice.LeaveQueue(ctx)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSignAndSubmit(t *testing.T) {
	ts := newArenaServer(t)
	ctx := context.Background()

	alice := newRegisteredClient(t, ts, "alice")
	bob := newRegisteredClient(t, ts, "bob")

	// Bob signs alice's round message; alice submits it to the moderator.
	signed, err := bob.SignMessage("the quick brown fox", "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", signed.Signer)
	assert.Equal(t, "alice", signed.SignedFor)
	assert.Equal(t, crypto.SignatureTypePSS, signed.SignatureType)

	require.NoError(t, alice.SubmitSignatures(ctx, []game.SignedMessage{signed}))

	// The submission parses back into a valid envelope.
	conv, err := alice.Conversation(ctx)
	require.NoError(t, err)
	require.Len(t, conv, 1)
	assert.Equal(t, game.Moderator, conv[0].To)

	envelope, err := game.ParseSubmission(conv[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "alice", envelope.Submitter)
	require.Len(t, envelope.Signatures, 1)

	// And the signature verifies against bob's public key.
	sig := envelope.Signatures[0]
	err = crypto.Verify(&bob.privateKey.PublicKey,
		sig.OriginalMessage, sig.Signer, sig.SignedFor, sig.Timestamp, sig.Signature)
	assert.NoError(t, err)
}

func TestSessionResultsEmpty(t *testing.T) {
	ts := newArenaServer(t)

	alice := newRegisteredClient(t, ts, "alice")
	files, err := alice.SessionResults(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = alice.SessionResult(context.Background(), "bad.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestWebsocketPush(t *testing.T) {
	ts := newArenaServer(t)
	ctx := context.Background()

	alice := newRegisteredClient(t, ts, "alice")
	bob := newRegisteredClient(t, ts, "bob")

	conn, err := alice.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		status, err := alice.GetQueueStatus(ctx)
		return err == nil && len(status.ConnectedAgents) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = bob.Send(ctx, "alice", "realtime", "pushed")
	require.NoError(t, err)

	select {
	case msg := <-conn.Messages():
		assert.Equal(t, "bob", msg.From)
		assert.Equal(t, "realtime", msg.Subject)
	case <-time.After(2 * time.Second):
		t.Fatal("push never arrived")
	}
}

func TestConnectRequiresRegistration(t *testing.T) {
	ts := newArenaServer(t)

	key, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := New(ts.URL, "ghost", key)

	_, err = c.Connect(context.Background())
	require.Error(t, err)
}
