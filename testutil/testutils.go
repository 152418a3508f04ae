package testutil

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/btfinch/email-game-public/crypto"
	"github.com/btfinch/email-game-public/game"
	"github.com/btfinch/email-game-public/mailbox"
)

// NewDiscardLogger returns a logger that drops everything. Tests that assert
// on behavior rather than output use it to keep test runs quiet.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =====================================
// Key Generators
// =====================================

// GenerateTestKeyPair generates an RSA key pair for testing.
func GenerateTestKeyPair() (*rsa.PrivateKey, error) {
	return crypto.GenerateKeyPair()
}

// GenerateTestKeyRing generates one key pair per agent id.
func GenerateTestKeyRing(agentIDs ...string) (map[string]*rsa.PrivateKey, error) {
	ring := make(map[string]*rsa.PrivateKey, len(agentIDs))
	for _, id := range agentIDs {
		priv, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generate key for %s: %w", id, err)
		}
		ring[id] = priv
	}
	return ring, nil
}

// KeyRing exposes a map of private keys as a public-key directory, the shape
// the scoring engine consumes.
type KeyRing map[string]*rsa.PrivateKey

func (r KeyRing) PublicKey(agentID string) (*rsa.PublicKey, bool) {
	priv, ok := r[agentID]
	if !ok {
		return nil, false
	}
	return &priv.PublicKey, true
}

// =====================================
// Submission Generators
// =====================================

// SignatureOption mutates a generated signature entry, used to build
// deliberately broken submissions.
type SignatureOption func(*game.SignedMessage)

// WithSignatureType overrides the signature type label.
func WithSignatureType(sigType string) SignatureOption {
	return func(sm *game.SignedMessage) {
		sm.SignatureType = sigType
	}
}

// WithTamperedTimestamp shifts the timestamp after signing so verification
// fails.
func WithTamperedTimestamp() SignatureOption {
	return func(sm *game.SignedMessage) {
		sm.Timestamp = time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	}
}

// WithSignedFor overrides the signed_for field after signing.
func WithSignedFor(agentID string) SignatureOption {
	return func(sm *game.SignedMessage) {
		sm.SignedFor = agentID
	}
}

// NewSignedMessage produces a signature entry by signer over message for
// submitter, valid unless options break it.
func NewSignedMessage(signerKey *rsa.PrivateKey, signer, submitter, message string, options ...SignatureOption) (game.SignedMessage, error) {
	ts := time.Now().UTC().Format(time.RFC3339)
	sig, err := crypto.Sign(signerKey, message, signer, submitter, ts)
	if err != nil {
		return game.SignedMessage{}, err
	}

	sm := game.SignedMessage{
		OriginalMessage: message,
		Signature:       sig,
		Signer:          signer,
		SignedFor:       submitter,
		Timestamp:       ts,
		SignatureType:   crypto.SignatureTypePSS,
	}
	for _, option := range options {
		option(&sm)
	}
	return sm, nil
}

// NewSubmissionMessage wraps signature entries in a submission envelope
// addressed to the moderator, as an agent would send it.
func NewSubmissionMessage(submitter string, signatures ...game.SignedMessage) (mailbox.Message, error) {
	body, err := json.Marshal(game.SubmissionEnvelope{
		SubmissionType: "signature",
		Submitter:      submitter,
		Signatures:     signatures,
	})
	if err != nil {
		return mailbox.Message{}, err
	}
	return mailbox.Message{
		From:    submitter,
		To:      game.Moderator,
		Subject: "Signature Submission",
		Body:    string(body),
	}, nil
}
