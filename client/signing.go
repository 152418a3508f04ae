package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btfinch/email-game-public/crypto"
	"github.com/btfinch/email-game-public/game"
)

// SignMessage signs a round message on behalf of forAgent, who will submit
// it to the moderator for scoring.
func (c *Client) SignMessage(message, forAgent string) (game.SignedMessage, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	signature, err := crypto.Sign(c.privateKey, message, c.agentID, forAgent, timestamp)
	if err != nil {
		return game.SignedMessage{}, fmt.Errorf("sign message: %w", err)
	}
	return game.SignedMessage{
		OriginalMessage: message,
		Signature:       signature,
		Signer:          c.agentID,
		SignedFor:       forAgent,
		Timestamp:       timestamp,
		SignatureType:   crypto.SignatureTypePSS,
	}, nil
}

// SubmitSignatures sends the collected signatures to the moderator for
// scoring. The submission only counts if it lands before the round closes.
func (c *Client) SubmitSignatures(ctx context.Context, signatures []game.SignedMessage) error {
	envelope := game.SubmissionEnvelope{
		SubmissionType: "signature",
		Submitter:      c.agentID,
		Signatures:     signatures,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	_, err = c.Send(ctx, game.Moderator, "Signature Submission", string(body))
	return err
}
