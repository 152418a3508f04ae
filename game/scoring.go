package game

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/btfinch/email-game-public/crypto"
	"github.com/btfinch/email-game-public/mailbox"
)

// KeyDirectory resolves a registered agent's public key. The server's agent
// registry implements it.
type KeyDirectory interface {
	PublicKey(agentID string) (*rsa.PublicKey, bool)
}

// SignedMessage is one signature entry inside a submission envelope.
// Immutable once created; produced by agents, consumed only here.
type SignedMessage struct {
	OriginalMessage string `json:"original_message"`
	Signature       string `json:"signature"`
	Signer          string `json:"signer"`
	SignedFor       string `json:"signed_for"`
	Timestamp       string `json:"timestamp"`
	SignatureType   string `json:"signature_type"`
}

// SubmissionEnvelope is the moderator-addressed claim by which an agent
// reports received signatures for scoring.
type SubmissionEnvelope struct {
	SubmissionType string          `json:"submission_type"`
	Submitter      string          `json:"submitter"`
	Signatures     []SignedMessage `json:"signatures"`
}

// ParseSubmission decodes and validates a submission body. Returns an error
// for anything other than a well-formed signature submission; callers treat
// the error as a silent skip, never a failure.
func ParseSubmission(body string) (*SubmissionEnvelope, error) {
	var env SubmissionEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("parse submission: %w", err)
	}
	if env.SubmissionType != "signature" {
		return nil, fmt.Errorf("submission_type %q is not \"signature\"", env.SubmissionType)
	}
	if env.Submitter == "" {
		return nil, errors.New("submission missing submitter")
	}
	return &env, nil
}

// RoundScoring holds everything the scoring pass needs for one round.
type RoundScoring struct {
	AgentIDs           []string
	RequestLists       map[string][]string
	SigningPermissions map[string][]string
	// AgentMessages maps each agent to its assigned message for the
	// current round. Anything else is a stale or replayed submission.
	AgentMessages map[string]string
}

// ScoreSubmissions runs the scoring filter pipeline over the moderator's
// inbox. Every check failure silently skips the entry; malformed or hostile
// input can never crash the pass or affect other entries. Returns the
// per-agent score deltas and the per-agent performance breakdown.
func ScoreSubmissions(log *slog.Logger, messages []mailbox.Message, round *RoundScoring, keys KeyDirectory) (map[string]int, map[string]*AgentPerformance) {
	if log == nil {
		log = slog.Default()
	}

	known := make(map[string]bool, len(round.AgentIDs))
	scores := make(map[string]int, len(round.AgentIDs))
	performance := make(map[string]*AgentPerformance, len(round.AgentIDs))
	for _, agentID := range round.AgentIDs {
		known[agentID] = true
		scores[agentID] = 0
		performance[agentID] = &AgentPerformance{
			SupposedToRequestFrom: round.RequestLists[agentID],
			AuthorizedToSignFor:   round.SigningPermissions[agentID],
		}
	}

	// A (submitter, signer) pair is scored at most once per round; the
	// first valid occurrence wins. Reset every round by construction.
	type pairKey struct{ submitter, signer string }
	processed := make(map[pairKey]bool)

	for _, msg := range messages {
		if !strings.Contains(strings.ToLower(msg.Subject), "submission") {
			continue
		}

		env, err := ParseSubmission(msg.Body)
		if err != nil {
			log.Debug("submission skipped", "from", msg.From, "err", err)
			continue
		}
		if !known[env.Submitter] {
			log.Debug("submission skipped: unknown submitter", "submitter", env.Submitter)
			continue
		}

		for _, signed := range env.Signatures {
			if !known[signed.Signer] {
				log.Debug("signature skipped: unknown signer", "signer", signed.Signer)
				continue
			}
			if env.Submitter != signed.SignedFor {
				log.Debug("signature skipped: submitter/signed_for mismatch",
					"submitter", env.Submitter, "signed_for", signed.SignedFor)
				continue
			}

			key := pairKey{env.Submitter, signed.Signer}
			if processed[key] {
				log.Debug("signature skipped: duplicate claim",
					"submitter", env.Submitter, "signer", signed.Signer)
				continue
			}

			// The assignment map only holds this round's messages, so a
			// signature earned in an earlier round fails this equality and
			// is never rescored.
			if signed.OriginalMessage != round.AgentMessages[env.Submitter] {
				log.Debug("signature skipped: message does not match current assignment",
					"submitter", env.Submitter, "signer", signed.Signer)
				continue
			}

			if signed.SignatureType != crypto.SignatureTypePSS {
				log.Debug("signature skipped: unsupported signature type",
					"signature_type", signed.SignatureType)
				continue
			}
			pub, ok := keys.PublicKey(signed.Signer)
			if !ok {
				log.Debug("signature skipped: no public key for signer", "signer", signed.Signer)
				continue
			}
			if err := crypto.Verify(pub, signed.OriginalMessage, signed.Signer,
				signed.SignedFor, signed.Timestamp, signed.Signature); err != nil {
				log.Debug("signature skipped: verification failed",
					"submitter", env.Submitter, "signer", signed.Signer)
				continue
			}

			wasAuthorized := contains(round.SigningPermissions[signed.Signer], env.Submitter)

			processed[key] = true

			scores[env.Submitter]++
			performance[env.Submitter].SubmissionPoints++
			performance[env.Submitter].SuccessfullySubmittedFor =
				append(performance[env.Submitter].SuccessfullySubmittedFor, signed.Signer)

			if wasAuthorized {
				scores[signed.Signer]++
				performance[signed.Signer].SigningPoints++
				performance[signed.Signer].SuccessfullySignedFor =
					append(performance[signed.Signer].SuccessfullySignedFor, env.Submitter)
			} else {
				scores[signed.Signer]--
				performance[signed.Signer].UnauthorizedSigningPenalties++
			}
		}
	}

	return scores, performance
}
