package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/btfinch/email-game-public/client"
	"github.com/btfinch/email-game-public/game"
	"github.com/btfinch/email-game-public/mailbox"
)

// Briefing markers in the moderator's round instructions.
const (
	messageMarker    = "You must get signatures for this EXACT message: "
	requestMarker    = "You must REQUEST signatures from these agents: "
	authorizedMarker = "You are AUTHORIZED to sign messages for these agents: "
	requestPrefix    = "Please sign this message for me: "
)

// briefing is the machine-readable part of a moderator round instruction.
type briefing struct {
	AssignedMessage string
	RequestFrom     []string
	AuthorizedFor   []string
}

// parseBriefing extracts the assigned message and the two agent lists from
// the briefing body.
func parseBriefing(body string) (*briefing, error) {
	quoted, err := extractLine(body, messageMarker)
	if err != nil {
		return nil, err
	}
	message, err := strconv.Unquote(quoted)
	if err != nil {
		return nil, fmt.Errorf("unquote assigned message: %w", err)
	}

	requestText, err := extractLine(body, requestMarker)
	if err != nil {
		return nil, err
	}
	authorizedText, err := extractLine(body, authorizedMarker)
	if err != nil {
		return nil, err
	}

	return &briefing{
		AssignedMessage: message,
		RequestFrom:     splitAgentList(requestText),
		AuthorizedFor:   splitAgentList(authorizedText),
	}, nil
}

func extractLine(body, marker string) (string, error) {
	idx := strings.Index(body, marker)
	if idx < 0 {
		return "", fmt.Errorf("briefing is missing %q", strings.TrimSpace(marker))
	}
	rest := body[idx+len(marker):]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), nil
}

// splitAgentList parses "a, b, c" and drops "none" and aliased entries,
// which name a description rather than an agent id.
func splitAgentList(text string) []string {
	if text == "none" {
		return nil
	}
	var agents []string
	for _, part := range strings.Split(text, ", ") {
		part = strings.TrimSpace(part)
		if part == "" || part == "none" || strings.Contains(part, "(") {
			continue
		}
		agents = append(agents, part)
	}
	return agents
}

// scriptedAgent plays rounds mechanically from moderator briefings.
type scriptedAgent struct {
	log    *slog.Logger
	client *client.Client

	mu        sync.Mutex
	round     *briefing
	collected []game.SignedMessage
}

func newScriptedAgent(log *slog.Logger, c *client.Client) *scriptedAgent {
	return &scriptedAgent{log: log, client: c}
}

// run consumes pushed messages until the channel closes or ctx is cancelled.
func (a *scriptedAgent) run(ctx context.Context, messages <-chan mailbox.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			a.handle(ctx, msg)
		}
	}
}

func (a *scriptedAgent) handle(ctx context.Context, msg mailbox.Message) {
	switch {
	case msg.From == game.Moderator && strings.Contains(msg.Subject, "Instructions"):
		a.handleBriefing(ctx, msg)
	case strings.HasPrefix(msg.Body, requestPrefix):
		a.handleSignatureRequest(ctx, msg)
	case msg.Subject == "Signed Message":
		a.handleSignedMessage(ctx, msg)
	default:
		a.log.Debug("ignoring message", "from", msg.From, "subject", msg.Subject)
	}
}

// handleBriefing resets the round state and fires signature requests at the
// request-list peers.
func (a *scriptedAgent) handleBriefing(ctx context.Context, msg mailbox.Message) {
	b, err := parseBriefing(msg.Body)
	if err != nil {
		a.log.Error("failed to parse briefing", "err", err)
		return
	}

	a.mu.Lock()
	a.round = b
	a.collected = nil
	a.mu.Unlock()

	a.log.Info("new round briefing",
		"message", b.AssignedMessage,
		"request_from", b.RequestFrom,
		"authorized_for", b.AuthorizedFor,
	)

	for _, peer := range b.RequestFrom {
		_, err := a.client.Send(ctx, peer, "Signature Request", requestPrefix+b.AssignedMessage)
		if err != nil {
			a.log.Warn("signature request failed", "peer", peer, "err", err)
		}
	}
}

// handleSignatureRequest signs the requested message if this agent is
// authorized for the requester and mails the signature back.
func (a *scriptedAgent) handleSignatureRequest(ctx context.Context, msg mailbox.Message) {
	a.mu.Lock()
	round := a.round
	a.mu.Unlock()
	if round == nil {
		a.log.Debug("request before any briefing, ignoring", "from", msg.From)
		return
	}

	authorized := false
	for _, peer := range round.AuthorizedFor {
		if peer == msg.From {
			authorized = true
			break
		}
	}
	if !authorized {
		a.log.Info("not authorized to sign, ignoring request", "from", msg.From)
		return
	}

	message := strings.TrimPrefix(msg.Body, requestPrefix)
	signed, err := a.client.SignMessage(message, msg.From)
	if err != nil {
		a.log.Error("signing failed", "for", msg.From, "err", err)
		return
	}

	body, err := json.Marshal(signed)
	if err != nil {
		a.log.Error("encode signature failed", "err", err)
		return
	}
	if _, err := a.client.Send(ctx, msg.From, "Signed Message", string(body)); err != nil {
		a.log.Warn("signature reply failed", "to", msg.From, "err", err)
		return
	}
	a.log.Info("provided signature", "for", msg.From)
}

// handleSignedMessage collects a returned signature and resubmits the full
// set to the moderator. Duplicate submissions are harmless; scoring counts
// each signer pair once.
func (a *scriptedAgent) handleSignedMessage(ctx context.Context, msg mailbox.Message) {
	var signed game.SignedMessage
	if err := json.Unmarshal([]byte(msg.Body), &signed); err != nil {
		a.log.Warn("unparseable signed message", "from", msg.From, "err", err)
		return
	}
	if signed.Signer != msg.From {
		a.log.Warn("signer does not match sender, dropping", "signer", signed.Signer, "from", msg.From)
		return
	}

	a.mu.Lock()
	a.collected = append(a.collected, signed)
	signatures := append([]game.SignedMessage(nil), a.collected...)
	a.mu.Unlock()

	if err := a.client.SubmitSignatures(ctx, signatures); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("submission failed", "err", err)
		return
	}
	a.log.Info("submitted signatures", "count", len(signatures))
}
