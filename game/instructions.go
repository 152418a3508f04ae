package game

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/btfinch/email-game-public/mailbox"
)

// Instruction is one agent's moderator briefing for a round.
type Instruction struct {
	To      string
	Subject string
	Body    string
}

// instructionInput collects the round state the briefing is built from.
// PreviousSigningPermissions and Aliases are nil on round one.
type instructionInput struct {
	RoundNumber                int
	AgentIDs                   []string
	RequestLists               map[string][]string
	SigningPermissions         map[string][]string
	AgentMessages              map[string]string
	Aliases                    map[string]string
	PreviousSigningPermissions map[string][]string
}

// BuildInstructions composes the per-agent briefing for a round. Request
// lists always name agents explicitly; from round two on, an authorization
// target the agent was already authorized for last round is replaced by its
// alias so agents must recognize repeat partners by their message history.
func BuildInstructions(in *instructionInput) []Instruction {
	agentsText := "unknown"
	if len(in.AgentIDs) > 0 {
		sorted := append([]string(nil), in.AgentIDs...)
		sort.Strings(sorted)
		agentsText = strings.Join(sorted, ", ")
	}

	instructions := make([]Instruction, 0, len(in.RequestLists))
	for _, agentID := range in.AgentIDs {
		requests := in.RequestLists[agentID]
		canSignFor := append([]string(nil), in.SigningPermissions[agentID]...)

		if in.RoundNumber > 1 && in.PreviousSigningPermissions != nil && in.Aliases != nil {
			for i, target := range canSignFor {
				if !contains(in.PreviousSigningPermissions[agentID], target) {
					continue
				}
				if alias, ok := in.Aliases[target]; ok {
					canSignFor[i] = fmt.Sprintf("%s (from last round; their message this round may be different)", alias)
				}
			}
		}

		message := in.AgentMessages[agentID]
		if message == "" {
			message = "Unknown message"
		}

		instructions = append(instructions, Instruction{
			To:      agentID,
			Subject: fmt.Sprintf("📢 Inbox Arena – Round %d Instructions for %s", in.RoundNumber, titleCase(agentID)),
			Body:    instructionBody(agentID, in.RoundNumber, agentsText, message, joinOrNone(requests), joinOrNone(canSignFor)),
		})
	}
	return instructions
}

func instructionBody(agentID string, round int, agentsText, message, requestText, signForText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome, %s!\n\n", titleCase(agentID))
	fmt.Fprintf(&b, "**ROUND %d** - Message signing and verification round.\n\n", round)
	fmt.Fprintf(&b, "**Participating Agents:** %s\n\n", agentsText)
	b.WriteString("**Your Assigned Message:**\n")
	fmt.Fprintf(&b, "You must get signatures for this EXACT message: %q\n\n", message)
	b.WriteString("**Your Signing Requirements:**\n")
	fmt.Fprintf(&b, "1. You must REQUEST signatures from these agents: %s\n", requestText)
	fmt.Fprintf(&b, "2. You are AUTHORIZED to sign messages for these agents: %s\n\n", signForText)
	b.WriteString("**Instructions:**\n")
	fmt.Fprintf(&b, "1. Send requests to agents asking them to sign your assigned message: %q\n", message)
	b.WriteString("2. When other agents request signatures from you (and you're authorized), provide signed messages\n")
	b.WriteString("3. Submit all received signatures to the moderator for scoring\n")
	b.WriteString("4. When you send your **submission email to the moderator**, make sure the subject contains the word 'submission' (any case) so it is detected by scoring. You do NOT need this keyword in signature request emails to other agents.\n")
	fmt.Fprintf(&b, "5. Use the format: 'Please sign this message for me: %s' when requesting signatures.\n\n", message)
	b.WriteString("**Important:**\n")
	b.WriteString("- Only request signatures for your assigned message\n")
	b.WriteString("- Only sign messages when you're authorized for that agent\n\n")
	b.WriteString("**Scoring:**\n")
	b.WriteString("- +1 point for each valid signature you successfully obtain and submit\n")
	b.WriteString("- +1 point for each signature you provide when authorized\n")
	b.WriteString("- -1 point for each signature you provide when NOT authorized\n\n")
	b.WriteString("– Moderator")
	return b.String()
}

// InstructionSender abstracts the delivery path so the briefing fan-out can
// be tested against a failing sender. The mailbox store satisfies it through
// StoreSender.
type InstructionSender interface {
	SendBatch(from string, entries []mailbox.BatchEntry) ([]mailbox.BatchResult, error)
	Send(from, to, subject, body string) (mailbox.Message, error)
}

// StoreSender adapts the in-process mailbox store to InstructionSender.
type StoreSender struct {
	Store *mailbox.Store
}

func (s StoreSender) SendBatch(from string, entries []mailbox.BatchEntry) ([]mailbox.BatchResult, error) {
	return s.Store.AddBatch(from, entries), nil
}

func (s StoreSender) Send(from, to, subject, body string) (mailbox.Message, error) {
	return s.Store.Add(from, to, subject, body), nil
}

// DeliverInstructions sends the briefings as one moderator batch and falls
// back to retried individual sends if the batch errors.
func DeliverInstructions(log *slog.Logger, sender InstructionSender, instructions []Instruction, retry RetryPolicy) {
	entries := make([]mailbox.BatchEntry, 0, len(instructions))
	for _, in := range instructions {
		entries = append(entries, mailbox.BatchEntry{To: in.To, Subject: in.Subject, Body: in.Body})
	}

	if _, err := sender.SendBatch(Moderator, entries); err == nil {
		log.Info("sent batch instructions", "agents", len(entries))
		return
	} else {
		log.Warn("batch instruction send failed, falling back to individual sends", "err", err)
	}

	for _, in := range instructions {
		in := in
		err := retry.Do(func() error {
			_, sendErr := sender.Send(Moderator, in.To, in.Subject, in.Body)
			return sendErr
		})
		if err != nil {
			log.Error("failed to deliver instructions", "agent", in.To, "err", err)
			continue
		}
		log.Info("sent individual instruction", "agent", in.To)
	}
}

// titleCase upper-cases the first letter of each word while keeping the
// separators, so "agent_alice" greets as "Agent_Alice".
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if isLetter && !prevLetter {
			b.WriteRune(r &^ 0x20)
		} else {
			b.WriteRune(r)
		}
		prevLetter = isLetter
	}
	return b.String()
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "none"
	}
	return strings.Join(list, ", ")
}
