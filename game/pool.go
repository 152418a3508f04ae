package game

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrPoolExhausted is fatal for the session: some agent has already been
// assigned every message remaining in the pool.
var ErrPoolExhausted = errors.New("message pool exhausted")

// MessagePair couples a message an agent must get signed with the alias
// used to describe the agent in later rounds without naming it.
type MessagePair struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Alias   string `json:"alias"`
}

// DefaultMessagePool ships with the server so a session can run without any
// external data. Aliases deliberately describe the message, not the agent.
func DefaultMessagePool() []MessagePair {
	return []MessagePair{
		{ID: "pair_01", Message: "The lighthouse keeper counts ships at dawn", Alias: "the agent who watched the harbor"},
		{ID: "pair_02", Message: "Seven ravens guard the northern archive", Alias: "the agent with the feathered sentries"},
		{ID: "pair_03", Message: "The clockmaker hides a key in every bell", Alias: "the agent who wound the tower"},
		{ID: "pair_04", Message: "Moss grows only on the cartographer's door", Alias: "the agent behind the green door"},
		{ID: "pair_05", Message: "The tide returns what the library lost", Alias: "the agent who read the waves"},
		{ID: "pair_06", Message: "A silver kite crosses the meridian twice", Alias: "the agent flying the silver kite"},
		{ID: "pair_07", Message: "The orchard bells ring for no one at noon", Alias: "the agent among the quiet trees"},
		{ID: "pair_08", Message: "Three lanterns mark the smuggler's stair", Alias: "the agent on the lantern stair"},
		{ID: "pair_09", Message: "The glacier keeps a ledger of old storms", Alias: "the agent with the frozen ledger"},
		{ID: "pair_10", Message: "Every bridge in the delta hums at dusk", Alias: "the agent who tuned the bridges"},
		{ID: "pair_11", Message: "The beekeeper signs her letters in wax", Alias: "the agent sealed in wax"},
		{ID: "pair_12", Message: "A compass spins true only underground", Alias: "the agent beneath the needle"},
		{ID: "pair_13", Message: "The observatory lends its dome to the rain", Alias: "the agent under the open dome"},
		{ID: "pair_14", Message: "Nine stairs in the mill turn widdershins", Alias: "the agent on the backward stairs"},
		{ID: "pair_15", Message: "The ferryman accepts buttons after midnight", Alias: "the agent who paid in buttons"},
		{ID: "pair_16", Message: "Frost writes its will on the greenhouse glass", Alias: "the agent who read the frost"},
	}
}

// poolSelector hands out one unseen message/alias pair per agent per round.
// It tracks which messages each agent has been assigned across the session
// so no agent ever sees the same message twice.
type poolSelector struct {
	pool []MessagePair
	seen map[string]map[string]bool
}

func newPoolSelector(pool []MessagePair) *poolSelector {
	return &poolSelector{
		pool: append([]MessagePair(nil), pool...),
		seen: make(map[string]map[string]bool),
	}
}

// selectRound picks a distinct pair per agent, skipping any message the
// agent has seen in an earlier round. Fails with ErrPoolExhausted when no
// unseen pair remains for some agent.
func (p *poolSelector) selectRound(agentIDs []string) (messages map[string]string, aliases map[string]string, err error) {
	if len(p.pool) < len(agentIDs) {
		return nil, nil, fmt.Errorf("%w: %d pairs for %d agents", ErrPoolExhausted, len(p.pool), len(agentIDs))
	}

	available := append([]MessagePair(nil), p.pool...)
	rand.Shuffle(len(available), func(i, j int) { available[i], available[j] = available[j], available[i] })

	messages = make(map[string]string, len(agentIDs))
	aliases = make(map[string]string, len(agentIDs))

	for _, agentID := range agentIDs {
		idx := -1
		for i, pair := range available {
			if !p.seen[agentID][pair.Message] {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("%w: no unseen message for agent %s", ErrPoolExhausted, agentID)
		}

		pair := available[idx]
		available = append(available[:idx], available[idx+1:]...)

		messages[agentID] = pair.Message
		aliases[agentID] = pair.Alias
		if p.seen[agentID] == nil {
			p.seen[agentID] = make(map[string]bool)
		}
		p.seen[agentID][pair.Message] = true
	}
	return messages, aliases, nil
}
