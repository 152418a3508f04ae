package game

import (
	"errors"
	"fmt"
	"time"
)

// Moderator is the reserved identity that sends instructions and receives
// scoring submissions. It is always a valid recipient and can never
// register as an agent.
const Moderator = "moderator"

// ErrInvalidConfig indicates a configuration that cannot produce a valid
// session; it aborts session startup.
var ErrInvalidConfig = errors.New("invalid game config")

// Config holds the session parameters, fixed at process start.
type Config struct {
	// NumAgents is the quorum: the queue auto-starts a session once this
	// many agents are waiting.
	NumAgents int

	// RequestsPerAgent is how many signatures each agent must request and
	// may provide per round. Must be < NumAgents.
	RequestsPerAgent int

	// NumRounds per session.
	NumRounds int

	// RoundDuration is the active window in which agents exchange
	// signature requests and responses. The wait is unconditional.
	RoundDuration time.Duration

	// InstructionGrace is the pause after instruction delivery before the
	// active window opens.
	InstructionGrace time.Duration

	// ResultsDir receives the persisted session snapshots.
	ResultsDir string
}

// DefaultConfig mirrors the standard arena setup: four agents, two requests
// each, one round of sixty seconds.
func DefaultConfig() *Config {
	return &Config{
		NumAgents:        4,
		RequestsPerAgent: 2,
		NumRounds:        1,
		RoundDuration:    60 * time.Second,
		InstructionGrace: 2 * time.Second,
		ResultsDir:       "session_results",
	}
}

// Validate rejects configurations that cannot start a session.
func (c *Config) Validate() error {
	if c.NumAgents < 2 {
		return fmt.Errorf("%w: need at least 2 agents, got %d", ErrInvalidConfig, c.NumAgents)
	}
	if c.RequestsPerAgent < 1 {
		return fmt.Errorf("%w: requests per agent must be positive, got %d", ErrInvalidConfig, c.RequestsPerAgent)
	}
	if c.RequestsPerAgent >= c.NumAgents {
		return fmt.Errorf("%w: requests per agent (%d) must be less than the number of agents (%d)",
			ErrInvalidConfig, c.RequestsPerAgent, c.NumAgents)
	}
	if c.NumRounds < 1 {
		return fmt.Errorf("%w: need at least 1 round, got %d", ErrInvalidConfig, c.NumRounds)
	}
	return nil
}
