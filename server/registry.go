package server

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/btfinch/email-game-public/crypto"
	"github.com/btfinch/email-game-public/game"
)

var (
	// ErrAlreadyRegistered rejects a second registration for the same id.
	// Ids are never recycled while the process lives.
	ErrAlreadyRegistered = errors.New("agent id already registered")

	// ErrReservedAgentID rejects registrations for the moderator identity.
	ErrReservedAgentID = errors.New("agent id is reserved")
)

type registeredAgent struct {
	publicKeyPEM string
	publicKey    *rsa.PublicKey
}

// Registry maps registered agent ids to their RSA public keys. Keys are
// parsed once at registration so the scoring path never re-parses PEM.
// Implements game.KeyDirectory.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]registeredAgent
}

var _ game.KeyDirectory = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]registeredAgent)}
}

// Register stores an agent's public key. First registration wins.
func (reg *Registry) Register(agentID, publicKeyPEM string) error {
	if agentID == game.Moderator {
		return ErrReservedAgentID
	}

	pub, err := crypto.ParsePublicKey(publicKeyPEM)
	if err != nil {
		return fmt.Errorf("invalid public key for %s: %w", agentID, err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.agents[agentID]; exists {
		return ErrAlreadyRegistered
	}
	reg.agents[agentID] = registeredAgent{publicKeyPEM: publicKeyPEM, publicKey: pub}
	return nil
}

// PublicKey returns the parsed key for a registered agent.
func (reg *Registry) PublicKey(agentID string) (*rsa.PublicKey, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	agent, ok := reg.agents[agentID]
	if !ok {
		return nil, false
	}
	return agent.publicKey, true
}

// IsRegistered reports whether the agent id is known.
func (reg *Registry) IsRegistered(agentID string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.agents[agentID]
	return ok
}

// Agents returns the sorted registered agent ids.
func (reg *Registry) Agents() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	ids := make([]string, 0, len(reg.agents))
	for id := range reg.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered agents.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.agents)
}

// Clear drops all registrations. Testing only.
func (reg *Registry) Clear() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.agents = make(map[string]registeredAgent)
}
