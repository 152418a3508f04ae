package game

import (
	"fmt"
	"math/rand"
	"sort"
)

// Assignment is one round's directed request graph together with its
// transpose. Every agent requests from exactly k distinct others and is the
// authorized signer for exactly k distinct others; no agent requests itself.
type Assignment struct {
	// RequestLists maps each agent to the agents it must request
	// signatures from.
	RequestLists map[string][]string `json:"request_lists"`

	// SigningPermissions is the transpose: SigningPermissions[a] lists
	// every agent b with a in RequestLists[b].
	SigningPermissions map[string][]string `json:"signing_permissions"`
}

const (
	assignmentAttempts = 100
	perAgentAttempts   = 50
)

// GenerateAssignment builds a balanced assignment for the given agents.
// It tries a randomized greedy construction up to assignmentAttempts times
// and falls back to the deterministic circular assignment, which is always
// feasible for k < N.
func GenerateAssignment(agentIDs []string, requestsPerAgent int) (*Assignment, error) {
	if requestsPerAgent >= len(agentIDs) {
		return nil, fmt.Errorf("%w: requests per agent (%d) must be less than the number of agents (%d)",
			ErrInvalidConfig, requestsPerAgent, len(agentIDs))
	}

	for attempt := 0; attempt < assignmentAttempts; attempt++ {
		requestLists := randomizedRequestLists(agentIDs, requestsPerAgent)
		if validateBalanced(requestLists, agentIDs, requestsPerAgent) {
			return &Assignment{
				RequestLists:       requestLists,
				SigningPermissions: transpose(agentIDs, requestLists),
			}, nil
		}
	}

	// The greedy construction can paint itself into a corner; the circular
	// pattern cannot.
	requestLists := circularRequestLists(agentIDs, requestsPerAgent)
	return &Assignment{
		RequestLists:       requestLists,
		SigningPermissions: transpose(agentIDs, requestLists),
	}, nil
}

// randomizedRequestLists attempts one greedy construction: agents are
// visited in shuffled order and pick targets preferring low in-degree.
func randomizedRequestLists(agentIDs []string, requestsPerAgent int) map[string][]string {
	requestLists := make(map[string][]string, len(agentIDs))
	inDegree := make(map[string]int, len(agentIDs))
	for _, id := range agentIDs {
		requestLists[id] = nil
		inDegree[id] = 0
	}

	shuffled := append([]string(nil), agentIDs...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, agentID := range shuffled {
		for attempts := 0; len(requestLists[agentID]) < requestsPerAgent && attempts < perAgentAttempts; attempts++ {
			candidates := eligibleTargets(agentID, agentIDs, requestLists[agentID], inDegree, requestsPerAgent)
			if len(candidates) == 0 {
				break
			}

			// Prefer the less-requested half of the candidates.
			sort.SliceStable(candidates, func(a, b int) bool {
				return inDegree[candidates[a]] < inDegree[candidates[b]]
			})
			half := len(candidates) / 2
			if half < 1 {
				half = 1
			}
			target := candidates[rand.Intn(half)]

			requestLists[agentID] = append(requestLists[agentID], target)
			inDegree[target]++
		}
	}
	return requestLists
}

func eligibleTargets(agentID string, agentIDs, already []string, inDegree map[string]int, requestsPerAgent int) []string {
	chosen := make(map[string]bool, len(already))
	for _, id := range already {
		chosen[id] = true
	}

	var candidates []string
	for _, id := range agentIDs {
		if id == agentID || chosen[id] || inDegree[id] >= requestsPerAgent {
			continue
		}
		candidates = append(candidates, id)
	}
	return candidates
}

// circularRequestLists is the deterministic fallback: agent i requests from
// agents (i+1)..(i+k) mod N.
func circularRequestLists(agentIDs []string, requestsPerAgent int) map[string][]string {
	n := len(agentIDs)
	requestLists := make(map[string][]string, n)
	for i, agentID := range agentIDs {
		list := make([]string, 0, requestsPerAgent)
		for j := 1; j <= requestsPerAgent; j++ {
			list = append(list, agentIDs[(i+j)%n])
		}
		requestLists[agentID] = list
	}
	return requestLists
}

// validateBalanced checks that every agent has out-degree and in-degree
// exactly requestsPerAgent.
func validateBalanced(requestLists map[string][]string, agentIDs []string, requestsPerAgent int) bool {
	inDegree := make(map[string]int, len(agentIDs))
	for _, id := range agentIDs {
		inDegree[id] = 0
	}

	for _, list := range requestLists {
		if len(list) != requestsPerAgent {
			return false
		}
		for _, target := range list {
			inDegree[target]++
		}
	}

	for _, id := range agentIDs {
		if inDegree[id] != requestsPerAgent {
			return false
		}
	}
	return true
}

// transpose derives the signing permissions from the request lists.
func transpose(agentIDs []string, requestLists map[string][]string) map[string][]string {
	permissions := make(map[string][]string, len(agentIDs))
	for _, id := range agentIDs {
		permissions[id] = nil
	}
	for requester, targets := range requestLists {
		for _, target := range targets {
			if !contains(permissions[target], requester) {
				permissions[target] = append(permissions[target], requester)
			}
		}
	}
	return permissions
}

// edgeSet canonicalizes an assignment as its unordered request edge set,
// used to detect a repeat of the previous round's graph.
func edgeSet(requestLists map[string][]string) map[string]bool {
	set := make(map[string]bool)
	for requester, targets := range requestLists {
		for _, target := range targets {
			set[requester+"->"+target] = true
		}
	}
	return set
}

func sameEdgeSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for edge := range a {
		if !b[edge] {
			return false
		}
	}
	return true
}

func contains(list []string, id string) bool {
	for _, item := range list {
		if item == id {
			return true
		}
	}
	return false
}
