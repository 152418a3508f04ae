package game

import (
	"fmt"
	"sort"
	"time"

	"github.com/btfinch/email-game-public/mailbox"
)

// AgentPerformance is the per-agent scoring breakdown for one round,
// persisted for transparency alongside the raw score deltas.
type AgentPerformance struct {
	SupposedToRequestFrom         []string `json:"supposed_to_request_from"`
	SuccessfullySubmittedFor      []string `json:"successfully_submitted_for"`
	AuthorizedToSignFor           []string `json:"authorized_to_sign_for"`
	SuccessfullySignedFor         []string `json:"successfully_signed_for"`
	SubmissionPoints              int      `json:"submission_points"`
	SigningPoints                 int      `json:"signing_points"`
	UnauthorizedSigningPenalties  int      `json:"unauthorized_signing_penalties"`
}

// RoundResult captures everything that happened in one round. Append-only:
// once the round completes the result is never mutated.
type RoundResult struct {
	RoundNumber        int                          `json:"round_number"`
	AgentIDs           []string                     `json:"agent_ids"`
	RequestLists       map[string][]string          `json:"request_lists"`
	SigningPermissions map[string][]string          `json:"signing_permissions"`
	AgentMessages      map[string]string            `json:"agent_messages"`
	AgentScores        map[string]int               `json:"agent_scores"`
	AgentPerformance   map[string]*AgentPerformance `json:"agent_performance"`
	TotalMessages      int                          `json:"total_messages"`
	Conversations      map[string][]mailbox.Message `json:"conversations"`
	RoundDuration      float64                      `json:"round_duration"`
	StartTime          time.Time                    `json:"start_time"`
	EndTime            time.Time                    `json:"end_time"`
}

// SessionResult owns the ordered round results and the cumulative score
// map. Created at session start, sealed at session end, persisted, and
// never mutated again.
type SessionResult struct {
	SessionID        string           `json:"session_id"`
	AgentIDs         []string         `json:"agent_ids"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	TotalRounds      int              `json:"total_rounds"`
	CumulativeScores map[string]int   `json:"cumulative_scores"`
	PerformanceTrends map[string][]int `json:"performance_trends"`
	Rounds           []*RoundResult   `json:"rounds"`
}

// NewSessionResult creates an empty session record for the given roster.
func NewSessionResult(sessionID string, agentIDs []string) *SessionResult {
	scores := make(map[string]int, len(agentIDs))
	for _, id := range agentIDs {
		scores[id] = 0
	}
	return &SessionResult{
		SessionID:        sessionID,
		AgentIDs:         append([]string(nil), agentIDs...),
		StartTime:        time.Now(),
		CumulativeScores: scores,
	}
}

// AddRound appends a round result and folds its deltas into the cumulative
// scores.
func (s *SessionResult) AddRound(r *RoundResult) {
	s.Rounds = append(s.Rounds, r)
	s.TotalRounds = len(s.Rounds)
	for agentID, delta := range r.AgentScores {
		s.CumulativeScores[agentID] += delta
	}
}

// Seal marks the session finished and computes the per-agent score trend
// across rounds for the persisted record.
func (s *SessionResult) Seal() {
	s.EndTime = time.Now()
	s.PerformanceTrends = make(map[string][]int, len(s.AgentIDs))
	for _, agentID := range s.AgentIDs {
		trend := make([]int, 0, len(s.Rounds))
		for _, round := range s.Rounds {
			trend = append(trend, round.AgentScores[agentID])
		}
		s.PerformanceTrends[agentID] = trend
	}
}

// conversationKey is the unordered participant-pair key used to group a
// round's traffic, e.g. "alice↔bob".
func conversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return fmt.Sprintf("%s↔%s", pair[0], pair[1])
}

// groupConversations buckets messages by unordered participant pair.
func groupConversations(messages []mailbox.Message) map[string][]mailbox.Message {
	conversations := make(map[string][]mailbox.Message)
	for _, msg := range messages {
		key := conversationKey(msg.From, msg.To)
		conversations[key] = append(conversations[key], msg)
	}
	return conversations
}
