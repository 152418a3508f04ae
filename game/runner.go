package game

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/btfinch/email-game-public/mailbox"
)

// assignmentNoRepeatAttempts bounds how often a fresh assignment is drawn to
// avoid repeating the previous round's request graph. A repeat after that
// many draws is accepted rather than stalling the round.
const assignmentNoRepeatAttempts = 10

// Runner orchestrates one session at a time: round setup, instruction
// delivery, the timed exchange window, scoring, and persistence.
type Runner struct {
	log     *slog.Logger
	cfg     *Config
	store   *mailbox.Store
	keys    KeyDirectory
	results *ResultStore
	sender  InstructionSender
	pool    []MessagePair

	// wait is swapped out in tests so rounds finish instantly.
	wait func(ctx context.Context, d time.Duration) error
}

// NewRunner wires a runner against the shared mailbox and key directory.
func NewRunner(log *slog.Logger, cfg *Config, store *mailbox.Store, keys KeyDirectory, results *ResultStore) *Runner {
	return &Runner{
		log:     log,
		cfg:     cfg,
		store:   store,
		keys:    keys,
		results: results,
		sender:  StoreSender{Store: store},
		pool:    DefaultMessagePool(),
		wait:    sleepCtx,
	}
}

// SetPool replaces the built-in message pool. Takes effect for sessions
// started afterwards; a running session keeps its selector.
func (r *Runner) SetPool(pool []MessagePair) {
	r.pool = append([]MessagePair(nil), pool...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// roundState carries what one round leaves behind for the next: the signing
// permissions and aliases agents observed, plus the request graph so the
// next draw can avoid repeating it.
type roundState struct {
	signingPermissions map[string][]string
	aliases            map[string]string
	edges              map[string]bool
}

// RunSession plays a full session for the given roster and persists the
// sealed result. Returns the result even when persistence fails so callers
// can still report scores.
func (r *Runner) RunSession(ctx context.Context, agentIDs []string) (*SessionResult, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	sessionID := fmt.Sprintf("arena_%d", time.Now().Unix())
	session := NewSessionResult(sessionID, agentIDs)
	selector := newPoolSelector(r.pool)

	r.log.Info("session starting", "session_id", sessionID, "agents", agentIDs, "rounds", r.cfg.NumRounds)

	var prev *roundState
	for round := 1; round <= r.cfg.NumRounds; round++ {
		result, state, err := r.runRound(ctx, round, agentIDs, selector, prev)
		if err != nil {
			return session, fmt.Errorf("round %d: %w", round, err)
		}
		session.AddRound(result)
		prev = state

		if err := r.results.SaveLiveState(session); err != nil {
			r.log.Warn("failed to write live session state", "err", err)
		}
	}

	session.Seal()
	filename, err := r.results.Save(session)
	if err != nil {
		r.log.Error("failed to persist session result", "session_id", sessionID, "err", err)
		return session, nil
	}

	r.log.Info("session complete", "session_id", sessionID,
		"scores", session.CumulativeScores, "result_file", filename)
	return session, nil
}

func (r *Runner) runRound(ctx context.Context, round int, agentIDs []string, selector *poolSelector, prev *roundState) (*RoundResult, *roundState, error) {
	messages, aliases, err := selector.selectRound(agentIDs)
	if err != nil {
		return nil, nil, err
	}

	assignment, err := r.drawAssignment(agentIDs, round, prev)
	if err != nil {
		return nil, nil, err
	}

	for agentID, list := range assignment.RequestLists {
		r.log.Info("round assignment", "round", round, "agent", agentID,
			"requests_from", list, "signs_for", assignment.SigningPermissions[agentID])
	}

	result := &RoundResult{
		RoundNumber:        round,
		AgentIDs:           append([]string(nil), agentIDs...),
		RequestLists:       assignment.RequestLists,
		SigningPermissions: assignment.SigningPermissions,
		AgentMessages:      messages,
		StartTime:          time.Now(),
	}

	in := &instructionInput{
		RoundNumber:        round,
		AgentIDs:           agentIDs,
		RequestLists:       assignment.RequestLists,
		SigningPermissions: assignment.SigningPermissions,
		AgentMessages:      messages,
	}
	if prev != nil {
		// Aliases come from the previous round: the briefing points at the
		// message the agent actually observed, not this round's fresh one.
		in.Aliases = prev.aliases
		in.PreviousSigningPermissions = prev.signingPermissions
	}
	DeliverInstructions(r.log, r.sender, BuildInstructions(in), RetryPolicy{MaxAttempts: 3, Delay: 50 * time.Millisecond})

	if err := r.wait(ctx, r.cfg.InstructionGrace); err != nil {
		return nil, nil, err
	}
	if err := r.wait(ctx, r.cfg.RoundDuration); err != nil {
		return nil, nil, err
	}

	scores, performance := ScoreSubmissions(r.log, r.store.Inbox(Moderator), &RoundScoring{
		AgentIDs:           agentIDs,
		RequestLists:       assignment.RequestLists,
		SigningPermissions: assignment.SigningPermissions,
		AgentMessages:      messages,
	}, r.keys)

	result.EndTime = time.Now()
	result.RoundDuration = result.EndTime.Sub(result.StartTime).Seconds()
	result.AgentScores = scores
	result.AgentPerformance = performance

	all := r.store.All()
	result.TotalMessages = len(all)
	result.Conversations = groupConversations(all)

	return result, &roundState{
		signingPermissions: assignment.SigningPermissions,
		aliases:            aliases,
		edges:              edgeSet(assignment.RequestLists),
	}, nil
}

// drawAssignment generates a balanced assignment, redrawing a bounded number
// of times after round one so consecutive rounds do not share the same
// request graph.
func (r *Runner) drawAssignment(agentIDs []string, round int, prev *roundState) (*Assignment, error) {
	var assignment *Assignment
	for attempt := 0; attempt < assignmentNoRepeatAttempts; attempt++ {
		var err error
		assignment, err = GenerateAssignment(agentIDs, r.cfg.RequestsPerAgent)
		if err != nil {
			return nil, err
		}
		if round == 1 || prev == nil || !sameEdgeSet(edgeSet(assignment.RequestLists), prev.edges) {
			return assignment, nil
		}
	}
	r.log.Warn("could not avoid repeating previous round's assignment", "round", round)
	return assignment, nil
}
