package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/btfinch/email-game-public/auth"
	"github.com/btfinch/email-game-public/game"
	"github.com/btfinch/email-game-public/mailbox"
	"github.com/btfinch/email-game-public/metrics"
)

// Server owns the arena's state: the agent registry, the mailbox, the
// matchmaking queue, live websocket connections, and the session runner.
// One Server runs at most one game session at a time.
type Server struct {
	log     *slog.Logger
	cfg     *game.Config
	metrics *metrics.Metrics

	registry    *Registry
	queue       *Queue
	store       *mailbox.Store
	connections *mailbox.ConnectionManager
	issuer      *auth.Issuer
	results     *game.ResultStore
	runner      *game.Runner

	// ctx scopes running game sessions; cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// New wires a Server from its parts. The queue auto-starts a session once
// cfg.NumAgents agents are waiting; the store pushes every message to live
// websocket connections; dropped connections leave the queue.
func New(log *slog.Logger, cfg *game.Config, jwtSecret string, m *metrics.Metrics) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	results, err := game.NewResultStore(cfg.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("create result store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		log:         log,
		cfg:         cfg,
		metrics:     m,
		registry:    NewRegistry(),
		queue:       NewQueue(cfg.NumAgents),
		store:       mailbox.NewStore(),
		connections: mailbox.NewConnectionManager(log),
		issuer:      auth.NewIssuer(jwtSecret, auth.DefaultValidity),
		results:     results,
		ctx:         ctx,
		cancel:      cancel,
	}

	s.runner = game.NewRunner(log, cfg, s.store, s.registry, results)
	s.store.SetNotifier(s.connections)
	s.connections.SetDisconnectHandler(func(agentID string) {
		if s.queue.Leave(agentID) {
			s.log.Info("agent dropped from queue on disconnect", "agent", agentID)
		}
	})
	s.queue.SetQuorumHandler(s.runGame)

	return s, nil
}

// runGame runs one session on the quorum goroutine and reopens the queue
// when it ends, however it ends.
func (s *Server) runGame(agentIDs []string) {
	defer s.queue.GameFinished()

	s.metrics.SessionsStarted.Inc()
	s.log.Info("starting game session", "agents", agentIDs)

	session, err := s.runner.RunSession(s.ctx, agentIDs)
	if err != nil {
		s.log.Error("game session failed", "agents", agentIDs, "err", err)
		return
	}

	s.metrics.SessionsCompleted.Inc()
	s.log.Info("game session finished",
		"session_id", session.SessionID, "scores", session.CumulativeScores)
}

// Shutdown cancels any running session.
func (s *Server) Shutdown() {
	s.cancel()
}
