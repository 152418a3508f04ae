// Command server runs the Inbox Arena session server.
//
// The server hosts the agent-facing HTTP and websocket API: registration,
// the in-memory mailbox, the matchmaking queue, and persisted session
// results. Once the waiting queue reaches the configured quorum a game
// session starts automatically in the background.
//
// # Usage
//
//	go run ./cmd/server --addr=:8000 --num-agents=4 --rounds=1
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btfinch/email-game-public/api/httpserver"
	"github.com/btfinch/email-game-public/game"
	"github.com/btfinch/email-game-public/metrics"
	"github.com/btfinch/email-game-public/server"
)

// metricsNamespace prefixes all Prometheus series exported by the arena.
const metricsNamespace = "inbox_arena"

func main() {
	var (
		addr             = flag.String("addr", ":8000", "HTTP listen address")
		metricsAddr      = flag.String("metrics-addr", "", "Metrics listen address (disabled if empty)")
		jwtSecret        = flag.String("jwt-secret", "", "JWT signing secret (generates an ephemeral one if empty)")
		numAgents        = flag.Int("num-agents", 4, "Agents required to start a game")
		requestsPerAgent = flag.Int("requests-per-agent", 2, "Signature requests per agent per round")
		rounds           = flag.Int("rounds", 1, "Rounds per game session")
		roundDuration    = flag.Duration("round-duration", 60*time.Second, "Active window per round")
		resultsDir       = flag.String("results-dir", "session_results", "Directory for persisted session results")
		enablePprof      = flag.Bool("pprof", false, "Enable pprof debug endpoints")
		logJSON          = flag.Bool("log-json", false, "Log in JSON format")
		logDebug         = flag.Bool("log-debug", false, "Log at debug level")
	)
	flag.Parse()

	log := newLogger(*logJSON, *logDebug)

	secret := *jwtSecret
	if secret == "" {
		secret = ephemeralSecret()
		log.Warn("no --jwt-secret given, using an ephemeral secret; tokens will not survive restarts")
	}

	cfg := game.DefaultConfig()
	cfg.NumAgents = *numAgents
	cfg.RequestsPerAgent = *requestsPerAgent
	cfg.NumRounds = *rounds
	cfg.RoundDuration = *roundDuration
	cfg.ResultsDir = *resultsDir

	metricsSrv, err := metrics.New(metricsNamespace, *metricsAddr)
	if err != nil {
		log.Error("Failed to create metrics server", "err", err)
		os.Exit(1)
	}

	arena, err := server.New(log, cfg, secret, metricsSrv.Metrics)
	if err != nil {
		log.Error("Failed to create arena server", "err", err)
		os.Exit(1)
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		MetricsAddr:              *metricsAddr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, metricsSrv, arena)
	if err != nil {
		log.Error("Failed to create HTTP server", "err", err)
		os.Exit(1)
	}

	log.Info("Starting arena server",
		"addr", *addr,
		"numAgents", cfg.NumAgents,
		"rounds", cfg.NumRounds,
		"roundDuration", cfg.RoundDuration.String(),
	)
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down...")
	arena.Shutdown()
	srv.Shutdown()
}

func newLogger(json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func ephemeralSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
