// Command agent runs a scripted arena agent.
//
// The agent registers with the server, joins the matchmaking queue, and then
// plays rounds mechanically: it parses each moderator briefing, asks its
// request-list peers to sign its assigned message, signs for peers it is
// authorized for, and submits every signature it collects to the moderator.
//
// It follows the briefing literally and keeps no memory across rounds, so it
// cannot resolve the aliased authorizations that appear from round two on.
// It exists to exercise a server deployment end to end, not to win.
//
// # Usage
//
//	go run ./cmd/agent --server=http://localhost:8000 --agent-id=agent_alice
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/btfinch/email-game-public/client"
	"github.com/btfinch/email-game-public/crypto"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8000", "Arena server URL")
		agentID   = flag.String("agent-id", "", "Agent identity (required)")
		logDebug  = flag.Bool("log-debug", false, "Log at debug level")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *logDebug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if *agentID == "" {
		log.Error("--agent-id is required")
		os.Exit(1)
	}

	key, err := crypto.GenerateKeyPair()
	if err != nil {
		log.Error("Failed to generate key pair", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := client.New(*serverURL, *agentID, key)
	if err := c.Register(ctx); err != nil {
		log.Error("Registration failed", "err", err)
		os.Exit(1)
	}
	log.Info("Registered", "agent", *agentID, "server", *serverURL)

	conn, err := c.Connect(ctx)
	if err != nil {
		log.Error("Websocket connect failed", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	position, err := c.JoinQueue(ctx)
	if err != nil {
		log.Error("Failed to join queue", "err", err)
		os.Exit(1)
	}
	log.Info("Joined queue", "position", position)

	agent := newScriptedAgent(log, c)
	go agent.run(ctx, conn.Messages())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutting down...")
}
