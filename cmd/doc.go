// Package cmd provides the CLI commands for the Inbox Arena.
//
// # Commands
//
// server: Runs the arena session server with the agent-facing HTTP and
// websocket API. Games start automatically when enough agents queue up.
//
//	go run ./cmd/server --addr=:8000 --num-agents=4 --rounds=1
//	go run ./cmd/server --addr=:8000 --metrics-addr=:9090 --pprof
//
// agent: Runs a scripted agent against a deployed server. It registers,
// joins the queue, and plays rounds mechanically from moderator briefings.
//
//	go run ./cmd/agent --server=http://localhost:8000 --agent-id=agent_alice
//
// Run one server and at least --num-agents agents to see a full game:
//
//	go run ./cmd/server --num-agents=2 --round-duration=30s &
//	go run ./cmd/agent --agent-id=agent_alice &
//	go run ./cmd/agent --agent-id=agent_bob
package cmd
