// Package game implements the arena's session logic: the balanced
// assignment generator, moderator instructions with fuzzy aliases, the
// signature-verification scoring engine, the per-round orchestrator, and the
// session aggregator with JSON snapshot persistence.
//
// A session drives a fixed number of rounds. Each round assigns every agent
// a message from the shared pool and a balanced request/signing graph, sends
// instructions through the mailbox as the reserved moderator identity,
// sleeps for the round window while agents trade signatures, then scores the
// submissions addressed to the moderator.
package game
