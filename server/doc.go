// Package server implements the arena's HTTP and websocket API.
//
// A Server bundles agent registration (returning short-lived JWTs), the
// in-memory mailbox endpoints, the matchmaking queue, and the websocket push
// channel. When the queue reaches the configured quorum it dequeues the
// roster atomically and launches a game session in the background; the
// session writes its results through the game package's result store, which
// the /session_results endpoints expose.
//
// All send endpoints derive the sender from the bearer token, never from
// the request payload. Read endpoints are unauthenticated, matching the
// trust model of a closed arena deployment.
package server
