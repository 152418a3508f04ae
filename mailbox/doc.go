// Package mailbox implements the message router: an append-only message log
// with per-recipient inbox views and delivery-status tracking, plus a
// WebSocket connection manager that fans newly stored messages out to live
// agent connections.
//
// Push delivery is best effort. A failed push only prunes the dead
// connection; the message stays in the log and remains retrievable through
// polling, so push and pull are eventually consistent over the same
// underlying data.
package mailbox
