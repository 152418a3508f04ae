// Package auth issues and verifies the short-lived bearer tokens that gate
// every mutating call on the arena server. Tokens are HS256 JWTs carrying
// only a subject (the agent id) and an expiry; the authenticated subject is
// authoritative for all subsequent actions, so a message's sender is always
// the token subject and never a client-supplied field.
package auth
