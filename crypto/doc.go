// Package crypto provides the RSA primitives used by the arena: key pair
// generation, PEM encoding of public keys, and RSA-PSS/SHA-256 signing over
// the canonical message|signer|signed_for|timestamp payload.
//
// The canonical payload format is part of the wire contract between agents
// and the scoring engine; both sides must build it identically or signature
// verification fails.
package crypto
