/*
Package testutil provides test fixtures for the arena server.

It generates the data most tests need: RSA key pairs per agent, signed
submission envelopes (valid or deliberately broken via options), and a
discarding logger.

	ring, _ := testutil.GenerateTestKeyRing("alice", "bob")

	entry, _ := testutil.NewSignedMessage(ring["bob"], "bob", "alice", message)
	bad, _ := testutil.NewSignedMessage(ring["bob"], "bob", "alice", message,
	    testutil.WithTamperedTimestamp(),
	)

	submission, _ := testutil.NewSubmissionMessage("alice", entry)

KeyRing doubles as the public-key directory interface consumed by scoring,
so a test can hand the same ring to both the signing and the verifying side.

This package is intended for testing purposes only and should not be used in
production code.
*/
package testutil
