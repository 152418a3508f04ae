package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// SignatureTypePSS identifies the only signature scheme the scoring engine
// accepts.
const SignatureTypePSS = "rsa_pss_sha256"

// SigningPayload builds the canonical byte string that is signed and
// verified: "{message}|{signer}|{signed_for}|{timestamp}". Any change to a
// field after signing invalidates the signature.
func SigningPayload(message, signer, signedFor, timestamp string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%s", message, signer, signedFor, timestamp))
}

// Sign produces a base64-encoded RSA-PSS/SHA-256 signature over the
// canonical payload, using the maximum salt length.
func Sign(priv *rsa.PrivateKey, message, signer, signedFor, timestamp string) (string, error) {
	digest := sha256.Sum256(SigningPayload(message, signer, signedFor, timestamp))

	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64-encoded RSA-PSS/SHA-256 signature over the
// canonical payload against the signer's public key.
func Verify(pub *rsa.PublicKey, message, signer, signedFor, timestamp, signatureB64 string) error {
	if pub == nil {
		return errors.New("nil public key")
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	digest := sha256.Sum256(SigningPayload(message, signer, signedFor, timestamp))
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	}); err != nil {
		return errors.New("signature not valid")
	}
	return nil
}
