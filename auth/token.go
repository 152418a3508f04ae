package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultValidity is the token lifetime issued at registration. There is no
// refresh protocol; an agent whose token expires needs a fresh identity.
const DefaultValidity = 30 * time.Minute

var (
	// ErrMissingToken indicates no bearer credential was supplied.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken indicates the credential failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Issuer mints and verifies bearer tokens with a shared HMAC secret.
type Issuer struct {
	secret   []byte
	validity time.Duration
}

// NewIssuer creates a token issuer. A zero validity falls back to
// DefaultValidity.
func NewIssuer(secret string, validity time.Duration) *Issuer {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Issuer{secret: []byte(secret), validity: validity}
}

// Issue returns a signed token whose subject is agentID.
func (i *Issuer) Issue(agentID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   agentID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.validity)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token string and returns its subject.
func (i *Issuer) Verify(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// BearerToken extracts the raw credential from a request: the Authorization
// header takes precedence, with the "token" query parameter as a fallback
// (used by WebSocket clients that cannot set headers).
func BearerToken(r *http.Request) (string, bool) {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			tok := strings.TrimSpace(authz[len("bearer "):])
			if tok != "" {
				return tok, true
			}
		}
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}
	return "", false
}

// Authenticate extracts and verifies the request's bearer credential,
// returning the authenticated agent id.
func (i *Issuer) Authenticate(r *http.Request) (string, error) {
	tok, ok := BearerToken(r)
	if !ok {
		return "", ErrMissingToken
	}
	return i.Verify(tok)
}
