// Package etsy implements the marketplace OAuth2 authorization-code flow with PKCE:
// verifier and challenge generation, pending authorization sessions, the code and
// refresh-token exchanges, and a token source backed by persisted credentials.
package etsy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	verifierEntropyBytes = 32
	stateEntropyBytes    = 16
)

// PKCECodes holds PKCE verification codes for one authorization attempt.
type PKCECodes struct {
	// CodeVerifier is only ever sent in the token-exchange body.
	CodeVerifier string `json:"code_verifier"`
	// CodeChallenge is base64url(SHA-256(CodeVerifier)) without padding.
	CodeChallenge string `json:"code_challenge"`
}

// GeneratePKCECodes creates a fresh verifier and its S256 challenge.
//
// Returns:
//   - *PKCECodes: The verifier and challenge pair
//   - error: An error if the system random source fails
func GeneratePKCECodes() (*PKCECodes, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}
	return &PKCECodes{
		CodeVerifier:  verifier,
		CodeChallenge: DeriveCodeChallenge(verifier),
	}, nil
}

// GenerateCodeVerifier returns 32 random bytes encoded as unpadded base64url (43 characters).
func GenerateCodeVerifier() (string, error) {
	return randomURLSafe(verifierEntropyBytes, "code verifier")
}

// DeriveCodeChallenge computes the S256 challenge for verifier. It is deterministic and
// never contains '=' padding.
func DeriveCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateCorrelationToken returns the OAuth state value binding a callback to one attempt.
func GenerateCorrelationToken() (string, error) {
	return randomURLSafe(stateEntropyBytes, "state")
}

func randomURLSafe(n int, what string) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", what, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
