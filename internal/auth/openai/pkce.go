// Package openai implements the OAuth2 authorization-code + PKCE login flow
// against the OpenAI authorization server, including PKCE code generation,
// the one-shot local callback listener, and the token exchange client.
package openai

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCECodes holds the verification codes for the OAuth2 PKCE
// (Proof Key for Code Exchange) flow.
type PKCECodes struct {
	// CodeVerifier is the cryptographically random string used to correlate
	// the authorization request to the token request.
	CodeVerifier string `json:"code_verifier"`
	// CodeChallenge is the SHA256 hash of the code verifier, base64url-encoded.
	CodeChallenge string `json:"code_challenge"`
}

// GeneratePKCECodes generates a new pair of PKCE codes as specified in
// RFC 7636. The verifier is derived from 64 random bytes and encoded as
// URL-safe base64 without padding; the challenge is the base64url-encoded
// SHA256 digest of the verifier string (S256 method).
func GeneratePKCECodes() (*PKCECodes, error) {
	bytes := make([]byte, 64)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	codeVerifier := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes)

	hash := sha256.Sum256([]byte(codeVerifier))
	codeChallenge := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])

	return &PKCECodes{
		CodeVerifier:  codeVerifier,
		CodeChallenge: codeChallenge,
	}, nil
}

// GenerateState generates a cryptographically secure random state parameter
// for OAuth2 flows to prevent CSRF attacks. The value is 32 random bytes
// encoded as URL-safe base64 without padding.
func GenerateState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes), nil
}
