package openai

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGeneratePKCECodes(t *testing.T) {
	t.Parallel()

	pkce, err := GeneratePKCECodes()
	if err != nil {
		t.Fatalf("GeneratePKCECodes: %v", err)
	}

	// 64 random bytes base64url-encode to 86 characters, inside the
	// RFC 7636 verifier length window of 43..128.
	if got := len(pkce.CodeVerifier); got < 43 || got > 128 {
		t.Fatalf("verifier length %d outside 43..128", got)
	}

	hash := sha256.Sum256([]byte(pkce.CodeVerifier))
	want := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
	if pkce.CodeChallenge != want {
		t.Fatalf("challenge = %q, want S256 of verifier %q", pkce.CodeChallenge, want)
	}

	if _, err = base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(pkce.CodeVerifier); err != nil {
		t.Fatalf("verifier is not unpadded base64url: %v", err)
	}
}

func TestGeneratePKCECodesUnique(t *testing.T) {
	t.Parallel()

	first, err := GeneratePKCECodes()
	if err != nil {
		t.Fatal(err)
	}
	second, err := GeneratePKCECodes()
	if err != nil {
		t.Fatal(err)
	}
	if first.CodeVerifier == second.CodeVerifier {
		t.Fatal("two generated verifiers are identical")
	}
}

func TestGenerateState(t *testing.T) {
	t.Parallel()

	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState: %v", err)
	}

	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(state)
	if err != nil {
		t.Fatalf("state is not unpadded base64url: %v", err)
	}
	if len(decoded) != 32 {
		t.Fatalf("state decodes to %d bytes, want 32", len(decoded))
	}

	other, err := GenerateState()
	if err != nil {
		t.Fatal(err)
	}
	if state == other {
		t.Fatal("two generated states are identical")
	}
}
