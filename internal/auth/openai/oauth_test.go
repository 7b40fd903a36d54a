package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/codexia/codexd/internal/config"
)

func newTestClient(issuer string) *Client {
	return NewClient(&config.Config{
		Auth: config.AuthConfig{Issuer: issuer, ClientID: "client-1"},
	})
}

func testIDToken(t *testing.T) string {
	t.Helper()
	enc := base64.URLEncoding.WithPadding(base64.NoPadding)
	header := enc.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := enc.EncodeToString([]byte(`{"email":"a@b.com","https://api.openai.com/auth":{"chatgpt_plan_type":"plus","chatgpt_account_id":"acct-1"}}`))
	return header + "." + payload + ".sig"
}

func TestBuildAuthorizationURL(t *testing.T) {
	t.Parallel()

	pkce := &PKCECodes{CodeVerifier: "verifier", CodeChallenge: "challenge"}
	raw, err := BuildAuthorizationURL("https://auth.openai.com", "client-1", "http://127.0.0.1:1455/callback", "state-1", pkce)
	if err != nil {
		t.Fatalf("BuildAuthorizationURL: %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Scheme != "https" || parsed.Host != "auth.openai.com" || parsed.Path != "/authorize" {
		t.Fatalf("unexpected endpoint: %s", raw)
	}

	q := parsed.Query()
	want := map[string]string{
		"response_type":         "code",
		"client_id":             "client-1",
		"redirect_uri":          "http://127.0.0.1:1455/callback",
		"scope":                 "openid email",
		"state":                 "state-1",
		"code_challenge":        "challenge",
		"code_challenge_method": "S256",
	}
	for key, value := range want {
		if got := q.Get(key); got != value {
			t.Errorf("param %s = %q, want %q", key, got, value)
		}
	}
}

func TestBuildAuthorizationURLInvalidIssuer(t *testing.T) {
	t.Parallel()

	if _, err := BuildAuthorizationURL("not-a-url", "client-1", "http://127.0.0.1:1455/callback", "s", &PKCECodes{}); err == nil {
		t.Fatal("expected error for issuer without scheme")
	}
	if _, err := BuildAuthorizationURL("https://auth.openai.com", "client-1", "uri", "s", nil); err == nil {
		t.Fatal("expected error for nil PKCE codes")
	}
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	idToken := testIDToken(t)
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"id_token":      idToken,
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	pkce := &PKCECodes{CodeVerifier: "verifier-1", CodeChallenge: "challenge-1"}
	tokens, err := client.ExchangeCode(context.Background(), "code-1", pkce, RedirectURI(1455))
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}

	if gotForm.Get("grant_type") != "authorization_code" ||
		gotForm.Get("code") != "code-1" ||
		gotForm.Get("code_verifier") != "verifier-1" ||
		gotForm.Get("client_id") != "client-1" ||
		gotForm.Get("redirect_uri") != "http://127.0.0.1:1455/callback" {
		t.Fatalf("unexpected exchange form: %v", gotForm)
	}

	if tokens.AccessToken != "access-1" || tokens.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
	if tokens.IDToken.Email != "a@b.com" {
		t.Fatalf("id token not parsed: %+v", tokens.IDToken)
	}
	if tokens.AccountID != "acct-1" {
		t.Fatalf("account id not copied from claims: %q", tokens.AccountID)
	}
}

func TestExchangeCodeMissingFields(t *testing.T) {
	t.Parallel()

	idToken := testIDToken(t)
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing access_token", map[string]any{"refresh_token": "r", "id_token": idToken}},
		{"missing id_token", map[string]any{"access_token": "a", "refresh_token": "r"}},
		{"missing refresh_token", map[string]any{"access_token": "a", "id_token": idToken}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			client := newTestClient(srv.URL)
			_, err := client.ExchangeCode(context.Background(), "code-1", &PKCECodes{CodeVerifier: "v"}, RedirectURI(1455))
			if ErrorType(err) != ErrTypeMissingField {
				t.Fatalf("err = %v, want missing field error", err)
			}
		})
	}
}

func TestExchangeCodeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.ExchangeCode(context.Background(), "expired", &PKCECodes{CodeVerifier: "v"}, RedirectURI(1455))
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthenticationError", err)
	}
	if authErr.Type != ErrTypeNetwork || authErr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected error: %+v", authErr)
	}
	if !strings.Contains(authErr.Message, "invalid_grant") {
		t.Fatalf("error message should carry response body: %s", authErr.Message)
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	idToken := testIDToken(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "refresh-old" {
			t.Errorf("unexpected refresh form: %v", r.PostForm)
		}
		// A refresh response may omit refresh_token.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-2",
			"id_token":     idToken,
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	tokens, err := client.Refresh(context.Background(), "refresh-old")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tokens.AccessToken != "access-2" {
		t.Fatalf("unexpected access token: %q", tokens.AccessToken)
	}
	if tokens.RefreshToken != "" {
		t.Fatalf("expected empty refresh token when omitted, got %q", tokens.RefreshToken)
	}
}

func TestRefreshRequiresToken(t *testing.T) {
	t.Parallel()

	client := newTestClient("https://auth.openai.com")
	if _, err := client.Refresh(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty refresh token")
	}
}

func TestPostFormParseError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Refresh(context.Background(), "refresh-1")
	if ErrorType(err) != ErrTypeParse {
		t.Fatalf("err = %v, want parse error", err)
	}
}
