package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/codexia/codexd/internal/config"
	"github.com/codexia/codexd/internal/util"
)

// APIKeyEnvVar is the environment variable that, when set and non-empty,
// forces API-key mode regardless of the persisted credential file.
const APIKeyEnvVar = "OPENAI_API_KEY"

// Client performs code-for-token exchanges and token refreshes against the
// authorization server's token endpoint.
type Client struct {
	httpClient *http.Client
	issuer     string
	clientID   string
}

// NewClient creates a token exchange client from the application
// configuration, honoring the configured proxy.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: util.SetProxy(cfg.ProxyURL, &http.Client{}),
		issuer:     cfg.Auth.Issuer,
		clientID:   cfg.Auth.ClientID,
	}
}

// Issuer returns the authorization server base URL this client targets.
func (c *Client) Issuer() string {
	return c.issuer
}

// ClientID returns the OAuth client identifier this client presents.
func (c *Client) ClientID() string {
	return c.clientID
}

// RedirectURI returns the local callback URI for the given listener port.
func RedirectURI(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", port)
}

// BuildAuthorizationURL composes the provider authorization URL for a PKCE
// login attempt. It is a pure function of its inputs and fails only when the
// issuer is not a well-formed absolute URL.
func BuildAuthorizationURL(issuer, clientID, redirectURI, state string, pkce *PKCECodes) (string, error) {
	if pkce == nil {
		return "", fmt.Errorf("PKCE codes are required")
	}

	authURL, err := url.Parse(fmt.Sprintf("%s/authorize", issuer))
	if err != nil {
		return "", fmt.Errorf("invalid issuer URL %q: %w", issuer, err)
	}
	if authURL.Scheme == "" || authURL.Host == "" {
		return "", fmt.Errorf("invalid issuer URL %q: missing scheme or host", issuer)
	}

	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {redirectURI},
		"scope":                 {"openid email"},
		"state":                 {state},
		"code_challenge":        {pkce.CodeChallenge},
		"code_challenge_method": {"S256"},
	}
	authURL.RawQuery = params.Encode()

	return authURL.String(), nil
}

// tokenResponse is the JSON body returned by the token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// ExchangeCode exchanges an authorization code for a token set. The response
// must contain access_token, id_token, and refresh_token; a missing field
// fails the exchange and nothing is persisted.
func (c *Client) ExchangeCode(ctx context.Context, code string, pkce *PKCECodes, redirectURI string) (*TokenData, error) {
	if pkce == nil {
		return nil, fmt.Errorf("PKCE codes are required for token exchange")
	}

	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.clientID},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {pkce.CodeVerifier},
	}

	resp, err := c.postForm(ctx, data)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, NewMissingFieldError("access_token")
	}
	if resp.IDToken == "" {
		return nil, NewMissingFieldError("id_token")
	}
	if resp.RefreshToken == "" {
		return nil, NewMissingFieldError("refresh_token")
	}

	return c.buildTokenData(resp)
}

// Refresh obtains a new token set using a refresh token. The provider may
// omit refresh_token from the response; the returned set then carries an
// empty RefreshToken and the caller must retain the prior one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenData, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"refresh_token": {refreshToken},
	}

	resp, err := c.postForm(ctx, data)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, NewMissingFieldError("access_token")
	}
	if resp.IDToken == "" {
		return nil, NewMissingFieldError("id_token")
	}

	return c.buildTokenData(resp)
}

func (c *Client) postForm(ctx context.Context, data url.Values) (*tokenResponse, error) {
	tokenURL := fmt.Sprintf("%s/token", c.issuer)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AuthenticationError{
			Type:    ErrTypeNetwork,
			Message: "token request failed",
			Code:    http.StatusBadGateway,
			Cause:   err,
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewNetworkError(resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err = json.Unmarshal(body, &tokenResp); err != nil {
		return nil, &AuthenticationError{
			Type:    ErrTypeParse,
			Message: "failed to parse token response",
			Code:    http.StatusBadGateway,
			Cause:   err,
		}
	}

	return &tokenResp, nil
}

func (c *Client) buildTokenData(resp *tokenResponse) (*TokenData, error) {
	info, err := ParseIDToken(resp.IDToken)
	if err != nil {
		return nil, err
	}

	return &TokenData{
		IDToken:      *info,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		AccountID:    info.AccountID,
	}, nil
}
