package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/codexia/codexd/internal/browser"
	"github.com/codexia/codexd/internal/config"
	log "github.com/sirupsen/logrus"
)

// TokenSaver persists a token set obtained from a completed login.
type TokenSaver interface {
	SaveTokens(tokens *TokenData) error
}

// LoginOptions configures a single login attempt.
type LoginOptions struct {
	// NoBrowser skips opening the browser automatically; the authorization
	// URL is printed for the user to visit instead.
	NoBrowser bool

	// CallbackPort overrides the local OAuth callback port when set (>0).
	CallbackPort int
}

// Authenticator owns a login attempt end-to-end: it generates the PKCE and
// state material, builds the authorization URL, hosts the one-shot callback
// listener, and hands exchanged tokens to the saver.
type Authenticator struct {
	client       *Client
	saver        TokenSaver
	callbackPort int
}

// NewAuthenticator constructs an authenticator using the given exchange
// client and token persistence.
func NewAuthenticator(cfg *config.Config, client *Client, saver TokenSaver) *Authenticator {
	port := cfg.Auth.CallbackPort
	if port <= 0 {
		port = config.DefaultCallbackPort
	}
	return &Authenticator{
		client:       client,
		saver:        saver,
		callbackPort: port,
	}
}

// Login runs the authorization-code + PKCE flow and returns the exchanged
// token set. The tokens are persisted through the saver before the success
// page is served. Cancelling ctx cancels the attempt; the returned error
// then carries the login_cancelled type, distinct from callback failures.
func (a *Authenticator) Login(ctx context.Context, opts *LoginOptions) (*TokenData, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts == nil {
		opts = &LoginOptions{}
	}

	callbackPort := a.callbackPort
	if opts.CallbackPort > 0 {
		callbackPort = opts.CallbackPort
	}
	redirectURI := RedirectURI(callbackPort)

	pkceCodes, err := GeneratePKCECodes()
	if err != nil {
		return nil, fmt.Errorf("pkce generation failed: %w", err)
	}

	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("state generation failed: %w", err)
	}

	authURL, err := BuildAuthorizationURL(a.client.Issuer(), a.client.ClientID(), redirectURI, state, pkceCodes)
	if err != nil {
		return nil, fmt.Errorf("authorization url generation failed: %w", err)
	}

	var tokens *TokenData
	server := NewCallbackServer(callbackPort, state, func(exchangeCtx context.Context, code string) error {
		exchanged, errExchange := a.client.ExchangeCode(exchangeCtx, code, pkceCodes, redirectURI)
		if errExchange != nil {
			return errExchange
		}
		if errSave := a.saver.SaveTokens(exchanged); errSave != nil {
			return fmt.Errorf("failed to save tokens: %w", errSave)
		}
		tokens = exchanged
		return nil
	})

	if err = server.Start(); err != nil {
		return nil, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if stopErr := server.Stop(stopCtx); stopErr != nil {
			log.Warnf("oauth callback server stop error: %v", stopErr)
		}
	}()

	if opts.NoBrowser || !browser.IsAvailable() {
		fmt.Printf("Visit the following URL to continue authentication:\n%s\n", authURL)
	} else if err = browser.OpenURL(authURL); err != nil {
		log.Warnf("Failed to open browser automatically: %v", err)
		fmt.Printf("Visit the following URL to continue authentication:\n%s\n", authURL)
	}

	log.Debug("Waiting for authentication callback")

	outcome, err := server.Wait(ctx)
	if outcome != OutcomeSuccess {
		return nil, err
	}
	return tokens, nil
}
