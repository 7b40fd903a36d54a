// Package cmd implements the actions behind codexd's command-line flags.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/codexia/codexd/internal/auth/openai"
	"github.com/codexia/codexd/internal/auth/store"
	"github.com/codexia/codexd/internal/config"
	log "github.com/sirupsen/logrus"
)

// LoginOptions contains options for the login processes.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// CallbackPort overrides the local OAuth callback port when set (>0).
	CallbackPort int
}

// DoLogin runs the OAuth authorization code flow and persists the resulting
// tokens to {codexHome}/auth.json.
func DoLogin(cfg *config.Config, options *LoginOptions) {
	if options == nil {
		options = &LoginOptions{}
	}

	client := openai.NewClient(cfg)
	credStore := store.New(cfg.CodexHome, client)
	authenticator := openai.NewAuthenticator(cfg, client, credStore)

	tokens, err := authenticator.Login(context.Background(), &openai.LoginOptions{
		NoBrowser:    options.NoBrowser,
		CallbackPort: options.CallbackPort,
	})
	if err != nil {
		var authErr *openai.AuthenticationError
		if errors.As(err, &authErr) {
			log.Error(authErr.Message)
			if authErr.Type == openai.ErrPortInUse.Type {
				os.Exit(openai.ErrPortInUse.Code)
			}
			return
		}
		fmt.Printf("Authentication failed: %v\n", err)
		return
	}

	fmt.Printf("Authentication saved to %s\n", credStore.AuthFilePath())
	if tokens.IDToken.Email != "" {
		fmt.Printf("Logged in as %s\n", tokens.IDToken.Email)
	}
}

// DoAPIKeyLogin persists a raw API key as the active credential.
func DoAPIKeyLogin(cfg *config.Config, apiKey string) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		fmt.Println("API key must not be empty")
		return
	}

	credStore := store.New(cfg.CodexHome, openai.NewClient(cfg))
	if err := credStore.LoginWithAPIKey(apiKey); err != nil {
		fmt.Printf("Failed to save API key: %v\n", err)
		return
	}
	fmt.Printf("API key saved to %s\n", credStore.AuthFilePath())
}

// DoLogout removes the persisted credentials.
func DoLogout(cfg *config.Config) {
	credStore := store.New(cfg.CodexHome, openai.NewClient(cfg))
	removed, err := credStore.Logout()
	if err != nil {
		fmt.Printf("Logout failed: %v\n", err)
		return
	}
	if removed {
		fmt.Println("Logged out")
	} else {
		fmt.Println("Not logged in")
	}
}

// DoStatus prints the current authentication state.
func DoStatus(cfg *config.Config) {
	credStore := store.New(cfg.CodexHome, openai.NewClient(cfg))
	cred, err := credStore.Load()
	if err != nil {
		fmt.Printf("Failed to read credentials: %v\n", err)
		return
	}
	if cred == nil {
		fmt.Println("Not logged in")
		return
	}

	switch cred.Mode {
	case store.ModeAPIKey:
		fmt.Println("Logged in with an API key")
	case store.ModeChatGPT:
		fmt.Println("Logged in with a ChatGPT session")
		tokens, errTokens := credStore.GetTokenData(context.Background())
		if errTokens != nil {
			log.Debugf("could not load session tokens: %v", errTokens)
			return
		}
		if tokens.IDToken.Email != "" {
			fmt.Printf("  account: %s\n", tokens.IDToken.Email)
		}
		if tokens.IDToken.PlanType != nil {
			fmt.Printf("  plan:    %s\n", tokens.IDToken.PlanType.String())
		}
	}
}
