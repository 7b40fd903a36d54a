// Package store persists OpenAI credentials to auth.json, caches the OAuth
// token set in memory, and refreshes it lazily when stale. The file layout
// is shared with the codex CLI so both tools see the same login.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/codexia/codexd/internal/auth/openai"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/singleflight"
)

// Mode identifies which authorization mechanism is active.
type Mode string

// Authorization modes.
const (
	// ModeAPIKey authorizes with a metered API key.
	ModeAPIKey Mode = "api_key"
	// ModeChatGPT authorizes with ChatGPT session tokens.
	ModeChatGPT Mode = "chatgpt"
)

// refreshAfter is how long a token set is served from cache before a lazy
// refresh. Provider access tokens expire at 60 minutes; refreshing at 50
// leaves headroom against clock skew and in-flight requests.
const refreshAfter = 50 * time.Minute

// ErrNoTokenData is returned by GetTokenData when no OAuth token set is
// available, either because API-key mode is active or nothing is cached.
var ErrNoTokenData = errors.New("no oauth token data available")

// Credential reports the active authorization mode and, in API-key mode,
// the key itself.
type Credential struct {
	Mode   Mode
	APIKey string
}

// GetAPIKey returns the API key when one backs this credential.
func (c *Credential) GetAPIKey() (string, bool) {
	if c.APIKey == "" {
		return "", false
	}
	return c.APIKey, true
}

// authDotJSON mirrors the auth.json file written by the codex CLI. All
// fields are independently optional; the active mode is resolved at read
// time, not write time.
type authDotJSON struct {
	OpenAIAPIKey *string           `json:"OPENAI_API_KEY"`
	Tokens       *openai.TokenData `json:"tokens"`
	LastRefresh  *time.Time        `json:"last_refresh"`
}

// Store owns the persisted credential file and the in-process token cache.
// One Store instance per process; concurrent readers share the cache
// through its lock.
type Store struct {
	codexHome string
	client    *openai.Client

	mu          sync.Mutex
	mode        Mode
	apiKey      string
	tokens      *openai.TokenData
	lastRefresh time.Time
	loaded      bool

	refreshGroup singleflight.Group

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a store rooted at codexHome. The client is used for token
// refreshes; it may be nil for stores that never refresh (tests, API-key
// only use).
func New(codexHome string, client *openai.Client) *Store {
	return &Store{
		codexHome: codexHome,
		client:    client,
		now:       time.Now,
	}
}

// AuthFilePath returns the location of the persisted credential file.
func (s *Store) AuthFilePath() string {
	return filepath.Join(s.codexHome, "auth.json")
}

// Load resolves the active credential. The OPENAI_API_KEY environment
// variable has highest priority and bypasses the file entirely. Otherwise
// the persisted file decides: a non-empty API key field wins unless stored
// tokens indicate a subscription plan that prefers session auth. A missing
// file yields (nil, nil); malformed JSON is an error.
func (s *Store) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*Credential, error) {
	if apiKey := os.Getenv(openai.APIKeyEnvVar); apiKey != "" {
		s.mode = ModeAPIKey
		s.apiKey = apiKey
		s.tokens = nil
		s.loaded = true
		return &Credential{Mode: ModeAPIKey, APIKey: apiKey}, nil
	}

	data, err := os.ReadFile(s.AuthFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			s.reset()
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read auth file: %w", err)
	}

	var authJSON authDotJSON
	if err = json.Unmarshal(data, &authJSON); err != nil {
		return nil, &openai.AuthenticationError{
			Type:    openai.ErrTypeParse,
			Message: "malformed auth file",
			Cause:   err,
		}
	}

	s.tokens = authJSON.Tokens
	if authJSON.LastRefresh != nil {
		s.lastRefresh = *authJSON.LastRefresh
	} else {
		s.lastRefresh = time.Time{}
	}
	s.loaded = true

	if authJSON.OpenAIAPIKey != nil && *authJSON.OpenAIAPIKey != "" {
		s.apiKey = *authJSON.OpenAIAPIKey
		if authJSON.Tokens == nil || authJSON.Tokens.IDToken.ShouldUseAPIKey() {
			s.mode = ModeAPIKey
			return &Credential{Mode: ModeAPIKey, APIKey: s.apiKey}, nil
		}
		s.mode = ModeChatGPT
		return &Credential{Mode: ModeChatGPT}, nil
	}

	s.apiKey = ""
	if authJSON.Tokens != nil {
		s.mode = ModeChatGPT
		return &Credential{Mode: ModeChatGPT}, nil
	}

	s.reset()
	return nil, nil
}

func (s *Store) reset() {
	s.mode = ""
	s.apiKey = ""
	s.tokens = nil
	s.lastRefresh = time.Time{}
	s.loaded = true
}

func (s *Store) ensureLoadedLocked() error {
	if s.loaded {
		return nil
	}
	_, err := s.loadLocked()
	return err
}

// LoginWithAPIKey overwrites the credential file with only the given API
// key, clearing any stored tokens and refresh timestamp.
func (s *Store) LoginWithAPIKey(apiKey string) error {
	data, err := json.MarshalIndent(authDotJSON{OpenAIAPIKey: &apiKey}, "", "  ")
	if err != nil {
		return err
	}
	if err = s.writeAuthFile(data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeAPIKey
	s.apiKey = apiKey
	s.tokens = nil
	s.lastRefresh = time.Time{}
	s.loaded = true
	return nil
}

// SaveTokens merges a token set into the credential file, preserving any
// stored API key and unknown fields, and stamps last_refresh with now.
func (s *Store) SaveTokens(tokens *openai.TokenData) error {
	now := s.now().UTC()
	if err := s.persistTokens(tokens, now); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *tokens
	s.tokens = &copied
	s.lastRefresh = now
	if s.apiKey != "" && tokens.IDToken.ShouldUseAPIKey() {
		s.mode = ModeAPIKey
	} else {
		s.mode = ModeChatGPT
	}
	s.loaded = true
	return nil
}

// persistTokens rewrites auth.json with the new token set and timestamp,
// leaving every other field in the file untouched.
func (s *Store) persistTokens(tokens *openai.TokenData, lastRefresh time.Time) error {
	existing, err := os.ReadFile(s.AuthFilePath())
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read auth file: %w", err)
		}
		existing = []byte(`{"OPENAI_API_KEY":null,"tokens":null,"last_refresh":null}`)
	}

	tokenJSON, err := json.Marshal(tokens)
	if err != nil {
		return err
	}

	merged, err := sjson.SetRawBytes(existing, "tokens", tokenJSON)
	if err != nil {
		return err
	}
	merged, err = sjson.SetBytes(merged, "last_refresh", lastRefresh.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}

	return s.writeAuthFile(merged)
}

// Logout deletes the credential file and reports whether one existed.
func (s *Store) Logout() (bool, error) {
	err := os.Remove(s.AuthFilePath())
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove auth file: %w", err)
	}

	s.mu.Lock()
	s.reset()
	s.mu.Unlock()

	return err == nil, nil
}

// GetAPIKey returns the API key when API-key mode is active.
func (s *Store) GetAPIKey() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		log.Debugf("credential load failed: %v", err)
		return "", false
	}
	if s.mode != ModeAPIKey || s.apiKey == "" {
		return "", false
	}
	return s.apiKey, true
}

// GetTokenData returns a currently-valid token set, refreshing it first
// when the cached set is older than the refresh window. In API-key mode it
// always fails. The lock is not held across the network call; concurrent
// callers that observe staleness share a single refresh through the
// singleflight group. A failed refresh leaves the cached and persisted
// token set untouched.
func (s *Store) GetTokenData(ctx context.Context) (*openai.TokenData, error) {
	s.mu.Lock()
	if err := s.ensureLoadedLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.mode == ModeAPIKey {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: api key mode is active", ErrNoTokenData)
	}
	if s.tokens == nil {
		s.mu.Unlock()
		return nil, ErrNoTokenData
	}

	age := s.now().Sub(s.lastRefresh)
	if age <= refreshAfter {
		copied := *s.tokens
		s.mu.Unlock()
		return &copied, nil
	}

	refreshToken := s.tokens.RefreshToken
	s.mu.Unlock()

	result, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return s.refresh(ctx, refreshToken)
	})
	if err != nil {
		return nil, err
	}

	copied := *(result.(*openai.TokenData))
	return &copied, nil
}

// refresh performs the network exchange and, on success, updates the cache
// and the persisted file.
func (s *Store) refresh(ctx context.Context, refreshToken string) (*openai.TokenData, error) {
	if s.client == nil {
		return nil, fmt.Errorf("token refresh requires an exchange client")
	}

	log.Debug("refreshing oauth token set")
	refreshed, err := s.client.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Providers may rotate the refresh token or keep it; retain the prior
	// one when the response omits it.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = refreshToken
	}
	if refreshed.AccountID == "" && s.tokens != nil {
		refreshed.AccountID = s.tokens.AccountID
	}
	now := s.now().UTC()
	copied := *refreshed
	s.tokens = &copied
	s.lastRefresh = now
	s.mu.Unlock()

	if err = s.persistTokens(refreshed, now); err != nil {
		log.Warnf("failed to persist refreshed tokens: %v", err)
	}

	return refreshed, nil
}

// writeAuthFile writes the credential file with owner-only permissions,
// creating the parent directory when absent.
func (s *Store) writeAuthFile(data []byte) error {
	if err := os.MkdirAll(s.codexHome, 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(s.AuthFilePath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(s.AuthFilePath(), 0o600); err != nil {
			return fmt.Errorf("failed to set auth file permissions: %w", err)
		}
	}
	return nil
}
