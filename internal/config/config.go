// Package config provides configuration management for codexd.
// It handles loading and parsing the YAML configuration file and provides
// structured access to application settings including the codex home
// directory, OAuth endpoints, proxy configuration, and codex subprocess
// defaults.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default OAuth endpoints and identifiers for the OpenAI provider.
const (
	// DefaultIssuer is the OpenAI authorization server.
	DefaultIssuer = "https://auth.openai.com"
	// DefaultClientID is the OAuth client ID registered for Codex.
	DefaultClientID = "app_EMoamEEZ73f0CkXaXp7hrann"
	// DefaultCallbackPort is the local port the OAuth redirect listener binds.
	DefaultCallbackPort = 1455
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// CodexHome is the directory holding auth.json, sessions, and logs.
	// Defaults to ~/.codex so credentials are shared with the codex CLI.
	CodexHome string `yaml:"codex-home"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	// Supports http, https, and socks5 schemes.
	ProxyURL string `yaml:"proxy-url"`

	// LoggingToFile redirects application logs to rotated files under
	// the codex home when enabled.
	LoggingToFile bool `yaml:"logging-to-file"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`

	// Auth configures the OAuth login flow.
	Auth AuthConfig `yaml:"auth"`

	// Codex configures the codex subprocess bridge.
	Codex CodexConfig `yaml:"codex"`
}

// AuthConfig holds OAuth endpoints and listener settings.
type AuthConfig struct {
	// Issuer is the base URL of the authorization server.
	Issuer string `yaml:"issuer"`

	// ClientID identifies this application to the authorization server.
	ClientID string `yaml:"client-id"`

	// CallbackPort is the local port for the OAuth redirect listener.
	CallbackPort int `yaml:"callback-port"`
}

// CodexConfig holds defaults for spawned codex subprocess sessions.
type CodexConfig struct {
	// Path overrides codex executable discovery when set.
	Path string `yaml:"path"`

	// Model is the default model passed to codex sessions.
	Model string `yaml:"model"`

	// Provider selects the model provider ("openai" when empty).
	Provider string `yaml:"provider"`

	// UseOSS switches the session to the oss model provider.
	UseOSS bool `yaml:"use-oss"`

	// ApprovalPolicy is the default approval policy for codex sessions.
	ApprovalPolicy string `yaml:"approval-policy"`

	// SandboxMode is the default sandbox mode for codex sessions.
	SandboxMode string `yaml:"sandbox-mode"`

	// WorkingDirectory is the default working directory for codex sessions.
	// Defaults to the current directory when empty.
	WorkingDirectory string `yaml:"working-directory"`

	// CustomArgs are appended verbatim to the codex command line.
	CustomArgs []string `yaml:"custom-args"`
}

// DefaultCodexHome returns the default codex home directory (~/.codex).
func DefaultCodexHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codex"
	}
	return filepath.Join(home, ".codex")
}

// LoadConfig reads the configuration file at the given path. A missing file
// is not an error; defaults are returned instead. Malformed YAML is an error.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CodexHome == "" {
		c.CodexHome = DefaultCodexHome()
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = DefaultIssuer
	}
	if c.Auth.ClientID == "" {
		c.Auth.ClientID = DefaultClientID
	}
	if c.Auth.CallbackPort <= 0 {
		c.Auth.CallbackPort = DefaultCallbackPort
	}
}
