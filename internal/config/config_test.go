package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig returned error for missing file: %v", err)
	}
	if cfg.Auth.Issuer != DefaultIssuer {
		t.Errorf("issuer = %q, want %q", cfg.Auth.Issuer, DefaultIssuer)
	}
	if cfg.Auth.ClientID != DefaultClientID {
		t.Errorf("client id = %q, want %q", cfg.Auth.ClientID, DefaultClientID)
	}
	if cfg.Auth.CallbackPort != DefaultCallbackPort {
		t.Errorf("callback port = %d, want %d", cfg.Auth.CallbackPort, DefaultCallbackPort)
	}
	if cfg.CodexHome == "" {
		t.Error("codex home should default to a non-empty path")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
codex-home: /tmp/codex-test
proxy-url: socks5://127.0.0.1:1080
auth:
  issuer: https://auth.example.com
  callback-port: 9099
codex:
  model: gpt-5
  sandbox-mode: workspace-write
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CodexHome != "/tmp/codex-test" {
		t.Errorf("codex home = %q", cfg.CodexHome)
	}
	if cfg.Auth.Issuer != "https://auth.example.com" {
		t.Errorf("issuer = %q", cfg.Auth.Issuer)
	}
	if cfg.Auth.CallbackPort != 9099 {
		t.Errorf("callback port = %d", cfg.Auth.CallbackPort)
	}
	// Unset fields still fall back to defaults.
	if cfg.Auth.ClientID != DefaultClientID {
		t.Errorf("client id = %q, want default", cfg.Auth.ClientID)
	}
	if cfg.Codex.Model != "gpt-5" {
		t.Errorf("model = %q", cfg.Codex.Model)
	}
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
