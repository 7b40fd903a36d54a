// Package main provides the entry point for codexd, a local companion for
// the codex CLI: it manages OpenAI authentication (OAuth login or API key)
// and drives codex subprocess sessions over the proto protocol.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codexia/codexd/internal/cmd"
	"github.com/codexia/codexd/internal/config"
	"github.com/codexia/codexd/internal/logging"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

// main parses command-line flags, loads configuration, and dispatches to
// the requested mode (login, api-key, logout, status, sessions, or chat).
func main() {
	var login bool
	var apiKey string
	var logout bool
	var status bool
	var sessions bool
	var noBrowser bool
	var oauthCallbackPort int
	var configPath string
	var workingDir string
	var showVersion bool

	flag.BoolVar(&login, "login", false, "Login to OpenAI using OAuth")
	flag.StringVar(&apiKey, "api-key", "", "Login with a raw OpenAI API key")
	flag.BoolVar(&logout, "logout", false, "Remove stored credentials")
	flag.BoolVar(&status, "status", false, "Show authentication status")
	flag.BoolVar(&sessions, "sessions", false, "List recorded codex sessions")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.IntVar(&oauthCallbackPort, "oauth-callback-port", 0, "Override OAuth callback port (defaults to 1455)")
	flag.StringVar(&configPath, "config", "", "Configure File Path")
	flag.StringVar(&workingDir, "cwd", "", "Working directory for the codex session")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("codexd Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}

	if err = logging.ConfigureLogOutput(cfg.CodexHome, cfg.LoggingToFile, cfg.Debug); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}

	options := &cmd.LoginOptions{
		NoBrowser:    noBrowser,
		CallbackPort: oauthCallbackPort,
	}

	switch {
	case login:
		cmd.DoLogin(cfg, options)
	case apiKey != "":
		cmd.DoAPIKeyLogin(cfg, apiKey)
	case logout:
		cmd.DoLogout(cfg)
	case status:
		cmd.DoStatus(cfg)
	case sessions:
		cmd.DoSessions(cfg)
	default:
		cmd.DoChat(cfg, workingDir)
	}
}
