package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codexia/codexd/internal/auth/openai"
	"github.com/codexia/codexd/internal/auth/store"
	"github.com/codexia/codexd/internal/codex"
	"github.com/codexia/codexd/internal/config"
	"github.com/codexia/codexd/internal/session"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DoSessions lists recorded codex rollouts under {codexHome}/sessions.
func DoSessions(cfg *config.Config) {
	files, err := session.ListSessionFiles(cfg.CodexHome)
	if err != nil {
		fmt.Printf("Failed to list sessions: %v\n", err)
		return
	}
	if len(files) == 0 {
		fmt.Println("No recorded sessions")
		return
	}
	for _, f := range files {
		fmt.Println(f)
	}
	latest, err := session.LatestSessionID(cfg.CodexHome)
	if err == nil && latest != "" {
		fmt.Printf("Latest session: %s\n", latest)
	}
}

// DoChat runs an interactive terminal conversation against a codex
// subprocess, relaying events to stdout and lines from stdin as user input.
func DoChat(cfg *config.Config, workingDir string) {
	credStore := store.New(cfg.CodexHome, openai.NewClient(cfg))
	if cred, err := credStore.Load(); err != nil {
		fmt.Printf("Failed to read credentials: %v\n", err)
		return
	} else if cred == nil {
		fmt.Println("Not logged in. Run with -login or -api-key first.")
		return
	}

	if workingDir == "" {
		workingDir = cfg.Codex.WorkingDirectory
	}
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Printf("Failed to resolve working directory: %v\n", err)
			return
		}
		workingDir = wd
	}

	sessionCfg := codex.SessionConfig{
		WorkingDirectory: workingDir,
		Model:            cfg.Codex.Model,
		Provider:         cfg.Codex.Provider,
		UseOSS:           cfg.Codex.UseOSS,
		ApprovalPolicy:   cfg.Codex.ApprovalPolicy,
		SandboxMode:      cfg.Codex.SandboxMode,
		CodexPath:        cfg.Codex.Path,
		CustomArgs:       cfg.Codex.CustomArgs,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pick up logins and logouts performed by the codex CLI while we run.
	go func() {
		if errWatch := credStore.Watch(ctx); errWatch != nil && !errors.Is(errWatch, context.Canceled) {
			log.Debugf("credential watcher stopped: %v", errWatch)
		}
	}()

	client, err := codex.NewClient(ctx, uuid.NewString(), sessionCfg, credStore, cfg.CodexHome)
	if err != nil {
		fmt.Printf("Failed to start codex: %v\n", err)
		return
	}
	defer func() {
		_ = client.Close()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if errInt := client.Interrupt(); errInt != nil {
			log.Debugf("interrupt failed: %v", errInt)
		}
		cancel()
	}()

	inputCh := make(chan string)
	go func() {
		defer close(inputCh)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
	}()

	fmt.Println("Connected to codex. Type a message and press enter; ctrl-d to exit.")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-inputCh:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err = client.SendUserInput(line); err != nil {
				fmt.Printf("Failed to send input: %v\n", err)
				return
			}
		case event, ok := <-client.Events():
			if !ok {
				fmt.Println("codex exited")
				return
			}
			printEvent(client, event)
		}
	}
}

// printEvent renders one codex event for the terminal.
func printEvent(client *codex.Client, event *codex.Event) {
	switch event.Msg.Type {
	case codex.EventSessionConfigured:
		fmt.Printf("[session ready, model %s]\n", event.Msg.Model)
	case codex.EventAgentMessage:
		if event.Msg.Message != "" {
			fmt.Println(event.Msg.Message)
		}
	case codex.EventAgentMessageDelta:
		fmt.Print(event.Msg.Delta)
	case codex.EventTaskComplete:
		fmt.Println()
	case codex.EventError:
		fmt.Printf("[error] %s\n", event.Msg.Message)
	case codex.EventExecApprovalRequest:
		fmt.Printf("[exec approval requested: %s] auto-denying\n", event.Msg.CommandString())
		if err := client.SendExecApproval(event.ID, false); err != nil {
			log.Debugf("exec approval reply failed: %v", err)
		}
	case codex.EventPatchApprovalRequest:
		fmt.Println("[patch approval requested] auto-denying")
		if err := client.SendPatchApproval(event.ID, false); err != nil {
			log.Debugf("patch approval reply failed: %v", err)
		}
	case codex.EventShutdownComplete:
		fmt.Println("[shutdown complete]")
	default:
		log.Debugf("event %s: %+v", event.Msg.Type, event.Msg)
	}
}
