package codex

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/codexia/codexd/internal/auth/openai"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CredentialSource supplies credential material exported to the codex
// subprocess. It is the credential store's public contract.
type CredentialSource interface {
	// GetAPIKey returns the API key when API-key mode is active.
	GetAPIKey() (string, bool)
	// GetTokenData returns a currently-valid OAuth token set, refreshing a
	// stale one first.
	GetTokenData(ctx context.Context) (*openai.TokenData, error)
}

// SessionConfig configures one codex subprocess session.
type SessionConfig struct {
	WorkingDirectory string
	Model            string
	Provider         string
	UseOSS           bool
	ApprovalPolicy   string
	SandboxMode      string
	CodexPath        string
	CustomArgs       []string
}

// Client manages one codex subprocess speaking the proto JSONL protocol:
// submissions down stdin, events up stdout, one JSON object per line.
type Client struct {
	sessionID string
	cmd       *exec.Cmd
	stdin     chan string
	events    chan *Event
	done      chan struct{}
	closeOnce sync.Once
	config    SessionConfig
}

// NewClient spawns a codex proto subprocess for the given session. The
// credential source populates the child's environment: an API key is
// exported directly, while in session-token mode the store is asked for a
// fresh token set first so the auth.json the child reads is not stale.
func NewClient(ctx context.Context, sessionID string, cfg SessionConfig, creds CredentialSource, codexHome string) (*Client, error) {
	command := cfg.CodexPath
	if command == "" {
		discovered, err := DiscoverCodexCommand()
		if err != nil {
			return nil, err
		}
		command = discovered
	}

	args := []string{"proto"}
	args = append(args, sessionArgs(cfg)...)
	args = append(args, cfg.CustomArgs...)

	cmd := exec.Command(command, args...)
	if cfg.WorkingDirectory != "" {
		cmd.Dir = cfg.WorkingDirectory
	}
	cmd.Env = sessionEnv(ctx, creds)

	log.Debugf("starting codex: %s %v", command, args)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open codex stdin: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open codex stdout: %w", err)
	}
	cmd.Stderr = log.StandardLogger().WriterLevel(log.DebugLevel)

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start codex: %w", err)
	}

	c := &Client{
		sessionID: sessionID,
		cmd:       cmd,
		stdin:     make(chan string, 16),
		events:    make(chan *Event, 256),
		done:      make(chan struct{}),
		config:    cfg,
	}

	go c.writeLoop(stdinPipe)
	go c.readLoop(stdoutPipe, codexHome)

	return c, nil
}

// sessionArgs translates the session config into codex -c overrides.
func sessionArgs(cfg SessionConfig) []string {
	var args []string
	appendOverride := func(key, value string) {
		args = append(args, "-c", fmt.Sprintf("%s=%s", key, value))
	}

	switch {
	case cfg.UseOSS:
		appendOverride("model_provider", "oss")
	case cfg.Provider != "" && cfg.Provider != "openai":
		appendOverride("model_provider", cfg.Provider)
	}
	if cfg.Model != "" {
		appendOverride("model", cfg.Model)
	}
	if cfg.ApprovalPolicy != "" {
		appendOverride("approval_policy", cfg.ApprovalPolicy)
	}
	if cfg.SandboxMode != "" {
		appendOverride("sandbox_mode", cfg.SandboxMode)
	}
	// Required for agent_message_delta events to be generated.
	appendOverride("show_raw_agent_reasoning", "true")
	if cfg.WorkingDirectory != "" {
		appendOverride("cwd", cfg.WorkingDirectory)
	}
	return args
}

// sessionEnv builds the child environment from the credential source.
func sessionEnv(ctx context.Context, creds CredentialSource) []string {
	env := os.Environ()
	if creds == nil {
		return env
	}

	if apiKey, ok := creds.GetAPIKey(); ok {
		env = append(env, fmt.Sprintf("%s=%s", openai.APIKeyEnvVar, apiKey))
		return env
	}

	// Session-token mode: codex reads auth.json itself; asking for token
	// data here triggers a refresh when the persisted set is stale.
	if _, err := creds.GetTokenData(ctx); err != nil {
		log.Warnf("could not ensure fresh session tokens for codex: %v", err)
	}
	return env
}

// Events returns the stream of parsed events from the codex process. The
// channel closes when the process's stdout closes.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// SessionID returns the session identifier this client was created with.
func (c *Client) SessionID() string {
	return c.sessionID
}

// SendUserInput submits a plain text user message.
func (c *Client) SendUserInput(message string) error {
	return c.send(NewUserInputOp(InputItem{Type: InputText, Text: message}))
}

// SendUserInputWithMedia submits a text message plus local image paths.
func (c *Client) SendUserInputWithMedia(message string, mediaPaths []string) error {
	items := []InputItem{{Type: InputText, Text: message}}
	for _, path := range mediaPaths {
		items = append(items, InputItem{Type: InputLocalImage, Path: path})
	}
	return c.send(NewUserInputOp(items...))
}

// SendExecApproval answers an exec approval request.
func (c *Client) SendExecApproval(approvalID string, approved bool) error {
	return c.send(NewExecApprovalOp(approvalID, approved))
}

// SendPatchApproval answers a patch approval request.
func (c *Client) SendPatchApproval(approvalID string, approved bool) error {
	return c.send(NewPatchApprovalOp(approvalID, approved))
}

// Interrupt asks codex to abort the current turn.
func (c *Client) Interrupt() error {
	return c.send(NewInterruptOp())
}

func (c *Client) send(op Op) error {
	submission := Submission{ID: uuid.NewString(), Op: op}
	data, err := json.Marshal(submission)
	if err != nil {
		return err
	}

	select {
	case c.stdin <- string(data):
		return nil
	case <-c.done:
		return fmt.Errorf("codex session %s is closed", c.sessionID)
	}
}

// Close shuts the session down gracefully: a shutdown op is sent, stdin is
// closed, and the process is killed if it has not exited shortly after.
// Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		log.Debugf("closing codex session %s", c.sessionID)

		if err := c.send(NewShutdownOp()); err != nil {
			log.Errorf("failed to send shutdown op: %v", err)
		}
		close(c.done)

		exited := make(chan error, 1)
		go func() {
			exited <- c.cmd.Wait()
		}()

		select {
		case err := <-exited:
			if err != nil {
				log.Debugf("codex process exited: %v", err)
			}
		case <-time.After(2 * time.Second):
			log.Debug("codex process still running, terminating")
			if err := c.cmd.Process.Kill(); err != nil {
				log.Errorf("failed to kill codex process: %v", err)
			}
			<-exited
		}

		log.Debugf("codex session %s closed", c.sessionID)
	})
	return nil
}

// writeLoop serializes submissions onto the child's stdin, one per line.
// On shutdown it drains whatever is already queued (usually the shutdown
// op itself) before closing the pipe.
func (c *Client) writeLoop(stdin io.WriteCloser) {
	defer func() {
		_ = stdin.Close()
	}()

	writeLine := func(line string) bool {
		if _, err := io.WriteString(stdin, line+"\n"); err != nil {
			log.Errorf("failed to write to codex stdin: %v", err)
			return false
		}
		return true
	}

	for {
		select {
		case line := <-c.stdin:
			if !writeLine(line) {
				return
			}
		case <-c.done:
			for {
				select {
				case line := <-c.stdin:
					if !writeLine(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop parses event lines from the child's stdout, mirrors every line
// into the per-session debug log, and forwards parsed events.
func (c *Client) readLoop(stdout io.Reader, codexHome string) {
	defer close(c.events)

	debugLog := c.openDebugLog(codexHome)
	if debugLog != nil {
		defer func() {
			_ = debugLog.Close()
		}()
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var seq uint64
	for scanner.Scan() {
		line := scanner.Text()

		var event Event
		parseErr := json.Unmarshal([]byte(line), &event)

		c.appendDebugRecord(debugLog, seq, line, &event, parseErr)
		seq++

		if parseErr != nil {
			log.Warnf("failed to parse codex event: %s", line)
			continue
		}

		select {
		case c.events <- &event:
		case <-c.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debugf("codex stdout read ended: %v", err)
	}
	log.Debugf("codex stdout closed for session %s", c.sessionID)
}

// openDebugLog opens the per-session JSONL event log under
// {codexHome}/debug/. Failures are logged and disable the mirror.
func (c *Client) openDebugLog(codexHome string) *os.File {
	if codexHome == "" {
		return nil
	}
	dir := filepath.Join(codexHome, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warnf("failed to create debug log dir %s: %v", dir, err)
		return nil
	}
	name := fmt.Sprintf("events-%s-%s.jsonl", time.Now().UTC().Format("20060102-150405"), c.sessionID)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warnf("could not open debug event log: %v", err)
		return nil
	}
	return f
}

// debugRecord is one line of the per-session event mirror.
type debugRecord struct {
	TS        string `json:"ts"`
	Seq       uint64 `json:"seq"`
	SessionID string `json:"session_id"`
	OK        bool   `json:"ok"`
	Event     *Event `json:"event,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

func (c *Client) appendDebugRecord(f *os.File, seq uint64, line string, event *Event, parseErr error) {
	if f == nil {
		return
	}
	record := debugRecord{
		TS:        time.Now().UTC().Format(time.RFC3339),
		Seq:       seq,
		SessionID: c.sessionID,
		OK:        parseErr == nil,
	}
	if parseErr == nil {
		record.Event = event
	} else {
		record.Raw = line
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	if _, err = f.Write(append(data, '\n')); err != nil {
		log.Debugf("failed to append debug record: %v", err)
	}
}
