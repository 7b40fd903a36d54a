package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Outcome is the terminal state of a login attempt.
type Outcome int

// Terminal login outcomes.
const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailure
	OutcomeCancelled
)

// String returns a readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExchangeFunc performs the code-for-token exchange and persistence for a
// validated callback. It runs synchronously inside the callback handler;
// its error decides between the success and failure terminal states.
type ExchangeFunc func(ctx context.Context, code string) error

type callbackResult struct {
	outcome Outcome
	err     error
}

// CallbackServer hosts the one-shot local HTTP endpoint that receives the
// provider's authorization redirect for a single login attempt.
//
// Incoming requests drive a small state machine: while listening, requests
// outside /callback (or /callback retries without a code) get a waiting
// page; an error parameter or a state mismatch terminates the attempt as a
// failure; a matching state with a code triggers the exchange and
// terminates as success or failure. Cancellation is a third, distinct
// terminal state requested by the caller.
type CallbackServer struct {
	server        *http.Server
	port          int
	expectedState string
	exchange      ExchangeFunc

	resultChan chan callbackResult
	finishOnce sync.Once
	cancelled  atomic.Bool

	mu      sync.Mutex
	running bool
}

// NewCallbackServer creates a callback server for one login attempt.
// expectedState is the anti-CSRF value the redirect must echo; exchange is
// invoked at most once, with the authorization code.
func NewCallbackServer(port int, expectedState string, exchange ExchangeFunc) *CallbackServer {
	return &CallbackServer{
		port:          port,
		expectedState: expectedState,
		exchange:      exchange,
		resultChan:    make(chan callbackResult, 1),
	}
}

// Port returns the port the server binds.
func (s *CallbackServer) Port() int {
	return s.port
}

// Start binds 127.0.0.1:{port} and begins serving in a background
// goroutine. A port that is already bound yields ErrPortInUse.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return NewAuthenticationError(ErrPortInUse, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.running = true

	server := s.server
	go func() {
		if errServe := server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			s.finish(OutcomeFailure, NewAuthenticationError(ErrServerStartFailed, errServe))
		}
	}()

	return nil
}

// Wait blocks until the attempt reaches a terminal state or ctx is done.
// Context cancellation cancels the attempt and reports OutcomeCancelled.
// No timeout is enforced here; callers wanting bounded waits must arrange
// their own context deadline.
func (s *CallbackServer) Wait(ctx context.Context) (Outcome, error) {
	select {
	case result := <-s.resultChan:
		return result.outcome, result.err
	case <-ctx.Done():
		s.Cancel()
		return OutcomeCancelled, NewAuthenticationError(ErrLoginCancelled, ctx.Err())
	}
}

// Cancel terminates a listening attempt without a terminal HTTP response.
// It is safe to call at any time; after a terminal callback it is a no-op.
func (s *CallbackServer) Cancel() {
	s.cancelled.Store(true)
	s.finish(OutcomeCancelled, NewAuthenticationError(ErrLoginCancelled, nil))
	s.shutdown()
}

// Cancelled reports whether cancellation was requested.
func (s *CallbackServer) Cancelled() bool {
	return s.cancelled.Load()
}

// Stop shuts the server down. Called after a terminal state to release the
// port; the terminal result, if any, is preserved.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	return err
}

// handleRequest maps one HTTP request onto a state-machine transition.
func (s *CallbackServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/callback" {
		s.writeWaitingPage(w)
		return
	}

	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		log.Errorf("OAuth error received on callback: %s", errParam)
		s.writeHTML(w, http.StatusBadRequest, fmt.Sprintf(failurePageHTML, "Error: "+errParam))
		s.finish(OutcomeFailure, NewOAuthError(errParam, query.Get("error_description"), http.StatusBadRequest))
		return
	}

	// The state check is mandatory and precedes any token exchange.
	if query.Get("state") != s.expectedState {
		log.Error("OAuth callback state mismatch")
		s.writeHTML(w, http.StatusBadRequest, fmt.Sprintf(failurePageHTML, "Invalid state parameter"))
		s.finish(OutcomeFailure, NewAuthenticationError(ErrInvalidState, nil))
		return
	}

	code := query.Get("code")
	if code == "" {
		// Partial or duplicate redirect; keep listening.
		s.writeWaitingPage(w)
		return
	}

	if err := s.exchange(r.Context(), code); err != nil {
		log.Errorf("Failed to exchange authorization code: %v", err)
		s.writeHTML(w, http.StatusInternalServerError, fmt.Sprintf(failurePageHTML, "Error: "+err.Error()))
		s.finish(OutcomeFailure, NewAuthenticationError(ErrCodeExchangeFailed, err))
		return
	}

	s.writeHTML(w, http.StatusOK, successPageHTML)
	s.finish(OutcomeSuccess, nil)
}

// finish records the first terminal result and schedules server shutdown.
func (s *CallbackServer) finish(outcome Outcome, err error) {
	s.finishOnce.Do(func() {
		s.resultChan <- callbackResult{outcome: outcome, err: err}
		go s.shutdown()
	})
}

func (s *CallbackServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		log.Warnf("OAuth callback server stop error: %v", err)
	}
}

func (s *CallbackServer) writeWaitingPage(w http.ResponseWriter) {
	s.writeHTML(w, http.StatusOK, waitingPageHTML)
}

func (s *CallbackServer) writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Debugf("failed to write callback response: %v", err)
	}
}

const waitingPageHTML = `<html><body><h1>Codexia Authentication</h1><p>Waiting for authentication...</p></body></html>`

const successPageHTML = `<html><body><h1>Authentication Successful!</h1><p>You can now close this window and return to Codexia.</p></body></html>`

const failurePageHTML = `<html><body><h1>Authentication Failed</h1><p>%s</p></body></html>`
