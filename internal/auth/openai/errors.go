package openai

import (
	"errors"
	"fmt"
	"net/http"
)

// Error type identifiers used to classify authentication failures.
const (
	ErrTypeIO           = "io_error"
	ErrTypeParse        = "parse_error"
	ErrTypeNetwork      = "network_error"
	ErrTypeProtocol     = "protocol_error"
	ErrTypeMissingField = "missing_field"
)

// OAuthError represents an OAuth-specific error reported by the provider,
// typically via the error query parameter on the redirect.
type OAuthError struct {
	// Code is the OAuth error code.
	Code string `json:"error"`
	// Description is a human-readable description of the error.
	Description string `json:"error_description,omitempty"`
	// StatusCode is the HTTP status code associated with the error.
	StatusCode int `json:"-"`
}

// Error returns a string representation of the OAuth error.
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("OAuth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("OAuth error: %s", e.Code)
}

// NewOAuthError creates a new OAuth error with the specified code, description, and status code.
func NewOAuthError(code, description string, statusCode int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		StatusCode:  statusCode,
	}
}

// AuthenticationError represents authentication-related errors.
type AuthenticationError struct {
	// Type is the type of authentication error.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status code associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error that caused this authentication error.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Common authentication error values.
var (
	// ErrInvalidState represents an invalid OAuth state parameter.
	ErrInvalidState = &AuthenticationError{
		Type:    ErrTypeProtocol,
		Message: "OAuth state parameter is invalid",
		Code:    http.StatusBadRequest,
	}

	// ErrCodeExchangeFailed represents a failed authorization-code exchange.
	ErrCodeExchangeFailed = &AuthenticationError{
		Type:    ErrTypeNetwork,
		Message: "Failed to exchange authorization code for tokens",
		Code:    http.StatusBadRequest,
	}

	// ErrServerStartFailed represents a failure to start the OAuth callback server.
	ErrServerStartFailed = &AuthenticationError{
		Type:    "server_start_failed",
		Message: "Failed to start OAuth callback server",
		Code:    http.StatusInternalServerError,
	}

	// ErrPortInUse indicates the OAuth callback port is already bound.
	ErrPortInUse = &AuthenticationError{
		Type:    "port_in_use",
		Message: "OAuth callback port is already in use",
		Code:    13, // Special exit code for port-in-use
	}

	// ErrLoginCancelled indicates the login attempt was cancelled by the caller
	// before reaching a terminal callback state.
	ErrLoginCancelled = &AuthenticationError{
		Type:    "login_cancelled",
		Message: "Login attempt was cancelled",
		Code:    http.StatusRequestTimeout,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// NewNetworkError wraps a non-2xx token endpoint response, carrying the body.
func NewNetworkError(statusCode int, body string) *AuthenticationError {
	return &AuthenticationError{
		Type:    ErrTypeNetwork,
		Message: fmt.Sprintf("token endpoint returned status %d: %s", statusCode, body),
		Code:    statusCode,
	}
}

// NewMissingFieldError reports a required field absent from a token response.
func NewMissingFieldError(field string) *AuthenticationError {
	return &AuthenticationError{
		Type:    ErrTypeMissingField,
		Message: fmt.Sprintf("token response missing required field %q", field),
		Code:    http.StatusBadGateway,
	}
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	var authenticationError *AuthenticationError
	return errors.As(err, &authenticationError)
}

// ErrorType returns the Type of the authentication error wrapped in err,
// or the empty string when err is not an authentication error.
func ErrorType(err error) string {
	var authenticationError *AuthenticationError
	if errors.As(err, &authenticationError) {
		return authenticationError.Type
	}
	return ""
}
