package openai

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ID token parse failures, one per failure mode. A token that fails any of
// these never yields partial claims.
var (
	// ErrIDTokenFormat reports a compact token without exactly 3 dot-separated segments.
	ErrIDTokenFormat = errors.New("invalid id token: expected 3 dot-separated segments")
	// ErrIDTokenEncoding reports a payload segment that is not valid base64url.
	ErrIDTokenEncoding = errors.New("invalid id token: payload is not valid base64url")
	// ErrIDTokenPayload reports a decoded payload that is not valid JSON.
	ErrIDTokenPayload = errors.New("invalid id token: payload is not valid JSON")
)

// KnownPlan enumerates the ChatGPT subscription tiers this package understands.
type KnownPlan string

// Known ChatGPT plan tiers.
const (
	PlanFree       KnownPlan = "free"
	PlanPlus       KnownPlan = "plus"
	PlanPro        KnownPlan = "pro"
	PlanBusiness   KnownPlan = "business"
	PlanEnterprise KnownPlan = "enterprise"
	PlanEdu        KnownPlan = "edu"
)

// PlanType carries the ChatGPT subscription plan claim from an ID token.
// Values outside the known tier set are preserved verbatim rather than
// rejected, so new provider tiers do not break parsing.
type PlanType struct {
	value string
	known bool
}

// ParsePlanType classifies a raw plan claim string.
func ParsePlanType(value string) PlanType {
	switch KnownPlan(value) {
	case PlanFree, PlanPlus, PlanPro, PlanBusiness, PlanEnterprise, PlanEdu:
		return PlanType{value: value, known: true}
	default:
		return PlanType{value: value}
	}
}

// Known returns the recognized tier and whether the plan belongs to the
// closed set of known tiers.
func (p PlanType) Known() (KnownPlan, bool) {
	if !p.known {
		return "", false
	}
	return KnownPlan(p.value), true
}

// String returns the plan claim exactly as the provider sent it.
func (p PlanType) String() string {
	return p.value
}

// shouldUseAPIKey reports whether this plan bills through a metered API key
// rather than a ChatGPT session.
func (p PlanType) shouldUseAPIKey() bool {
	return p.known && KnownPlan(p.value) == PlanEnterprise
}

// MarshalJSON serializes the plan claim as its raw string value.
func (p PlanType) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.value)
}

// UnmarshalJSON restores a plan claim from its raw string value.
func (p *PlanType) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*p = ParsePlanType(value)
	return nil
}

// IDTokenInfo is the flat subset of useful claims parsed from an ID token.
// The original compact token is retained for re-serialization.
type IDTokenInfo struct {
	// Email is the account email claim, empty when absent.
	Email string
	// PlanType is the ChatGPT subscription plan claim, nil when absent.
	PlanType *PlanType
	// AccountID is the ChatGPT account identifier claim, empty when absent.
	AccountID string
	// RawJWT is the original compact token.
	RawJWT string
}

// ShouldUseAPIKey reports whether the subscription indicated by these claims
// should authorize with a metered API key instead of session tokens. A token
// without a plan claim counts as metered.
func (i *IDTokenInfo) ShouldUseAPIKey() bool {
	return i.PlanType == nil || i.PlanType.shouldUseAPIKey()
}

// ParseIDToken extracts claims from a compact ID token without verifying its
// signature. The token must already have been validated by the authorization
// server; this only introspects the payload.
func ParseIDToken(token string) (*IDTokenInfo, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w (got %d)", ErrIDTokenFormat, len(parts))
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIDTokenEncoding, err)
	}

	if !gjson.ValidBytes(payload) {
		return nil, ErrIDTokenPayload
	}

	info := &IDTokenInfo{
		Email:     gjson.GetBytes(payload, "email").String(),
		AccountID: gjson.GetBytes(payload, `https://api\.openai\.com/auth.chatgpt_account_id`).String(),
		RawJWT:    token,
	}

	if plan := gjson.GetBytes(payload, `https://api\.openai\.com/auth.chatgpt_plan_type`); plan.Exists() {
		parsed := ParsePlanType(plan.String())
		info.PlanType = &parsed
	}

	return info, nil
}

// base64URLDecode decodes a base64url string, re-adding padding when absent.
func base64URLDecode(data string) ([]byte, error) {
	switch len(data) % 4 {
	case 2:
		data += "=="
	case 3:
		data += "="
	}
	return base64.URLEncoding.DecodeString(data)
}

// TokenData holds the OAuth token set obtained from the provider.
type TokenData struct {
	// IDToken carries the parsed identity claims plus the raw compact token.
	IDToken IDTokenInfo
	// AccessToken is the OAuth2 access token for API access.
	AccessToken string
	// RefreshToken is used to obtain new access tokens.
	RefreshToken string
	// AccountID is the OpenAI account identifier, empty when unknown.
	AccountID string
}

// tokenDataJSON is the on-disk and wire representation of TokenData. The
// id_token field serializes as the raw compact token, not the parsed claims.
type tokenDataJSON struct {
	IDToken      string  `json:"id_token"`
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	AccountID    *string `json:"account_id"`
}

// MarshalJSON serializes the token set with id_token as its compact string.
func (t TokenData) MarshalJSON() ([]byte, error) {
	out := tokenDataJSON{
		IDToken:      t.IDToken.RawJWT,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	if t.AccountID != "" {
		out.AccountID = &t.AccountID
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a token set, re-parsing the identity claims from
// the compact id_token string. A malformed id_token fails the unmarshal.
func (t *TokenData) UnmarshalJSON(data []byte) error {
	var raw tokenDataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	info, err := ParseIDToken(raw.IDToken)
	if err != nil {
		return err
	}

	t.IDToken = *info
	t.AccessToken = raw.AccessToken
	t.RefreshToken = raw.RefreshToken
	if raw.AccountID != nil {
		t.AccountID = *raw.AccountID
	} else {
		t.AccountID = ""
	}
	return nil
}
