package openai

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

// makeJWT builds an unsigned compact token with the given JSON payload.
func makeJWT(t *testing.T, payload string) string {
	t.Helper()
	enc := base64.URLEncoding.WithPadding(base64.NoPadding)
	header := enc.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	return header + "." + enc.EncodeToString([]byte(payload)) + ".sig"
}

func TestParseIDToken(t *testing.T) {
	t.Parallel()

	token := makeJWT(t, `{
		"email": "a@b.com",
		"https://api.openai.com/auth": {
			"chatgpt_plan_type": "plus",
			"chatgpt_account_id": "acct-123"
		}
	}`)

	info, err := ParseIDToken(token)
	if err != nil {
		t.Fatalf("ParseIDToken: %v", err)
	}
	if info.Email != "a@b.com" {
		t.Errorf("email = %q, want a@b.com", info.Email)
	}
	if info.AccountID != "acct-123" {
		t.Errorf("account id = %q, want acct-123", info.AccountID)
	}
	if info.PlanType == nil {
		t.Fatal("plan type is nil")
	}
	if plan, ok := info.PlanType.Known(); !ok || plan != PlanPlus {
		t.Errorf("plan = %v known=%v, want plus", plan, ok)
	}
	if info.RawJWT != token {
		t.Error("raw token not retained")
	}
	if info.ShouldUseAPIKey() {
		t.Error("plus plan should use session tokens")
	}
}

func TestParseIDTokenErrors(t *testing.T) {
	t.Parallel()

	enc := base64.URLEncoding.WithPadding(base64.NoPadding)
	tests := []struct {
		name  string
		token string
		want  error
	}{
		{
			name:  "two segments",
			token: "aaa.bbb",
			want:  ErrIDTokenFormat,
		},
		{
			name:  "four segments",
			token: "a.b.c.d",
			want:  ErrIDTokenFormat,
		},
		{
			name:  "payload not base64url",
			token: "head.!!notbase64!!.sig",
			want:  ErrIDTokenEncoding,
		},
		{
			name:  "payload not json",
			token: "head." + enc.EncodeToString([]byte("not json")) + ".sig",
			want:  ErrIDTokenPayload,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseIDToken(tt.token)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ParseIDToken(%q) err = %v, want %v", tt.token, err, tt.want)
			}
		})
	}
}

func TestParseIDTokenMissingClaims(t *testing.T) {
	t.Parallel()

	info, err := ParseIDToken(makeJWT(t, `{"sub":"user-1"}`))
	if err != nil {
		t.Fatalf("ParseIDToken: %v", err)
	}
	if info.Email != "" || info.AccountID != "" {
		t.Errorf("expected empty claims, got email=%q account=%q", info.Email, info.AccountID)
	}
	if info.PlanType != nil {
		t.Errorf("expected nil plan, got %v", info.PlanType)
	}
	// A token without a plan claim indicates a metered account.
	if !info.ShouldUseAPIKey() {
		t.Error("missing plan claim should select API-key mode")
	}
}

func TestPlanTypeClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value       string
		known       bool
		wantsAPIKey bool
	}{
		{"free", true, false},
		{"plus", true, false},
		{"pro", true, false},
		{"business", true, false},
		{"enterprise", true, true},
		{"edu", true, false},
		{"team-preview", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run("plan_"+tt.value, func(t *testing.T) {
			t.Parallel()
			plan := ParsePlanType(tt.value)
			if _, ok := plan.Known(); ok != tt.known {
				t.Errorf("Known() ok = %v, want %v", ok, tt.known)
			}
			if plan.String() != tt.value {
				t.Errorf("String() = %q, want verbatim %q", plan.String(), tt.value)
			}
			info := IDTokenInfo{PlanType: &plan}
			if got := info.ShouldUseAPIKey(); got != tt.wantsAPIKey {
				t.Errorf("ShouldUseAPIKey() = %v, want %v", got, tt.wantsAPIKey)
			}
		})
	}
}

func TestPlanTypeJSONRoundTrip(t *testing.T) {
	t.Parallel()

	plan := ParsePlanType("team-preview")
	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"team-preview"` {
		t.Fatalf("marshal = %s, want raw string", data)
	}

	var back PlanType
	if err = json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.String() != "team-preview" {
		t.Fatalf("unknown plan not preserved: %q", back.String())
	}
	if _, ok := back.Known(); ok {
		t.Fatal("unknown plan classified as known after round trip")
	}
}

func TestTokenDataJSONRoundTrip(t *testing.T) {
	t.Parallel()

	token := makeJWT(t, `{"email":"a@b.com","https://api.openai.com/auth":{"chatgpt_plan_type":"pro"}}`)
	original := TokenData{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		AccountID:    "acct-9",
	}
	info, err := ParseIDToken(token)
	if err != nil {
		t.Fatal(err)
	}
	original.IDToken = *info

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}
	// id_token must serialize as the compact string, not an object.
	var onWire map[string]any
	if err = json.Unmarshal(data, &onWire); err != nil {
		t.Fatal(err)
	}
	if got, ok := onWire["id_token"].(string); !ok || got != token {
		t.Fatalf("id_token on wire = %v, want compact token string", onWire["id_token"])
	}

	var restored TokenData
	if err = json.Unmarshal(data, &restored); err != nil {
		t.Fatal(err)
	}
	if restored.AccessToken != "access-1" || restored.RefreshToken != "refresh-1" || restored.AccountID != "acct-9" {
		t.Fatalf("restored fields differ: %+v", restored)
	}
	if restored.IDToken.Email != "a@b.com" {
		t.Fatalf("claims not re-parsed: %+v", restored.IDToken)
	}
}

func TestTokenDataUnmarshalRejectsMalformedIDToken(t *testing.T) {
	t.Parallel()

	var td TokenData
	err := json.Unmarshal([]byte(`{"id_token":"only.two","access_token":"a","refresh_token":"r","account_id":null}`), &td)
	if !errors.Is(err, ErrIDTokenFormat) {
		t.Fatalf("err = %v, want %v", err, ErrIDTokenFormat)
	}
}

func TestTokenDataMarshalNullAccountID(t *testing.T) {
	t.Parallel()

	token := makeJWT(t, `{"email":"x@y.z"}`)
	info, err := ParseIDToken(token)
	if err != nil {
		t.Fatal(err)
	}
	td := TokenData{IDToken: *info, AccessToken: "a", RefreshToken: "r"}
	data, err := json.Marshal(td)
	if err != nil {
		t.Fatal(err)
	}
	var onWire map[string]json.RawMessage
	if err = json.Unmarshal(data, &onWire); err != nil {
		t.Fatal(err)
	}
	if string(onWire["account_id"]) != "null" {
		t.Fatalf("account_id = %s, want null", onWire["account_id"])
	}
}
