package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuthErrorMatchesSentinelByKind(t *testing.T) {
	err := newAuthError(KindTokenExpired, errors.New("token has invalid claims: token is expired"))
	wrapped := fmt.Errorf("resolve: %w", err)

	if !errors.Is(wrapped, ErrTokenExpired) {
		t.Error("expected errors.Is to match ErrTokenExpired")
	}
	if errors.Is(wrapped, ErrSignatureInvalid) {
		t.Error("matched the wrong sentinel")
	}
	if KindOf(wrapped) != KindTokenExpired {
		t.Errorf("got kind %v, want token_expired", KindOf(wrapped))
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("plain errors should be internal")
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindMissingCredential: "missing_credential",
		KindNotAToken:         "not_a_token",
		KindSignatureInvalid:  "signature_invalid",
		KindTokenExpired:      "token_expired",
		KindInvalidClaims:     "invalid_claims",
		KindAPIKeyNotFound:    "api_key_not_found",
		KindAPIKeyExpired:     "api_key_expired",
		KindInternal:          "internal",
		Kind(99):              "kind(99)",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}

func TestAuthErrorMessage(t *testing.T) {
	if got := ErrMissingCredential.Error(); got != "auth: missing_credential" {
		t.Errorf("got %q", got)
	}
	err := newAuthError(KindAPIKeyNotFound, errors.New("not found"))
	if got := err.Error(); got != "auth: api_key_not_found: not found" {
		t.Errorf("got %q", got)
	}
}
