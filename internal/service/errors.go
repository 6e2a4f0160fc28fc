package service

import (
	"errors"
	"fmt"
)

// Kind classifies why a credential was rejected. The set is closed; callers
// switch over it instead of inspecting error text.
type Kind int

const (
	KindInternal Kind = iota
	KindMissingCredential
	KindNotAToken
	KindSignatureInvalid
	KindTokenExpired
	KindInvalidClaims
	KindAPIKeyNotFound
	KindAPIKeyExpired
)

var kindReasons = map[Kind]string{
	KindInternal:          "internal",
	KindMissingCredential: "missing_credential",
	KindNotAToken:         "not_a_token",
	KindSignatureInvalid:  "signature_invalid",
	KindTokenExpired:      "token_expired",
	KindInvalidClaims:     "invalid_claims",
	KindAPIKeyNotFound:    "api_key_not_found",
	KindAPIKeyExpired:     "api_key_expired",
}

// String returns the machine-readable reason for the kind.
func (k Kind) String() string {
	if r, ok := kindReasons[k]; ok {
		return r
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsAuthFailure reports whether the kind means the caller is unauthenticated,
// as opposed to the server failing to decide.
func (k Kind) IsAuthFailure() bool {
	return k != KindInternal
}

// AuthError is the error returned by every verification path.
type AuthError struct {
	Kind Kind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: " + e.Kind.String()
	}
	return "auth: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another *AuthError by kind, so the sentinels below work with
// errors.Is regardless of the wrapped cause.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingCredential = &AuthError{Kind: KindMissingCredential}
	ErrNotAToken         = &AuthError{Kind: KindNotAToken}
	ErrSignatureInvalid  = &AuthError{Kind: KindSignatureInvalid}
	ErrTokenExpired      = &AuthError{Kind: KindTokenExpired}
	ErrInvalidClaims     = &AuthError{Kind: KindInvalidClaims}
	ErrAPIKeyNotFound    = &AuthError{Kind: KindAPIKeyNotFound}
	ErrAPIKeyExpired     = &AuthError{Kind: KindAPIKeyExpired}
)

// Errors returned by account operations. These are not credential
// classifications and are mapped to their own HTTP statuses.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotActive      = errors.New("user is not active")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidInput       = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
)

func newAuthError(kind Kind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err. Errors that are not an *AuthError are
// KindInternal.
func KindOf(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
