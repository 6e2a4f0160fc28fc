package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/faucetdb/turnstile/internal/model"
	"github.com/faucetdb/turnstile/internal/service"
)

type contextKeyAuth string

const (
	// AuthClaimsKey is the context key for the verified claims.
	AuthClaimsKey contextKeyAuth = "auth_claims"

	// DefaultCredentialHeader is checked before Authorization.
	DefaultCredentialHeader = "Turnstile-Authorization"
)

// Resolver verifies a raw credential.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (service.Claims, error)
}

// ExtractCredential returns the first non-empty credential on the request,
// checking, in order:
//
//  1. the custom credential header (headerName)
//  2. Authorization, with an optional "Bearer " prefix removed
//  3. the session cookie
func ExtractCredential(r *http.Request, headerName string) string {
	if headerName == "" {
		headerName = DefaultCredentialHeader
	}
	if v := strings.TrimSpace(r.Header.Get(headerName)); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("Authorization")); v != "" {
		if len(v) > 7 && strings.EqualFold(v[:7], "Bearer ") {
			v = strings.TrimSpace(v[7:])
		}
		if v != "" {
			return v
		}
	}
	if c, err := r.Cookie(service.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// Authenticate returns an HTTP middleware that resolves the request's
// credential. Session tokens and API keys are accepted in any of the
// locations ExtractCredential checks. On success the claims are attached to
// the request context. Authentication failures get a 401 with a
// machine-readable reason; resolver failures get a 500.
func Authenticate(resolver Resolver, headerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := resolver.Resolve(r.Context(), ExtractCredential(r, headerName))
			if err != nil {
				WriteAuthError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), AuthClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims extracts the verified claims from the context. ok is false for
// unauthenticated requests.
func GetClaims(ctx context.Context) (claims service.Claims, ok bool) {
	claims, ok = ctx.Value(AuthClaimsKey).(service.Claims)
	return claims, ok
}

// WriteAuthError writes the JSON error envelope for a credential failure.
func WriteAuthError(w http.ResponseWriter, err error) {
	kind := service.KindOf(err)
	status := http.StatusUnauthorized
	message := "Authentication required"
	if !kind.IsAuthFailure() {
		status = http.StatusInternalServerError
		message = "Unable to verify credentials"
	}

	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    status,
			Message: message,
			Reason:  kind.String(),
		},
	})
}
